package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Config{Limit: 2, Window: time.Minute}, func() time.Time { return now })
	ctx := context.Background()

	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)

	now = now.Add(20 * time.Second)
	d, _ = l.Allow(ctx, "10.0.0.1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.RetryAfter)

	d, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, d.Allowed, "keys are independent")

	now = now.Add(40 * time.Second)
	d, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, d.Allowed, "new window")
}

func TestNew_SelectsImplementation(t *testing.T) {
	assert.IsType(t, Unlimited{}, New(Config{Limit: 0}, nil))
	assert.IsType(t, &MemoryLimiter{}, New(Config{Limit: 5}, nil))
	client := NewRedisClient("127.0.0.1:0", "")
	defer client.Close()
	assert.IsType(t, &RedisLimiter{}, New(Config{Limit: 5}, client))
}

func TestRedisLimiter_UnreachableReturnsError(t *testing.T) {
	client := NewRedisClient("127.0.0.1:1", "")
	defer client.Close()
	l := NewRedisLimiter(client, Config{Limit: 1, Window: time.Second}, "test:")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := l.Allow(ctx, "k")
	assert.Error(t, err)
}

func TestUnlimited(t *testing.T) {
	d, err := Unlimited{}.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
