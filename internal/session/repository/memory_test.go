package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfc4care/backend/internal/session/domain"
)

func rec(id, token, email string, created time.Time, ttl time.Duration) *domain.Session {
	return &domain.Session{ID: id, Token: token, Email: email, CreatedAt: created, ExpiresAt: created.Add(ttl)}
}

func TestMemoryRepository_ReplaceLive(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	require.NoError(t, m.Create(ctx, rec("a", "t1", "doc@x", testNow.Add(-2*time.Minute), time.Hour)))
	require.NoError(t, m.Create(ctx, rec("b", "t2", "doc@x", testNow.Add(-time.Minute), time.Hour)))
	require.NoError(t, m.Create(ctx, rec("c", "t3", "other@x", testNow, time.Hour)))

	n, err := m.ReplaceLive(ctx, rec("d", "t4", "doc@x", testNow, time.Hour), testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	live, err := m.ListLiveByEmail(ctx, "doc@x", testNow)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "t4", live[0].Token)

	other, _ := m.CountLiveByEmail(ctx, "other@x", testNow)
	assert.Equal(t, int64(1), other)

	_, err = m.ReplaceLive(ctx, rec("e", "t4", "doc@x", testNow, time.Hour), testNow)
	assert.ErrorIs(t, err, ErrDuplicateToken)
}

func TestMemoryRepository_SweepAndPurge(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	require.NoError(t, m.Create(ctx, rec("a", "old", "doc@x", testNow.Add(-72*time.Hour), time.Hour)))
	require.NoError(t, m.Create(ctx, rec("b", "recent", "doc@x", testNow.Add(-2*time.Hour), time.Hour)))
	require.NoError(t, m.Create(ctx, rec("c", "live", "doc@x", testNow, time.Hour)))

	n, err := m.MarkExpiredBefore(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = m.MarkExpiredBefore(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, n, "sweep is idempotent")

	n, err = m.DeleteExpiredBefore(ctx, testNow.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, m.Len())

	s, _ := m.GetByToken(ctx, "live")
	require.NotNil(t, s)
	assert.False(t, s.Expired)
}

func TestMemoryRepository_RevokeVariants(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	require.NoError(t, m.Create(ctx, rec("a", "t1", "doc@x", testNow, time.Hour)))
	require.NoError(t, m.Create(ctx, rec("b", "t2", "doc@x", testNow, time.Hour)))
	require.NoError(t, m.Create(ctx, rec("c", "t3", "doc@x", testNow, time.Hour)))

	changed, _ := m.Revoke(ctx, "t1")
	assert.True(t, changed)
	changed, _ = m.Revoke(ctx, "t1")
	assert.False(t, changed)
	changed, _ = m.Revoke(ctx, "unknown")
	assert.False(t, changed)

	n, _ := m.RevokeIDs(ctx, []string{"a", "b"})
	assert.Equal(t, int64(1), n)

	n, _ = m.RevokeAllByEmail(ctx, "doc@x")
	assert.Equal(t, int64(1), n)

	emails, _ := m.ListEmailsWithLive(ctx, testNow)
	assert.Empty(t, emails)
}

func TestMemoryRepository_List(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	for i, tok := range []string{"t1", "t2", "t3"} {
		require.NoError(t, m.Create(ctx, rec(tok, tok, "doc@x", testNow.Add(time.Duration(i)*time.Second), time.Hour)))
	}
	_, _ = m.Revoke(ctx, "t3")

	all, _ := m.List(ctx, Filter{Email: "doc@x", Now: testNow})
	require.Len(t, all, 3)
	assert.Equal(t, "t3", all[0].Token, "newest first")

	live, _ := m.List(ctx, Filter{Email: "doc@x", LiveOnly: true, Now: testNow})
	assert.Len(t, live, 2)

	page, _ := m.List(ctx, Filter{Limit: 1, Offset: 1, Now: testNow})
	require.Len(t, page, 1)
	assert.Equal(t, "t2", page[0].Token)

	none, _ := m.List(ctx, Filter{Offset: 10})
	assert.Empty(t, none)
}
