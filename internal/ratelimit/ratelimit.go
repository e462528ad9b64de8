// Package ratelimit throttles login attempts with a fixed window per key.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits at most Limit events per key per window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Config sets the window size and the number of events admitted per window.
// A non-positive Limit disables limiting.
type Config struct {
	Limit  int
	Window time.Duration
}

// New returns a Redis limiter when client is non-nil, otherwise an in-process one.
func New(cfg Config, client redis.Cmdable) Limiter {
	if cfg.Limit <= 0 {
		return Unlimited{}
	}
	if client != nil {
		return NewRedisLimiter(client, cfg, "nfc4care:login")
	}
	return NewMemoryLimiter(cfg, nil)
}

// Unlimited admits everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true, Remaining: -1}, nil
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter keeps counters in process memory. Counters are not shared between replicas.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter returns a MemoryLimiter. now may be nil.
func NewMemoryLimiter(cfg Config, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &MemoryLimiter{cfg: cfg, now: now, windows: make(map[string]*window)}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= m.cfg.Window {
		w = &window{start: now}
		m.windows[key] = w
		m.evictLocked(now)
	}
	w.count++
	if w.count > m.cfg.Limit {
		return Decision{RetryAfter: w.start.Add(m.cfg.Window).Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: m.cfg.Limit - w.count}, nil
}

// evictLocked drops windows that have ended so the map does not grow without bound.
func (m *MemoryLimiter) evictLocked(now time.Time) {
	if len(m.windows) < 1024 {
		return
	}
	for k, w := range m.windows {
		if now.Sub(w.start) >= m.cfg.Window {
			delete(m.windows, k)
		}
	}
}

// RedisLimiter shares counters between replicas with INCR and EXPIRE.
type RedisLimiter struct {
	client redis.Cmdable
	cfg    Config
	prefix string
}

// NewRedisLimiter returns a limiter storing counters under prefix:key.
func NewRedisLimiter(client redis.Cmdable, cfg Config, prefix string) *RedisLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RedisLimiter{client: client, cfg: cfg, prefix: strings.TrimSuffix(prefix, ":")}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if r.client == nil {
		return Decision{}, errors.New("ratelimit: redis client is nil")
	}
	k := r.prefix + ":" + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, r.cfg.Window)
		ttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis: %w", err)
	}
	count := int(incr.Val())
	if count > r.cfg.Limit {
		retry := ttl.Val()
		if retry <= 0 {
			retry = r.cfg.Window
		}
		return Decision{RetryAfter: retry}, nil
	}
	return Decision{Allowed: true, Remaining: r.cfg.Limit - count}, nil
}

// NewRedisClient returns a client for addr. The caller owns Close.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}
