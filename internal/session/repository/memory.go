package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"nfc4care/backend/internal/session/domain"
)

// ErrDuplicateToken is returned by MemoryRepository when a token is inserted twice.
var ErrDuplicateToken = errors.New("session token already exists")

// MemoryRepository is an in-process Repository. A single mutex gives it the same
// atomicity as the Postgres statements it stands in for.
type MemoryRepository struct {
	mu      sync.Mutex
	byToken map[string]*domain.Session
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byToken: make(map[string]*domain.Session)}
}

var _ Repository = (*MemoryRepository)(nil)

func (m *MemoryRepository) GetByToken(_ context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byToken[token]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil //nolint:nilnil // not found is not an error
}

func (m *MemoryRepository) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(s)
}

func (m *MemoryRepository) ReplaceLive(_ context.Context, s *domain.Session, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byToken[s.Token]; exists {
		return 0, ErrDuplicateToken
	}
	var revoked int64
	for _, rec := range m.byToken {
		if rec.Email == s.Email && rec.IsLive(now) {
			rec.Revoked = true
			revoked++
		}
	}
	if err := m.insertLocked(s); err != nil {
		return 0, err
	}
	return revoked, nil
}

func (m *MemoryRepository) ListLiveByEmail(_ context.Context, email string, now time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterLocked(func(s *domain.Session) bool { return s.Email == email && s.IsLive(now) }), nil
}

func (m *MemoryRepository) ListEmailsWithLive(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, s := range m.byToken {
		if !s.IsLive(now) {
			continue
		}
		if _, ok := seen[s.Email]; ok {
			continue
		}
		seen[s.Email] = struct{}{}
		out = append(out, s.Email)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryRepository) CountLiveByEmail(_ context.Context, email string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.byToken {
		if s.Email == email && s.IsLive(now) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) Revoke(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byToken[token]
	if !ok || s.Revoked {
		return false, nil
	}
	s.Revoked = true
	return true, nil
}

func (m *MemoryRepository) RevokeIDs(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var n int64
	for _, s := range m.byToken {
		if _, ok := want[s.ID]; ok && !s.Revoked {
			s.Revoked = true
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) RevokeAllByEmail(_ context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.byToken {
		if s.Email == email && !s.Revoked {
			s.Revoked = true
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) MarkExpired(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byToken[token]; ok {
		s.Expired = true
	}
	return nil
}

func (m *MemoryRepository) MarkExpiredBefore(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.byToken {
		if !s.Expired && s.ExpiresAt.Before(now) {
			s.Expired = true
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, s := range m.byToken {
		if s.ExpiresAt.Before(cutoff) {
			delete(m.byToken, token)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) List(_ context.Context, f Filter) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := f.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	out := m.filterLocked(func(s *domain.Session) bool {
		if f.Email != "" && s.Email != f.Email {
			return false
		}
		return !f.LiveOnly || s.IsLive(now)
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[max(f.Offset, 0):]
	if limit := clampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored records, including revoked and expired ones.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byToken)
}

func (m *MemoryRepository) insertLocked(s *domain.Session) error {
	if _, exists := m.byToken[s.Token]; exists {
		return ErrDuplicateToken
	}
	cp := *s
	m.byToken[s.Token] = &cp
	return nil
}

// filterLocked returns copies of matching records, newest first.
func (m *MemoryRepository) filterLocked(keep func(*domain.Session) bool) []*domain.Session {
	var out []*domain.Session
	for _, s := range m.byToken {
		if keep(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
