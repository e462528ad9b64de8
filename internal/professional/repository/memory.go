package repository

import (
	"context"
	"sync"
	"time"

	"nfc4care/backend/internal/professional/domain"
)

// MemoryRepository is an in-process Repository used by tests and local tooling.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Professional
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Professional)}
}

var _ Repository = (*MemoryRepository)(nil)

func (m *MemoryRepository) GetByID(_ context.Context, id string) (*domain.Professional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil //nolint:nilnil // not found is not an error
}

func (m *MemoryRepository) GetByEmail(_ context.Context, email string) (*domain.Professional, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.byID {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil //nolint:nilnil // not found is not an error
}

func (m *MemoryRepository) Create(_ context.Context, p *domain.Professional) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == p.Email {
			return ErrDuplicateEmail
		}
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *MemoryRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		t := at
		p.LastLoginAt = &t
	}
	return nil
}

func (m *MemoryRepository) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		p.Active = active
	}
	return nil
}
