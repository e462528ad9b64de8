package repository

import (
	"context"
	"time"

	"nfc4care/backend/internal/professional/domain"
)

// Repository defines persistence for professionals (the credential store).
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Professional, error)
	// GetByEmail matches email exactly (case-sensitive).
	GetByEmail(ctx context.Context, email string) (*domain.Professional, error)
	Create(ctx context.Context, p *domain.Professional) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool) error
}
