package repository

import (
	"context"

	"nfc4care/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByActor returns the actor's events, newest first. An empty action matches all actions.
	ListByActor(ctx context.Context, actor, action string, limit, offset int) ([]*domain.AuditLog, error)
}
