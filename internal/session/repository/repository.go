package repository

import (
	"context"
	"time"

	"nfc4care/backend/internal/session/domain"
)

// Filter narrows List. Zero values mean "no constraint"; Limit <= 0 selects DefaultListLimit.
type Filter struct {
	Email    string
	LiveOnly bool
	Now      time.Time // reference time for LiveOnly
	Limit    int
	Offset   int
}

// DefaultListLimit and MaxListLimit bound List page sizes.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Repository is the session record store. Every mutation is a single conditional or
// set-based statement (or one transaction) so that concurrent processes stay consistent
// without in-process locks.
type Repository interface {
	// GetByToken returns the record for token, or nil if none exists.
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	// Create inserts s without touching other records. Issuance goes through ReplaceLive;
	// Create is the seam for seeding records that already coexist, such as rows carried
	// over from deployments that allowed several live sessions, which Consolidate repairs.
	Create(ctx context.Context, s *domain.Session) error
	// ReplaceLive atomically revokes every live record of s.Email and inserts s.
	// It returns how many records were revoked.
	ReplaceLive(ctx context.Context, s *domain.Session, now time.Time) (int64, error)
	// ListLiveByEmail returns live records for email, newest first.
	ListLiveByEmail(ctx context.Context, email string, now time.Time) ([]*domain.Session, error)
	// ListEmailsWithLive returns each principal owning at least one live record.
	ListEmailsWithLive(ctx context.Context, now time.Time) ([]string, error)
	CountLiveByEmail(ctx context.Context, email string, now time.Time) (int64, error)
	// Revoke flags the record for token as revoked. Unknown or already revoked tokens are a no-op.
	Revoke(ctx context.Context, token string) (bool, error)
	// RevokeIDs revokes the given records that are not yet revoked.
	RevokeIDs(ctx context.Context, ids []string) (int64, error)
	// RevokeAllByEmail revokes every record owned by email in one statement.
	RevokeAllByEmail(ctx context.Context, email string) (int64, error)
	// MarkExpired flags the record for token as expired. Unknown tokens are a no-op.
	MarkExpired(ctx context.Context, token string) error
	// MarkExpiredBefore flags every unflagged record with expires_at < now.
	MarkExpiredBefore(ctx context.Context, now time.Time) (int64, error)
	// DeleteExpiredBefore physically removes every record with expires_at < cutoff.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	List(ctx context.Context, f Filter) ([]*domain.Session, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
