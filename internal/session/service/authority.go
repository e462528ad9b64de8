// Package service implements the session authority: issuance under the single-active-session
// rule, dual-layer validation, revocation and the maintenance primitives used by the scheduler.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"nfc4care/backend/internal/audit"
	auditdomain "nfc4care/backend/internal/audit/domain"
	"nfc4care/backend/internal/security"
	"nfc4care/backend/internal/session/domain"
	"nfc4care/backend/internal/session/repository"
	"nfc4care/backend/internal/telemetry/metrics"
)

// Sentinel errors. Result.Err maps rejection reasons onto them; ErrStoreUnavailable
// is joined onto every store failure returned by the Authority.
var (
	ErrTokenNotFound    = errors.New("session not found")
	ErrTokenRevoked     = errors.New("session revoked")
	ErrTokenExpired     = errors.New("session expired")
	ErrSubjectMismatch  = errors.New("token subject does not match session owner")
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Reason says why a token was rejected. It is for logs and audit only.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonMalformed Reason = "malformed"
	ReasonNotFound  Reason = "not_found"
	ReasonRevoked   Reason = "revoked"
	ReasonExpired   Reason = "expired"
	ReasonMismatch  Reason = "mismatch"
)

const auditResource = "session"

// TokenCodec is the signed-token half of validation.
type TokenCodec interface {
	Mint(subject string, ttl time.Duration) (string, *security.TokenClaims, error)
	Parse(token string) (*security.TokenClaims, error)
	Expired(claims *security.TokenClaims) bool
}

// Result is the outcome of ValidateAndReconcile.
type Result struct {
	Valid   bool
	Email   string
	Reason  Reason
	Session *domain.Session
}

// Err returns the sentinel matching r.Reason, or nil for a valid result.
func (r Result) Err() error {
	switch r.Reason {
	case ReasonNone:
		if r.Valid {
			return nil
		}
		return ErrTokenNotFound
	case ReasonMalformed:
		return security.ErrMalformedToken
	case ReasonRevoked:
		return ErrTokenRevoked
	case ReasonExpired:
		return ErrTokenExpired
	case ReasonMismatch:
		return ErrSubjectMismatch
	default:
		return ErrTokenNotFound
	}
}

// Issued is returned by Issue.
type Issued struct {
	Token      string
	Session    *domain.Session
	Superseded int64
}

// Authority orchestrates the token codec and the session record store.
type Authority struct {
	repo    repository.Repository
	codec   TokenCodec
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	audit   audit.AuditLogger
	metrics *metrics.SessionMetrics
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock sets the time source. It should match the codec's clock.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger for issuance, rejection and maintenance messages.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAudit sets the audit sink. Nil keeps the no-op default.
func WithAudit(logger audit.AuditLogger) Option {
	return func(a *Authority) {
		if logger != nil {
			a.audit = logger
		}
	}
}

// WithMetrics records issuance, validation and revocation counters on m.
func WithMetrics(m *metrics.SessionMetrics) Option {
	return func(a *Authority) { a.metrics = m }
}

// New returns an Authority issuing tokens valid for ttl.
func New(repo repository.Repository, codec TokenCodec, ttl time.Duration, opts ...Option) (*Authority, error) {
	if repo == nil || codec == nil {
		return nil, errors.New("session authority: repository and codec are required")
	}
	if ttl <= 0 {
		return nil, errors.New("session authority: token ttl must be positive")
	}
	a := &Authority{
		repo:   repo,
		codec:  codec,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
		audit:  audit.Nop{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// TTL returns the configured token lifetime.
func (a *Authority) TTL() time.Duration { return a.ttl }

// Issue mints a token for email and stores it as the principal's only live session.
// Prior live sessions are revoked in the same store transaction as the insert.
func (a *Authority) Issue(ctx context.Context, email string, origin domain.Origin) (*Issued, error) {
	token, claims, err := a.codec.Mint(email, a.ttl)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	now := a.now()
	s := &domain.Session{
		ID:        ulid.Make().String(),
		Token:     token,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: claims.ExpiresAt,
		Origin:    origin,
	}
	superseded, err := a.repo.ReplaceLive(ctx, s, now)
	if err != nil {
		return nil, storeFailure("issue session", err)
	}
	a.metrics.Issued(superseded)
	a.logger.InfoContext(ctx, "session issued",
		"email", email, "session_id", s.ID, "superseded", superseded,
		"fingerprint", security.TokenFingerprint(token))
	a.audit.LogEvent(ctx, email, auditdomain.ActionSessionIssued, auditResource,
		audit.Metadata{"session_id": s.ID, "superseded": superseded})
	return &Issued{Token: token, Session: s, Superseded: superseded}, nil
}

// ValidateAndReconcile checks token against the codec and then the store. Both layers must pass.
// It writes to the store: a record found past its expiry is flagged expired before the call
// returns. The error is non-nil only when the store could not be consulted; in that case the
// result is never valid.
func (a *Authority) ValidateAndReconcile(ctx context.Context, token string) (Result, error) {
	claims, err := a.codec.Parse(token)
	if err != nil {
		return a.reject(ctx, token, "", ReasonMalformed, nil), nil
	}
	codecExpired := a.codec.Expired(claims)

	rec, err := a.repo.GetByToken(ctx, token)
	if err != nil {
		a.metrics.Validation(metrics.OutcomeStoreFailure)
		return Result{Email: claims.Subject}, storeFailure("load session", err)
	}
	if rec == nil {
		return a.reject(ctx, token, claims.Subject, ReasonNotFound, nil), nil
	}
	if rec.Email != claims.Subject {
		return a.reject(ctx, token, claims.Subject, ReasonMismatch, rec), nil
	}
	if rec.Revoked {
		return a.reject(ctx, token, rec.Email, ReasonRevoked, rec), nil
	}
	if codecExpired || rec.Expired || rec.PastExpiry(a.now()) {
		if !rec.Expired {
			if err := a.repo.MarkExpired(ctx, token); err != nil {
				a.metrics.Validation(metrics.OutcomeStoreFailure)
				return Result{Email: rec.Email}, storeFailure("mark session expired", err)
			}
			rec.Expired = true
		}
		return a.reject(ctx, token, rec.Email, ReasonExpired, rec), nil
	}

	a.metrics.Validation(metrics.OutcomeValid)
	return Result{Valid: true, Email: rec.Email, Session: rec}, nil
}

func (a *Authority) reject(ctx context.Context, token, email string, reason Reason, rec *domain.Session) Result {
	a.metrics.Validation(metrics.OutcomeInvalid)
	a.logger.InfoContext(ctx, "session rejected",
		"reason", string(reason), "email", email, "fingerprint", security.TokenFingerprint(token))
	// Malformed values carry no principal and are counted and logged only.
	if reason == ReasonMalformed {
		return Result{Email: email, Reason: reason, Session: rec}
	}
	meta := audit.Metadata{"reason": string(reason), "fingerprint": security.TokenFingerprint(token)}
	if rec != nil {
		meta["session_id"] = rec.ID
	}
	a.audit.LogEvent(ctx, email, auditdomain.ActionSessionRejected, auditResource, meta)
	return Result{Email: email, Reason: reason, Session: rec}
}

// Revoke flags the record for token as revoked. Unknown or already revoked tokens are not an error.
func (a *Authority) Revoke(ctx context.Context, token string) error {
	changed, err := a.repo.Revoke(ctx, token)
	if err != nil {
		return storeFailure("revoke session", err)
	}
	if changed {
		a.metrics.Revoked(metrics.RevokeLogout, 1)
	}
	a.logger.InfoContext(ctx, "session revoked", "changed", changed, "fingerprint", security.TokenFingerprint(token))
	return nil
}

// RevokeAll revokes every record owned by email, live or not, in one store statement.
func (a *Authority) RevokeAll(ctx context.Context, email string) (int64, error) {
	n, err := a.repo.RevokeAllByEmail(ctx, email)
	if err != nil {
		return 0, storeFailure("revoke all sessions", err)
	}
	a.metrics.Revoked(metrics.RevokeAll, n)
	a.logger.InfoContext(ctx, "sessions revoked", "email", email, "count", n)
	return n, nil
}

// SweepExpired flags every record with expires_at < now as expired. It is idempotent.
func (a *Authority) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := a.repo.MarkExpiredBefore(ctx, now)
	if err != nil {
		return 0, storeFailure("sweep expired sessions", err)
	}
	a.metrics.Swept(n)
	return n, nil
}

// PurgeOld deletes every record with expires_at < cutoff.
func (a *Authority) PurgeOld(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := a.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, storeFailure("purge sessions", err)
	}
	a.metrics.Purged(n)
	return n, nil
}

// Consolidate keeps the newest live record of email and revokes the others.
// With zero or one live record it does nothing.
func (a *Authority) Consolidate(ctx context.Context, email string) (int64, error) {
	live, err := a.repo.ListLiveByEmail(ctx, email, a.now())
	if err != nil {
		return 0, storeFailure("list live sessions", err)
	}
	if len(live) <= 1 {
		return 0, nil
	}
	// live is ordered newest first.
	ids := make([]string, 0, len(live)-1)
	for _, s := range live[1:] {
		ids = append(ids, s.ID)
	}
	n, err := a.repo.RevokeIDs(ctx, ids)
	if err != nil {
		return 0, storeFailure("revoke duplicate sessions", err)
	}
	a.metrics.Consolidated(n)
	a.metrics.Revoked(metrics.RevokeConsolidate, n)
	a.logger.WarnContext(ctx, "duplicate live sessions consolidated",
		"email", email, "kept", live[0].ID, "revoked", n)
	a.audit.LogEvent(ctx, email, auditdomain.ActionSessionsConsolidated, auditResource,
		audit.Metadata{"kept": live[0].ID, "revoked": n})
	return n, nil
}

// PrincipalsWithLiveSessions lists every email owning at least one live record.
func (a *Authority) PrincipalsWithLiveSessions(ctx context.Context) ([]string, error) {
	emails, err := a.repo.ListEmailsWithLive(ctx, a.now())
	if err != nil {
		return nil, storeFailure("list principals", err)
	}
	return emails, nil
}

// CountLive returns how many live records email owns.
func (a *Authority) CountLive(ctx context.Context, email string) (int64, error) {
	n, err := a.repo.CountLiveByEmail(ctx, email, a.now())
	if err != nil {
		return 0, storeFailure("count live sessions", err)
	}
	return n, nil
}

// ListSessions returns records matching f. A zero f.Now is replaced by the Authority's clock.
func (a *Authority) ListSessions(ctx context.Context, f repository.Filter) ([]*domain.Session, error) {
	if f.Now.IsZero() {
		f.Now = a.now()
	}
	list, err := a.repo.List(ctx, f)
	if err != nil {
		return nil, storeFailure("list sessions", err)
	}
	return list, nil
}

// Now exposes the Authority's clock to collaborators that must agree with it.
func (a *Authority) Now() time.Time { return a.now() }

func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStoreUnavailable, err))
}
