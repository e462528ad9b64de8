package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"nfc4care/backend/internal/session/domain"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sessionColumns lists columns returned by session SELECT queries.
var sessionColumns = []string{
	"id", "token", "email", "created_at", "expires_at", "revoked", "expired", "user_agent", "ip_address",
}

var selectSessions = `SELECT ` + strings.Join(sessionColumns, ", ") + ` FROM sessions`

// livePredicate matches records that are neither revoked nor expired at the reference time.
const livePredicate = `revoked = FALSE AND expired = FALSE AND expires_at > $2`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// GetByToken returns the record for token, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, selectSessions+` WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // not found is not an error
		}
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return s, nil
}

// Create inserts s. s must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	if err := insertSession(ctx, r.db, s); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// ReplaceLive revokes every live record of s.Email and inserts s in one transaction.
// A transaction-scoped advisory lock keyed by the email serializes concurrent issuance
// for the same principal across processes, so the revocation is visible before the new
// record is.
func (r *PostgresRepository) ReplaceLive(ctx context.Context, s *domain.Session, now time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning session transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.Email); err != nil {
		return 0, fmt.Errorf("locking principal sessions: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET revoked = TRUE WHERE email = $1 AND `+livePredicate, s.Email, now)
	if err != nil {
		return 0, fmt.Errorf("revoking live sessions: %w", err)
	}
	revoked, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoking live sessions: %w", err)
	}
	if err := insertSession(ctx, tx, s); err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing session transaction: %w", err)
	}
	return revoked, nil
}

// ListLiveByEmail returns live records for email, newest first. Records created in the
// same instant are ordered by their time-sortable id.
func (r *PostgresRepository) ListLiveByEmail(ctx context.Context, email string, now time.Time) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		selectSessions+` WHERE email = $1 AND `+livePredicate+` ORDER BY created_at DESC, id DESC`, email, now)
	if err != nil {
		return nil, fmt.Errorf("listing live sessions: %w", err)
	}
	return collectSessions(rows)
}

// ListEmailsWithLive returns every principal owning at least one live record.
func (r *PostgresRepository) ListEmailsWithLive(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT email FROM sessions WHERE revoked = FALSE AND expired = FALSE AND expires_at > $1 ORDER BY email`, now)
	if err != nil {
		return nil, fmt.Errorf("listing principals with live sessions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scanning principal: %w", err)
		}
		out = append(out, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating principals: %w", err)
	}
	return out, nil
}

// CountLiveByEmail returns the number of live records owned by email.
func (r *PostgresRepository) CountLiveByEmail(ctx context.Context, email string, now time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE email = $1 AND `+livePredicate, email, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting live sessions: %w", err)
	}
	return n, nil
}

// Revoke flags the record for token as revoked. It reports whether a record changed state.
func (r *PostgresRepository) Revoke(ctx context.Context, token string) (bool, error) {
	n, err := r.exec(ctx, `UPDATE sessions SET revoked = TRUE WHERE token = $1 AND revoked = FALSE`, token)
	if err != nil {
		return false, fmt.Errorf("revoking session: %w", err)
	}
	return n > 0, nil
}

// RevokeIDs revokes the listed records that are not yet revoked.
func (r *PostgresRepository) RevokeIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := psq.Update("sessions").
		Set("revoked", true).
		Where(sq.Eq{"id": ids}).
		Where(sq.Eq{"revoked": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building revoke query: %w", err)
	}
	n, err := r.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}
	return n, nil
}

// RevokeAllByEmail revokes every record owned by email in one set-based update.
func (r *PostgresRepository) RevokeAllByEmail(ctx context.Context, email string) (int64, error) {
	n, err := r.exec(ctx, `UPDATE sessions SET revoked = TRUE WHERE email = $1 AND revoked = FALSE`, email)
	if err != nil {
		return 0, fmt.Errorf("revoking principal sessions: %w", err)
	}
	return n, nil
}

// MarkExpired flags the record for token as expired.
func (r *PostgresRepository) MarkExpired(ctx context.Context, token string) error {
	if _, err := r.exec(ctx, `UPDATE sessions SET expired = TRUE WHERE token = $1 AND expired = FALSE`, token); err != nil {
		return fmt.Errorf("marking session expired: %w", err)
	}
	return nil
}

// MarkExpiredBefore flags every unflagged record whose expiry is before now.
func (r *PostgresRepository) MarkExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	n, err := r.exec(ctx, `UPDATE sessions SET expired = TRUE WHERE expires_at < $1 AND expired = FALSE`, now)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired sessions: %w", err)
	}
	return n, nil
}

// DeleteExpiredBefore deletes every record whose expiry is before cutoff.
func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	return n, nil
}

// List returns records matching f, newest first.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*domain.Session, error) {
	qb := applySessionFilter(psq.Select(sessionColumns...).From("sessions"), f).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(clampLimit(f.Limit)))
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return collectSessions(rows)
}

// applySessionFilter adds filter conditions to a SELECT builder.
func applySessionFilter(qb sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.Email != "" {
		qb = qb.Where(sq.Eq{"email": f.Email})
	}
	if f.LiveOnly {
		now := f.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		qb = qb.Where(sq.Eq{"revoked": false}).
			Where(sq.Eq{"expired": false}).
			Where(sq.Gt{"expires_at": now})
	}
	return qb
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, s *domain.Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (id, token, email, created_at, expires_at, revoked, expired, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.Token, s.Email, s.CreatedAt, s.ExpiresAt, s.Revoked, s.Expired,
		nullString(s.Origin.UserAgent), nullString(s.Origin.IPAddress),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s         domain.Session
		userAgent sql.NullString
		ip        sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Token, &s.Email, &s.CreatedAt, &s.ExpiresAt,
		&s.Revoked, &s.Expired, &userAgent, &ip); err != nil {
		return nil, err
	}
	s.Origin = domain.Origin{UserAgent: userAgent.String, IPAddress: ip.String}
	return &s, nil
}

func collectSessions(rows *sql.Rows) ([]*domain.Session, error) {
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
