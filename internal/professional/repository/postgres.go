package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"nfc4care/backend/internal/professional/domain"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("professional email already registered")

const professionalColumns = `id, email, password_hash, last_name, first_name, specialty, rpps_number, role, active, created_at, last_login_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a professional repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// GetByID returns the professional for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Professional, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+professionalColumns+` FROM professionals WHERE id = $1`, id)
	return scanProfessional(row)
}

// GetByEmail returns the professional with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Professional, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+professionalColumns+` FROM professionals WHERE email = $1`, email)
	return scanProfessional(row)
}

// Create persists p. p must have ID set; it is not assigned by this method.
// Email uniqueness is enforced by the professionals_email_key constraint.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Professional) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("creating professional: %w", err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO professionals (`+professionalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Email, p.PasswordHash, p.LastName, p.FirstName, p.Specialty, p.RPPSNumber,
		string(p.Role), p.Active, p.CreatedAt, nullTime(p.LastLoginAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "professionals_email_key" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("creating professional: %w", err)
	}
	return nil
}

// UpdateLastLogin records the last successful login time.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE professionals SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// SetActive activates or deactivates a professional. Professionals are never hard-deleted.
func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE professionals SET active = $2 WHERE id = $1`, id, active); err != nil {
		return fmt.Errorf("updating professional status: %w", err)
	}
	return nil
}

func scanProfessional(row *sql.Row) (*domain.Professional, error) {
	var (
		p         domain.Professional
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.LastName, &p.FirstName, &p.Specialty,
		&p.RPPSNumber, &role, &p.Active, &p.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil //nolint:nilnil // not found is not an error
		}
		return nil, fmt.Errorf("scanning professional: %w", err)
	}
	p.Role = domain.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		p.LastLoginAt = &t
	}
	return &p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
