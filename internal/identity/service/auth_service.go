// Package service implements the authentication flow on top of the session authority:
// credential checks, login, logout and the bootstrap of development accounts.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"nfc4care/backend/internal/audit"
	auditdomain "nfc4care/backend/internal/audit/domain"
	profdomain "nfc4care/backend/internal/professional/domain"
	"nfc4care/backend/internal/security"
	sessiondomain "nfc4care/backend/internal/session/domain"
	sessionrepo "nfc4care/backend/internal/session/repository"
	sessionservice "nfc4care/backend/internal/session/service"
)

// Sentinel errors for auth service; the handler maps both to a generic 401.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInactiveProfessional = errors.New("professional account is inactive")
)

const auditResource = "session"

// ProfessionalRepo is the minimal credential store needed by the auth service.
type ProfessionalRepo interface {
	GetByEmail(ctx context.Context, email string) (*profdomain.Professional, error)
	Create(ctx context.Context, p *profdomain.Professional) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// SessionAuthority is the part of the session authority the auth flow calls.
type SessionAuthority interface {
	Issue(ctx context.Context, email string, origin sessiondomain.Origin) (*sessionservice.Issued, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, email string) (int64, error)
	ListSessions(ctx context.Context, f sessionrepo.Filter) ([]*sessiondomain.Session, error)
}

// AuthResult holds the issued token and the authenticated professional.
type AuthResult struct {
	Token        string
	Session      *sessiondomain.Session
	Professional *profdomain.Professional
}

// AuthService implements login, logout, logout-all and session listing.
type AuthService struct {
	profs    ProfessionalRepo
	sessions SessionAuthority
	hasher   *security.Hasher
	audit    audit.AuditLogger
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. auditLogger and logger may be nil.
func NewAuthService(profs ProfessionalRepo, sessions SessionAuthority, hasher *security.Hasher, auditLogger audit.AuditLogger, logger *slog.Logger) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		profs:    profs,
		sessions: sessions,
		hasher:   hasher,
		audit:    auditLogger,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Login verifies email and password and issues a new session, superseding any live one.
// Email lookup is exact and case-sensitive.
func (s *AuthService) Login(ctx context.Context, email, password string, origin sessiondomain.Origin) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.loginFailed(ctx, email, "missing_fields")
		return nil, ErrInvalidCredentials
	}
	prof, err := s.profs.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load professional: %w", err)
	}
	if prof == nil {
		_ = s.hasher.CompareMissing([]byte(password))
		s.loginFailed(ctx, email, "unknown_email")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(prof.PasswordHash, []byte(password)); err != nil {
		s.loginFailed(ctx, email, "bad_password")
		return nil, ErrInvalidCredentials
	}
	if !prof.Active {
		s.loginFailed(ctx, email, "inactive")
		return nil, ErrInactiveProfessional
	}

	now := s.now()
	if err := s.profs.UpdateLastLogin(ctx, prof.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	prof.LastLoginAt = &now

	issued, err := s.sessions.Issue(ctx, prof.Email, origin)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.audit.LogEvent(ctx, prof.Email, auditdomain.ActionLoginSuccess, auditResource,
		audit.Metadata{"session_id": issued.Session.ID, "superseded": issued.Superseded})
	return &AuthResult{Token: issued.Token, Session: issued.Session, Professional: prof}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, reason string) {
	s.logger.InfoContext(ctx, "login failed", "email", email, "reason", reason)
	s.audit.LogEvent(ctx, email, auditdomain.ActionLoginFailure, auditResource, audit.Metadata{"reason": reason})
}

// Logout revokes token. An empty or unknown token is a no-op.
func (s *AuthService) Logout(ctx context.Context, email, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, email, auditdomain.ActionLogout, auditResource,
		audit.Metadata{"fingerprint": security.TokenFingerprint(token)})
	return nil
}

// LogoutAll revokes every session owned by email.
func (s *AuthService) LogoutAll(ctx context.Context, email string) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, email)
	if err != nil {
		return 0, err
	}
	s.audit.LogEvent(ctx, email, auditdomain.ActionLogoutAll, auditResource, audit.Metadata{"revoked": n})
	return n, nil
}

// Sessions returns the live sessions of email, newest first.
func (s *AuthService) Sessions(ctx context.Context, email string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListSessions(ctx, sessionrepo.Filter{Email: email, LiveOnly: true})
}

// Profile returns the professional for email, or nil when none exists.
func (s *AuthService) Profile(ctx context.Context, email string) (*profdomain.Professional, error) {
	return s.profs.GetByEmail(ctx, email)
}

// Account describes a professional created by EnsureProfessional.
type Account struct {
	Email      string
	Password   string
	LastName   string
	FirstName  string
	Specialty  string
	RPPSNumber string
	Role       profdomain.Role
}

// DefaultDoctor is the development account created when bootstrap is enabled.
var DefaultDoctor = Account{
	Email:      "doctor@example.com",
	Password:   "password",
	LastName:   "Dubois",
	FirstName:  "Martin",
	Specialty:  "Médecine générale",
	RPPSNumber: "12345678901",
	Role:       profdomain.RoleDoctor,
}

// DefaultAdmin is the administrator created by cmd/seed.
var DefaultAdmin = Account{
	Email:     "admin@example.com",
	Password:  "password",
	LastName:  "Admin",
	FirstName: "Système",
	Specialty: "Administration",
	Role:      profdomain.RoleAdmin,
}

// EnsureProfessional creates the account if no professional owns its email. It reports whether it created one.
func (s *AuthService) EnsureProfessional(ctx context.Context, acc Account) (bool, error) {
	if err := validateEmail(acc.Email); err != nil {
		return false, err
	}
	existing, err := s.profs.GetByEmail(ctx, acc.Email)
	if err != nil {
		return false, fmt.Errorf("load professional: %w", err)
	}
	if existing != nil {
		return false, nil
	}
	hash, err := s.hasher.Hash([]byte(acc.Password))
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	p := &profdomain.Professional{
		ID:           uuid.New().String(),
		Email:        acc.Email,
		PasswordHash: hash,
		LastName:     acc.LastName,
		FirstName:    acc.FirstName,
		Specialty:    acc.Specialty,
		RPPSNumber:   acc.RPPSNumber,
		Role:         acc.Role,
		Active:       true,
		CreatedAt:    s.now(),
	}
	if err := s.profs.Create(ctx, p); err != nil {
		return false, fmt.Errorf("create professional: %w", err)
	}
	s.logger.InfoContext(ctx, "professional created", "email", p.Email, "role", string(p.Role))
	return true, nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}
