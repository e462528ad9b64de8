// Package handler exposes the /auth endpoints over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	identityservice "nfc4care/backend/internal/identity/service"
	profdomain "nfc4care/backend/internal/professional/domain"
	"nfc4care/backend/internal/ratelimit"
	"nfc4care/backend/internal/server/httpx"
	"nfc4care/backend/internal/server/interceptors"
	sessiondomain "nfc4care/backend/internal/session/domain"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgUnauthenticated    = "Authentication required"
	msgTooManyAttempts    = "Too many login attempts. Please try again later."
	msgInternal           = "An internal error occurred"
)

// AuthService is the authentication flow used by the handlers.
type AuthService interface {
	Login(ctx context.Context, email, password string, origin sessiondomain.Origin) (*identityservice.AuthResult, error)
	Logout(ctx context.Context, email, token string) error
	LogoutAll(ctx context.Context, email string) (int64, error)
	Sessions(ctx context.Context, email string) ([]*sessiondomain.Session, error)
	Profile(ctx context.Context, email string) (*profdomain.Professional, error)
}

// AuthHandler serves /auth.
type AuthHandler struct {
	auth    AuthService
	limiter ratelimit.Limiter
	logger  *slog.Logger
}

// NewAuthHandler returns an AuthHandler. limiter may be nil to disable login throttling.
func NewAuthHandler(auth AuthService, limiter ratelimit.Limiter, logger *slog.Logger) *AuthHandler {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, limiter: limiter, logger: logger}
}

// Routes mounts the handlers on a fresh router.
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	r.Get("/validate", h.Validate)
	r.Post("/logout", h.Logout)
	r.Post("/logout-all", h.LogoutAll)
	r.Get("/sessions", h.Sessions)
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is the login and validate payload. Field names are relied on by the web client.
type AuthResponse struct {
	Token           string    `json:"token"`
	Type            string    `json:"type"`
	ProfessionnelID string    `json:"professionnelId"`
	Nom             string    `json:"nom"`
	Prenom          string    `json:"prenom"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	Specialite      string    `json:"specialite"`
	NumeroRPPS      string    `json:"numeroRpps"`
	DateCreation    time.Time `json:"dateCreation"`
	Actif           bool      `json:"actif"`
}

func newAuthResponse(token string, p *profdomain.Professional) AuthResponse {
	return AuthResponse{
		Token:           token,
		Type:            "Bearer",
		ProfessionnelID: p.ID,
		Nom:             p.LastName,
		Prenom:          p.FirstName,
		Email:           p.Email,
		Role:            string(p.Role),
		Specialite:      p.Specialty,
		NumeroRPPS:      p.RPPSNumber,
		DateCreation:    p.CreatedAt,
		Actif:           p.Active,
	}
}

type sessionView struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	Current   bool      `json:"current"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Revoked *int64 `json:"revoked,omitempty"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := interceptors.ClientIP(r)
	decision, err := h.limiter.Allow(ctx, ip)
	if err != nil {
		h.logger.WarnContext(ctx, "login rate limiter unavailable", "error", err)
	} else if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
		httpx.WriteError(w, http.StatusTooManyRequests, httpx.CodeTooManyRequests, msgTooManyAttempts)
		return
	}

	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadRequest, err.Error())
		return
	}
	res, err := h.auth.Login(ctx, req.Email, req.Password, sessiondomain.Origin{
		UserAgent: r.UserAgent(),
		IPAddress: ip,
	})
	switch {
	case errors.Is(err, identityservice.ErrInvalidCredentials), errors.Is(err, identityservice.ErrInactiveProfessional):
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeInvalidCredentials, msgInvalidCredentials)
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "login failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, msgInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newAuthResponse(res.Token, res.Professional))
}

// Validate handles GET /auth/validate. The gate has already validated the bearer token.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	p, ok := interceptors.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthenticated, msgUnauthenticated)
		return
	}
	prof, err := h.auth.Profile(r.Context(), p.Email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "load profile", "email", p.Email, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, msgInternal)
		return
	}
	if prof == nil {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthenticated, msgUnauthenticated)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newAuthResponse(p.Token, prof))
}

// Logout handles POST /auth/logout. It always answers 200 so clients can clear state unconditionally.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	email := ""
	token := httpx.BearerToken(r)
	if p, ok := interceptors.PrincipalFrom(r.Context()); ok {
		email, token = p.Email, p.Token
	}
	if err := h.auth.Logout(r.Context(), email, token); err != nil {
		h.logger.WarnContext(r.Context(), "logout revoke failed", "error", err)
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Logged out"})
}

// LogoutAll handles POST /auth/logout-all.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := interceptors.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthenticated, msgUnauthenticated)
		return
	}
	n, err := h.auth.LogoutAll(r.Context(), p.Email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "logout-all failed", "email", p.Email, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, msgInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Success: true, Message: "All sessions revoked", Revoked: &n})
}

// Sessions handles GET /auth/sessions. Tokens are never returned.
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	p, ok := interceptors.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthenticated, msgUnauthenticated)
		return
	}
	list, err := h.auth.Sessions(r.Context(), p.Email)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list sessions", "email", p.Email, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, msgInternal)
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, s := range list {
		out = append(out, sessionView{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			UserAgent: s.Origin.UserAgent,
			IPAddress: s.Origin.IPAddress,
			Current:   s.ID == p.SessionID,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
