// Package handler exposes administrative session operations over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"nfc4care/backend/internal/audit"
	auditdomain "nfc4care/backend/internal/audit/domain"
	"nfc4care/backend/internal/server/httpx"
	"nfc4care/backend/internal/server/interceptors"
	"nfc4care/backend/internal/session/domain"
	"nfc4care/backend/internal/session/maintenance"
	"nfc4care/backend/internal/session/repository"
)

const msgInternal = "An internal error occurred"

// Sessions is the part of the session authority the admin surface needs.
type Sessions interface {
	ListSessions(ctx context.Context, f repository.Filter) ([]*domain.Session, error)
	RevokeAll(ctx context.Context, email string) (int64, error)
}

// Maintenance runs the scheduler's tasks on demand.
type Maintenance interface {
	RunSweep(ctx context.Context) (maintenance.SweepReport, error)
	RunConsolidation(ctx context.Context) (maintenance.ConsolidationReport, error)
}

// AdminHandler serves /admin session endpoints. Authorization is enforced by the router.
type AdminHandler struct {
	sessions    Sessions
	maintenance Maintenance
	audit       audit.AuditLogger
	logger      *slog.Logger
}

// NewAdminHandler returns an AdminHandler. auditLogger and logger may be nil.
func NewAdminHandler(sessions Sessions, m Maintenance, auditLogger audit.AuditLogger, logger *slog.Logger) *AdminHandler {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{sessions: sessions, maintenance: m, audit: auditLogger, logger: logger}
}

// Routes mounts the handlers on a fresh router, relative to /admin.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/sessions", h.List)
	r.Post("/sessions/sweep", h.Sweep)
	r.Post("/sessions/consolidate", h.Consolidate)
	r.Post("/professionals/{email}/revoke-sessions", h.RevokeSessions)
	return r
}

// SessionView is a session record without its token.
type SessionView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Revoked   bool      `json:"revoked"`
	Expired   bool      `json:"expired"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
}

type revokeResponse struct {
	Success bool   `json:"success"`
	Email   string `json:"email"`
	Revoked int64  `json:"revoked"`
}

// List handles GET /admin/sessions?email=&live=&limit=&offset=.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.Filter{Email: strings.TrimSpace(q.Get("email"))}
	if v := q.Get("live"); v != "" {
		live, err := strconv.ParseBool(v)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadRequest, "live must be a boolean")
			return
		}
		f.LiveOnly = live
	}
	var ok bool
	if f.Limit, ok = intParam(q.Get("limit")); !ok {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadRequest, "limit must be a non-negative integer")
		return
	}
	if f.Offset, ok = intParam(q.Get("offset")); !ok {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadRequest, "offset must be a non-negative integer")
		return
	}

	list, err := h.sessions.ListSessions(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "admin list sessions", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, msgInternal)
		return
	}
	out := make([]SessionView, 0, len(list))
	for _, s := range list {
		out = append(out, SessionView{
			ID:        s.ID,
			Email:     s.Email,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			Revoked:   s.Revoked,
			Expired:   s.Expired,
			UserAgent: s.Origin.UserAgent,
			IPAddress: s.Origin.IPAddress,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// Sweep handles POST /admin/sessions/sweep.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.maintenance.RunSweep(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "admin sweep", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, msgInternal)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

// Consolidate handles POST /admin/sessions/consolidate. Per-principal failures are
// reported in the body; only a failure to enumerate principals is an error response.
func (h *AdminHandler) Consolidate(w http.ResponseWriter, r *http.Request) {
	report, err := h.maintenance.RunConsolidation(r.Context())
	if err != nil && report.Principals == 0 {
		h.logger.ErrorContext(r.Context(), "admin consolidate", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, msgInternal)
		return
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "admin consolidate partial failure", "failures", report.Failures, "error", err)
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

// RevokeSessions handles POST /admin/professionals/{email}/revoke-sessions.
func (h *AdminHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := strings.TrimSpace(chi.URLParam(r, "email"))
	if email == "" {
		httpx.WriteError(w, http.StatusBadRequest, httpx.CodeBadRequest, "email is required")
		return
	}
	n, err := h.sessions.RevokeAll(ctx, email)
	if err != nil {
		h.logger.ErrorContext(ctx, "admin revoke sessions", "email", email, "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, msgInternal)
		return
	}
	actor := auditdomain.SystemActor
	if p, ok := interceptors.PrincipalFrom(ctx); ok {
		actor = p.Email
	}
	h.audit.LogEvent(ctx, actor, auditdomain.ActionSessionsRevokedAdmin, "session",
		audit.Metadata{"target": email, "revoked": n})
	httpx.WriteJSON(w, http.StatusOK, revokeResponse{Success: true, Email: email, Revoked: n})
}

func intParam(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
