// Package rbac maps routes to the professional roles allowed to reach them.
package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"nfc4care/backend/internal/policy/engine"
	profdomain "nfc4care/backend/internal/professional/domain"
	"nfc4care/backend/internal/server/httpx"
	"nfc4care/backend/internal/server/interceptors"
)

// DefaultRules is the route→role table of the API. Routes it does not cover require authentication only.
func DefaultRules() []engine.Rule {
	clinical := []string{string(profdomain.RoleDoctor), string(profdomain.RoleAdmin)}
	admin := []string{string(profdomain.RoleAdmin)}
	anyRole := []string{engine.AnyRole}
	return []engine.Rule{
		{Method: "*", Pattern: "/patients", Roles: clinical},
		{Method: "*", Pattern: "/patients/**", Roles: clinical},
		{Method: "*", Pattern: "/consultations", Roles: clinical},
		{Method: "*", Pattern: "/consultations/**", Roles: clinical},
		{Method: "*", Pattern: "/admin", Roles: admin},
		{Method: "*", Pattern: "/admin/**", Roles: admin},
		{Method: http.MethodGet, Pattern: "/auth/validate", Roles: anyRole},
		{Method: http.MethodPost, Pattern: "/auth/logout-all", Roles: anyRole},
		{Method: http.MethodGet, Pattern: "/auth/sessions", Roles: anyRole},
	}
}

// DefaultPublic lists paths reachable without a principal.
var DefaultPublic = []string{"/auth/login", "/auth/logout", "/healthz", "/readyz", "/metrics"}

// Authorizer decides whether a role may reach a route.
type Authorizer interface {
	Authorize(ctx context.Context, in engine.Input) (engine.Decision, error)
}

// Option configures the Authorize middleware.
type Option func(*options)

type options struct {
	public map[string]bool
	logger *slog.Logger
}

// WithPublic replaces the set of paths that skip authorization entirely.
func WithPublic(paths ...string) Option {
	return func(o *options) {
		o.public = make(map[string]bool, len(paths))
		for _, p := range paths {
			o.public[p] = true
		}
	}
}

// WithLogger sets the logger for denied and failed decisions.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Authorize returns middleware enforcing the route table. It must run after the Gate.
// No principal: 401 unauthenticated. A matched rule without the caller's role: 403 forbidden.
// Evaluation errors fail closed with 500.
func Authorize(az Authorizer, opts ...Option) func(http.Handler) http.Handler {
	o := &options{logger: slog.Default()}
	WithPublic(DefaultPublic...)(o)
	for _, opt := range opts {
		opt(o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := normalizePath(r.URL.Path)
			if o.public[path] {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			p, ok := interceptors.PrincipalFrom(ctx)
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthenticated, "Authentication required.")
				return
			}
			d, err := az.Authorize(ctx, engine.Input{Method: r.Method, Path: path, Role: string(p.Role)})
			if err != nil {
				o.logger.ErrorContext(ctx, "authorization failed", "path", path, "error", err)
				httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "Authorization could not be evaluated.")
				return
			}
			if d.Matched && !d.Allow {
				o.logger.InfoContext(ctx, "access denied", "path", path, "method", r.Method,
					"role", string(p.Role), "email", p.Email)
				httpx.WriteError(w, http.StatusForbidden, httpx.CodeForbidden, "Your role does not allow this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
