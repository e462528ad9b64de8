// Package server assembles the HTTP API.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nfc4care/backend/internal/audit"
	healthhandler "nfc4care/backend/internal/health/handler"
	identityhandler "nfc4care/backend/internal/identity/handler"
	"nfc4care/backend/internal/logging"
	"nfc4care/backend/internal/platform/rbac"
	"nfc4care/backend/internal/ratelimit"
	"nfc4care/backend/internal/server/interceptors"
	sessionhandler "nfc4care/backend/internal/session/handler"
	"nfc4care/backend/internal/telemetry"
)

// Deps holds the components mounted by NewRouter.
type Deps struct {
	Logger *slog.Logger

	// Auth serves /auth. Required.
	Auth identityhandler.AuthService
	// Validator and Principals back the request gate. Required.
	Validator  interceptors.Validator
	Principals interceptors.PrincipalResolver
	// Authorizer enforces the route→role table. Required.
	Authorizer rbac.Authorizer

	// Sessions and Maintenance back /admin. If either is nil, /admin is not mounted.
	Sessions    sessionhandler.Sessions
	Maintenance sessionhandler.Maintenance

	// TrustedProxies lists peers whose forwarding headers are believed. If nil, the
	// socket address keys the login limiter, audit and session origin.
	TrustedProxies *interceptors.TrustedProxies

	// LoginLimiter throttles /auth/login. If nil, login is not throttled.
	LoginLimiter ratelimit.Limiter
	// Audit receives request and admin audit events. If nil, nothing is audited.
	Audit audit.AuditLogger
	// Emitter receives one http_request event per request. If nil, no events are emitted.
	Emitter telemetry.EventEmitter

	// Health serves /healthz and /readyz. If nil, probes always answer 200.
	Health *healthhandler.Server
	// Metrics serves /metrics (e.g. promhttp.HandlerFor). If nil, /metrics is not mounted.
	Metrics http.Handler
	// Records serves /patients and /consultations. If nil, those routes answer 404.
	Records http.Handler

	// TraceOperation names the otelhttp server span. If empty, the router is not instrumented.
	TraceOperation string
}

// NewRouter returns the API handler.
//
// Probes and /metrics sit outside the gated group and are never audited. Inside it the
// gate runs first so request audit, telemetry and authorization see the attached principal.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	health := d.Health
	if health == nil {
		health = healthhandler.NewServer(nil, nil)
	}
	auditLogger := d.Audit
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logging.RequestLogger(logging.WithComponent(logger, "http")))
	r.Use(interceptors.ClientIPMiddleware(d.TrustedProxies))

	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(interceptors.Gate(d.Validator, d.Principals, logging.WithComponent(logger, "gate")))
		r.Use(interceptors.AuditRequests(auditLogger))
		r.Use(interceptors.RequestTelemetry(d.Emitter, nil))
		r.Use(rbac.Authorize(d.Authorizer, rbac.WithLogger(logging.WithComponent(logger, "rbac"))))

		r.Mount("/auth", identityhandler.NewAuthHandler(d.Auth, d.LoginLimiter,
			logging.WithComponent(logger, "auth")).Routes())

		if d.Sessions != nil && d.Maintenance != nil {
			r.Mount("/admin", sessionhandler.NewAdminHandler(d.Sessions, d.Maintenance, auditLogger,
				logging.WithComponent(logger, "admin")).Routes())
		}
		if d.Records != nil {
			r.Mount("/patients", d.Records)
			r.Mount("/consultations", d.Records)
		}
	})

	if d.TraceOperation == "" {
		return r
	}
	return otelhttp.NewHandler(r, d.TraceOperation)
}
