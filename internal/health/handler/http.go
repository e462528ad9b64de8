package handler

import (
	"context"
	"net/http"
	"time"

	"nfc4care/backend/internal/server/httpx"
)

const checkTimeout = 2 * time.Second

// Pinger checks database connectivity. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the authorization engine can evaluate requests.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server serves liveness and readiness probes for Kubernetes and load balancers.
type Server struct {
	pinger Pinger
	policy PolicyChecker
}

// NewServer returns a health Server. Nil checkers are skipped.
func NewServer(pinger Pinger, policy PolicyChecker) *Server {
	return &Server{pinger: pinger, policy: policy}
}

// Status is the readiness response body.
type Status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live handles GET /healthz. It never touches dependencies.
func (s *Server) Live(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, Status{Status: "ok"})
}

// Ready handles GET /readyz: 200 when every configured check passes, 503 otherwise.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			checks["database"] = "unavailable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			checks["policy"] = "unavailable"
			healthy = false
		} else {
			checks["policy"] = "ok"
		}
	}
	if !healthy {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, Status{Status: "unavailable", Checks: checks})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, Status{Status: "ok", Checks: checks})
}
