package interceptors

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"nfc4care/backend/internal/audit"
)

// AuditRequests records an audit entry after each authenticated request.
// Requests without a principal (rejected or public) are not audited here; the gate and
// the auth handlers audit those paths themselves.
func AuditRequests(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			p, ok := PrincipalFrom(r.Context())
			if !ok || logger == nil {
				return
			}
			ar := audit.ParseRequest(r.Method, r.URL.Path)
			logger.LogEvent(r.Context(), p.Email, ar.Action, ar.Resource, audit.Metadata{
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"session_id": p.SessionID,
			})
		})
	}
}
