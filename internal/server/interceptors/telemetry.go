package interceptors

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"nfc4care/backend/internal/telemetry"
)

// httpRequestMetadata is the JSON shape stored in Event.Metadata for http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	DurationMs int64  `json:"duration_ms"`
}

// RequestTelemetry emits an http_request event after each request. Best-effort: emit
// failures are logged and never affect the response. Paths in skip are not emitted.
func RequestTelemetry(emitter telemetry.EventEmitter, skip map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if emitter == nil || skip[r.URL.Path] {
				return
			}
			meta, _ := json.Marshal(httpRequestMetadata{
				Method:     r.Method,
				Path:       r.URL.Path,
				Status:     ww.Status(),
				DurationMs: time.Since(start).Milliseconds(),
			})
			event := &telemetry.Event{
				Action:    "http_request",
				Resource:  r.URL.Path,
				IP:        ClientIPFrom(r.Context()),
				Metadata:  meta,
				CreatedAt: time.Now().UTC(),
			}
			if p, ok := PrincipalFrom(r.Context()); ok {
				event.Actor = p.Email
				event.SessionID = p.SessionID
			}
			telemetry.EmitAsync(emitter, event)
		})
	}
}
