package interceptors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"nfc4care/backend/internal/audit"
	"nfc4care/backend/internal/telemetry"
)

type auditCall struct {
	actor, action, resource string
	meta                    audit.Metadata
}

type recordingAudit struct {
	calls []auditCall
}

func (r *recordingAudit) LogEvent(_ context.Context, actor, action, resource string, md audit.Metadata) {
	r.calls = append(r.calls, auditCall{actor, action, resource, md})
}

func TestAuditRequests_OnlyAuthenticated(t *testing.T) {
	rec := &recordingAudit{}
	h := AuditRequests(rec)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/patients/42", nil))
	if len(rec.calls) != 0 {
		t.Fatalf("unauthenticated request audited: %+v", rec.calls)
	}

	req := httptest.NewRequest(http.MethodGet, "/patients/42", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &Principal{Email: "doctor@example.com", SessionID: "s1"}))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(rec.calls) != 1 {
		t.Fatalf("expected 1 audit call, got %d", len(rec.calls))
	}
	c := rec.calls[0]
	if c.actor != "doctor@example.com" || c.action != "get" || c.resource != "patients" {
		t.Errorf("call = %+v", c)
	}
	if c.meta["status"] != http.StatusOK || c.meta["session_id"] != "s1" {
		t.Errorf("metadata = %v", c.meta)
	}
}

type chanEmitter struct {
	mu     sync.Mutex
	events chan *telemetry.Event
}

func (c *chanEmitter) Emit(_ context.Context, e *telemetry.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events <- e
	return nil
}

func TestRequestTelemetry(t *testing.T) {
	em := &chanEmitter{events: make(chan *telemetry.Event, 2)}
	h := RequestTelemetry(em, map[string]bool{"/healthz": true})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	req := httptest.NewRequest(http.MethodPost, "/consultations", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &Principal{Email: "doctor@example.com", SessionID: "s1"}))
	h.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case e := <-em.events:
		if e.Action != "http_request" || e.Resource != "/consultations" || e.Actor != "doctor@example.com" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
	}
	select {
	case e := <-em.events:
		t.Errorf("skipped path emitted: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}
