package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"nfc4care/backend/internal/audit/domain"
	"nfc4care/backend/internal/telemetry"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByActor(context.Context, string, string, int, int) ([]*domain.AuditLog, error) {
	return m.entries, nil
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

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, func(context.Context) string { return "192.168.1.1" })

	logger.LogEvent(context.Background(), "doctor@example.com", domain.ActionSessionIssued, "session", Metadata{"superseded": 2})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.Actor != "doctor@example.com" {
		t.Errorf("actor = %q", entry.Actor)
	}
	if entry.Action != domain.ActionSessionIssued || entry.Resource != "session" {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	var meta map[string]int
	if err := json.Unmarshal([]byte(entry.Metadata), &meta); err != nil || meta["superseded"] != 2 {
		t.Errorf("metadata = %q (%v)", entry.Metadata, err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Error("ID and CreatedAt should be set")
	}
}

func TestLogger_LogEvent_Defaults(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "", domain.ActionLoginFailure, "session", nil)

	entry := repo.entries[0]
	if entry.IP != "unknown" {
		t.Errorf("ip = %q, want unknown", entry.IP)
	}
	if entry.Actor != domain.SystemActor {
		t.Errorf("actor = %q, want %q", entry.Actor, domain.SystemActor)
	}
	if entry.Metadata != "" {
		t.Errorf("metadata = %q, want empty", entry.Metadata)
	}
}

func TestLogger_LogEvent_EmitsTelemetry(t *testing.T) {
	em := &chanEmitter{events: make(chan *telemetry.Event, 1)}
	logger := NewLogger(&mockAuditRepo{}, nil, WithEmitter(em))

	logger.LogEvent(context.Background(), "doctor@example.com", domain.ActionLogout, "session", nil)

	select {
	case e := <-em.events:
		if e.Action != domain.ActionLogout || e.Actor != "doctor@example.com" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no telemetry event emitted")
	}
}

func TestLogger_LogEvent_RepositoryError(t *testing.T) {
	logger := NewLogger(&mockAuditRepo{createErr: errors.New("database error")}, nil)
	logger.LogEvent(context.Background(), "doctor@example.com", domain.ActionLogout, "session", nil)
}

func TestLogger_LogEvent_NilRepo(t *testing.T) {
	NewLogger(nil, nil).LogEvent(context.Background(), "a", "b", "c", nil)
	var l *Logger
	l.LogEvent(context.Background(), "a", "b", "c", nil)
	Nop{}.LogEvent(context.Background(), "a", "b", "c", nil)
}
