// Package telemetry carries session lifecycle events to an external sink.
package telemetry

import (
	"context"
	"time"
)

// Event is one session lifecycle event: a login, a rejection, a revocation or a maintenance pass.
type Event struct {
	Action    string
	Actor     string // principal email, or empty for system actions
	Resource  string
	SessionID string
	IP        string
	Metadata  []byte // JSON document; may be nil
	CreatedAt time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
