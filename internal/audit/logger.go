// Package audit records security-relevant session events. Writes are best-effort.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"nfc4care/backend/internal/audit/domain"
	auditrepo "nfc4care/backend/internal/audit/repository"
	"nfc4care/backend/internal/telemetry"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Metadata is serialized to JSON on the audit row and used as the telemetry body.
type Metadata map[string]any

// AuditLogger writes a single audit event. Used by auth, session and maintenance code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, actor, action, resource string, metadata Metadata)
}

// Logger implements AuditLogger using the audit repository, an optional event emitter and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	emitter     telemetry.EventEmitter
	ipExtractor IPExtractor
	logger      *slog.Logger
	now         func() time.Time
}

// Option customizes a Logger.
type Option func(*Logger)

// WithEmitter forwards every event to emitter as well.
func WithEmitter(emitter telemetry.EventEmitter) Option {
	return func(l *Logger) { l.emitter = emitter }
}

// WithSlog sets the logger used to report write failures.
func WithSlog(logger *slog.Logger) Option {
	return func(l *Logger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// repo and ipExtractor may be nil; a nil extractor records the IP as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, opts ...Option) *Logger {
	l := &Logger{
		repo:        repo,
		ipExtractor: ipExtractor,
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogEvent writes one audit log entry and emits it as a telemetry event.
func (l *Logger) LogEvent(ctx context.Context, actor, action, resource string, metadata Metadata) {
	if l == nil || (l.repo == nil && l.emitter == nil) {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	if actor == "" {
		actor = domain.SystemActor
	}
	var meta []byte
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			l.logger.Warn("audit: encode metadata", "action", action, "error", err)
		} else {
			meta = b
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  string(meta),
		CreatedAt: l.now(),
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			l.logger.Error("audit: failed to log event", "action", action, "resource", resource, "error", err)
		}
	}
	telemetry.EmitAsync(l.emitter, &telemetry.Event{
		Action:    action,
		Actor:     actor,
		Resource:  resource,
		IP:        ip,
		Metadata:  meta,
		CreatedAt: entry.CreatedAt,
	})
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, Metadata) {}
