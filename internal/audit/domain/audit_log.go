package domain

import "time"

// Audit actions written by the session lifecycle.
const (
	ActionLoginSuccess         = "login_success"
	ActionLoginFailure         = "login_failure"
	ActionLogout               = "logout"
	ActionLogoutAll            = "logout_all"
	ActionSessionIssued        = "session_issued"
	ActionSessionRejected      = "session_rejected"
	ActionSessionsConsolidated = "sessions_consolidated"
	ActionSessionsRevokedAdmin = "sessions_revoked_admin"
)

// SystemActor is recorded for events that have no authenticated principal.
const SystemActor = "_system"

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	Actor     string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
