package db

import "embed"

// MigrationFS embeds the schema for professionals, sessions and audit_logs.
// Used by the migrate runner (cmd/migrate, DB_AUTO_MIGRATE, integration tests).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
