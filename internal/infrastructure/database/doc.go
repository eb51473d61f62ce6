// Package database provides the SQLite mirror store for Lockerweb Core.
//
// The database is a best-effort display/audit mirror of in-memory locker
// state; the registry remains authoritative for liveness and routing.
// The package wraps database/sql with lifecycle management, health checks
// and an embedded-migration runner.
package database
