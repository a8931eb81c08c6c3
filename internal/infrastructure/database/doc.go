// Package database provides SQLite connection management for Arena Core.
//
// It wraps database/sql with WAL-mode pragmas tuned for an embedded
// single-writer deployment, embedded schema migrations and a health check
// used by the API health endpoint.
package database
