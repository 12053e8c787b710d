// Package storage provides persistence for job history.
//
// This package includes:
//   - GormStore: a GORM-based core.HistoryStore supporting SQLite and PostgreSQL
//   - connection pool configuration helpers
//
// The HistoryStore interface is defined in pkg/core and must be implemented
// by any custom storage backend.
package storage
