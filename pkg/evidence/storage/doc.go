// Package storage provides audit trail backends.
//
//   - MemoryStorage keeps entries in a slice; it is the default and is used in tests.
//   - SQLiteStorage persists to a local database through either the pure-Go
//     driver ("sqlite", modernc.org/sqlite) or the cgo driver ("sqlite3",
//     github.com/mattn/go-sqlite3).
//   - PostgresStorage persists to PostgreSQL through a pgx connection pool.
//
// Every backend is append-only. SQL backends install triggers that abort
// UPDATE and DELETE statements on the audit table, so the guarantee holds even
// for writers that bypass this package.
package storage
