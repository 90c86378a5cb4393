// Package evidence defines the append-only audit trail of enforcement decisions.
//
// Every call to the enforcement engine that reaches a decision produces exactly
// one AuditEntry. Entries are immutable once appended: storage backends expose
// no update or delete operation, and SQL backends reject UPDATE and DELETE
// statements on the audit table.
//
// # Hash Chain
//
// Each entry carries the SHA-256 of its own canonical JSON encoding (RFC 8785)
// and the hash of its predecessor:
//
//	entry[n].PrevHash == entry[n-1].Hash
//	entry[n].Hash     == sha256(jcs(entry[n] with Hash = ""))
//
// Tampering with a stored entry, or removing one, breaks the chain and is
// reported by VerifyChain.
//
// # Layout
//
//   - recorder: serializes appends and keeps the process-wide in-memory log
//   - storage: memory, SQLite and PostgreSQL backends
//   - export: JSON and CSV writers for snapshots
//   - snapshot: cron-driven periodic export of the trail to disk
package evidence
