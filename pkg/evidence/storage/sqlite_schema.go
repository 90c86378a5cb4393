package storage

// SchemaVersion is the current audit database schema version.
const SchemaVersion = 1

// sqliteTimeLayout is fixed-width so stored timestamps sort lexically.
// Entries are normalized to UTC at microsecond precision before storage.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

// sqliteSchema creates the audit table, its indexes and the triggers that make
// it append-only. Statements are executed one at a time.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit_entries (
    sequence INTEGER PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    recorded_at TEXT NOT NULL,
    request_id TEXT NOT NULL,
    action TEXT NOT NULL,
    user_id TEXT NOT NULL,
    approved INTEGER NOT NULL,
    risk_score REAL NOT NULL CHECK (risk_score >= 0),
    violations TEXT NOT NULL,
    rules_evaluated INTEGER NOT NULL,
    rule_ids TEXT NOT NULL,
    policy_version TEXT NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_recorded_at ON audit_entries(recorded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_entries(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_entries(request_id)`,
	`CREATE TRIGGER IF NOT EXISTS audit_entries_no_update
BEFORE UPDATE ON audit_entries
BEGIN
    SELECT RAISE(ABORT, 'audit entries are append-only');
END`,
	`CREATE TRIGGER IF NOT EXISTS audit_entries_no_delete
BEFORE DELETE ON audit_entries
BEGIN
    SELECT RAISE(ABORT, 'audit entries are append-only');
END`,
	`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

const (
	insertSchemaVersionSQLite = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`
	getSchemaVersionSQLite    = `SELECT MAX(version) FROM schema_version`
)

// postgresSchema is the PostgreSQL equivalent of sqliteSchema.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit_entries (
    sequence BIGINT PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    recorded_at TIMESTAMPTZ NOT NULL,
    request_id TEXT NOT NULL,
    action TEXT NOT NULL,
    user_id TEXT NOT NULL,
    approved BOOLEAN NOT NULL,
    risk_score DOUBLE PRECISION NOT NULL CHECK (risk_score >= 0),
    violations TEXT[] NOT NULL,
    rules_evaluated INTEGER NOT NULL,
    rule_ids TEXT[] NOT NULL,
    policy_version TEXT NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_recorded_at ON audit_entries(recorded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_entries(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_entries(request_id)`,
	`CREATE OR REPLACE FUNCTION covenant_audit_append_only() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'audit entries are append-only';
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS audit_entries_append_only ON audit_entries`,
	`CREATE TRIGGER audit_entries_append_only
BEFORE UPDATE OR DELETE ON audit_entries
FOR EACH ROW EXECUTE FUNCTION covenant_audit_append_only()`,
	`DROP TRIGGER IF EXISTS audit_entries_no_truncate ON audit_entries`,
	`CREATE TRIGGER audit_entries_no_truncate
BEFORE TRUNCATE ON audit_entries
FOR EACH STATEMENT EXECUTE FUNCTION covenant_audit_append_only()`,
	`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
}

const (
	insertSchemaVersionPostgres = `INSERT INTO schema_version (version) VALUES ($1) ON CONFLICT DO NOTHING`
	getSchemaVersionPostgres    = `SELECT MAX(version) FROM schema_version`
)
