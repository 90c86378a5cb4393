package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mercator-hq/covenant/pkg/evidence"
)

// SQLite driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: "sqlite" or "sqlite3".
	// Default: "sqlite"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		Driver:       DriverModernc,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements evidence.Storage using SQLite.
type SQLiteStorage struct {
	db      *sql.DB
	config  *SQLiteConfig
	dialect dialect
	logger  *slog.Logger
}

// NewSQLiteStorage opens the database and installs the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverModernc
	}
	if config.Driver != DriverModernc && config.Driver != DriverMattn {
		return nil, evidence.NewStorageError("sqlite", "open",
			fmt.Errorf("unsupported driver %q", config.Driver))
	}

	logger := slog.Default().With("component", "evidence.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		dialect: dialect{
			placeholder: func(int) string { return "?" },
			timeArg: func(q *evidence.Query, start bool) any {
				if start {
					return q.StartTime.UTC().Format(sqliteTimeLayout)
				}
				return q.EndTime.UTC().Format(sqliteTimeLayout)
			},
			noLimit: "LIMIT -1",
		},
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

// initialize sets pragmas, creates the schema and checks its version.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return evidence.NewStorageError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return evidence.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return evidence.NewStorageError("sqlite", "create_schema", err)
		}
	}

	if _, err := s.db.Exec(insertSchemaVersionSQLite, SchemaVersion); err != nil {
		return evidence.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(getSchemaVersionSQLite).Scan(&version); err != nil {
		return evidence.NewStorageError("sqlite", "get_schema_version", err)
	}
	if version.Int64 != SchemaVersion {
		return evidence.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}

	return nil
}

// Append inserts the entry inside a transaction that checks sequence continuity.
func (s *SQLiteStorage) Append(ctx context.Context, entry *evidence.AuditEntry) error {
	violations, err := json.Marshal(nonNil(entry.Violations))
	if err != nil {
		return evidence.NewStorageError("sqlite", "append", err)
	}
	ruleIDs, err := json.Marshal(nonNil(entry.RuleIDs))
	if err != nil {
		return evidence.NewStorageError("sqlite", "append", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return evidence.NewStorageError("sqlite", "append", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(sequence) FROM audit_entries`).Scan(&last); err != nil {
		return evidence.NewStorageError("sqlite", "append", err)
	}
	if want := last.Int64 + 1; entry.Sequence != want {
		return evidence.NewStorageError("sqlite", "append",
			fmt.Errorf("%w: got sequence %d, want %d", evidence.ErrSequenceConflict, entry.Sequence, want))
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Sequence,
		entry.ID,
		entry.Timestamp.UTC().Format(sqliteTimeLayout),
		entry.RequestID,
		entry.Action,
		entry.UserID,
		entry.Approved,
		entry.RiskScore,
		string(violations),
		entry.RulesEvaluated,
		string(ruleIDs),
		entry.PolicyVersion,
		entry.PrevHash,
		entry.Hash,
	)
	if err != nil {
		return evidence.NewStorageError("sqlite", "append", err)
	}

	if err := tx.Commit(); err != nil {
		return evidence.NewStorageError("sqlite", "append", err)
	}
	return nil
}

// Query retrieves entries matching the query.
func (s *SQLiteStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.AuditEntry, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhere(query, s.dialect)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries`+where+buildSuffix(query, s.dialect), args...)
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	results := []*evidence.AuditEntry{}
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, evidence.NewStorageError("sqlite", "scan", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError("sqlite", "query", err)
	}
	return results, nil
}

// Count returns the number of entries matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	if err := query.Validate(); err != nil {
		return 0, err
	}

	where, args := buildWhere(query, s.dialect)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`+where, args...).Scan(&n); err != nil {
		return 0, evidence.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Last returns the most recent entry, or nil when the table is empty.
func (s *SQLiteStorage) Last(ctx context.Context) (*evidence.AuditEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries ORDER BY sequence DESC LIMIT 1`)
	e, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, evidence.NewStorageError("sqlite", "last", err)
	}
	return e, nil
}

// DB exposes the underlying handle for maintenance tooling and tests.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return evidence.NewStorageError("sqlite", "close", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(row rowScanner) (*evidence.AuditEntry, error) {
	var (
		e          evidence.AuditEntry
		recordedAt string
		violations string
		ruleIDs    string
	)
	err := row.Scan(
		&e.Sequence,
		&e.ID,
		&recordedAt,
		&e.RequestID,
		&e.Action,
		&e.UserID,
		&e.Approved,
		&e.RiskScore,
		&violations,
		&e.RulesEvaluated,
		&ruleIDs,
		&e.PolicyVersion,
		&e.PrevHash,
		&e.Hash,
	)
	if err != nil {
		return nil, err
	}

	ts, err := time.Parse(sqliteTimeLayout, recordedAt)
	if err != nil {
		return nil, fmt.Errorf("parse recorded_at: %w", err)
	}
	e.Timestamp = ts
	if err := json.Unmarshal([]byte(violations), &e.Violations); err != nil {
		return nil, fmt.Errorf("decode violations: %w", err)
	}
	if err := json.Unmarshal([]byte(ruleIDs), &e.RuleIDs); err != nil {
		return nil, fmt.Errorf("decode rule_ids: %w", err)
	}
	e.Violations = nonNil(e.Violations)
	e.RuleIDs = nonNil(e.RuleIDs)
	return &e, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
