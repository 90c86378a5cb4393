package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/covenant/pkg/evidence"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresConfig contains configuration for the PostgreSQL storage backend.
type PostgresConfig struct {
	// DSN is a PostgreSQL connection string or URL.
	DSN string

	// MaxConns is the maximum pool size.
	// Default: 10
	MaxConns int32

	// MinConns is the number of connections kept open.
	// Default: 1
	MinConns int32

	// MaxConnIdleTime closes idle connections after this duration.
	// Default: 5 minutes
	MaxConnIdleTime time.Duration

	// ConnectTimeout bounds the initial ping.
	// Default: 5 seconds
	ConnectTimeout time.Duration
}

// DefaultPostgresConfig returns the default PostgreSQL configuration.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxConns:        10,
		MinConns:        1,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// PostgresStorage implements evidence.Storage on PostgreSQL.
type PostgresStorage struct {
	pool    *pgxpool.Pool
	dialect dialect
	logger  *slog.Logger
}

// NewPostgresStorage connects, pings and installs the schema.
func NewPostgresStorage(ctx context.Context, config *PostgresConfig) (*PostgresStorage, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	poolConfig, err := poolConfigFor(config)
	if err != nil {
		return nil, evidence.NewStorageError("postgres", "parse_config", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, evidence.NewStorageError("postgres", "connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	err = pool.Ping(pingCtx)
	cancel()
	if err != nil {
		pool.Close()
		return nil, evidence.NewStorageError("postgres", "ping", err)
	}

	s := &PostgresStorage{
		pool: pool,
		dialect: dialect{
			placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
			timeArg: func(q *evidence.Query, start bool) any {
				if start {
					return q.StartTime.UTC()
				}
				return q.EndTime.UTC()
			},
		},
		logger: slog.Default().With("component", "evidence.storage.postgres"),
	}

	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s.logger.Info("PostgreSQL storage initialized",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
		"max_conns", poolConfig.MaxConns,
	)
	return s, nil
}

func poolConfigFor(config *PostgresConfig) (*pgxpool.Config, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, err
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "covenant"
	return poolConfig, nil
}

func (s *PostgresStorage) initialize(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return evidence.NewStorageError("postgres", "create_schema", err)
		}
	}
	if _, err := s.pool.Exec(ctx, insertSchemaVersionPostgres, SchemaVersion); err != nil {
		return evidence.NewStorageError("postgres", "insert_schema_version", err)
	}

	var version *int64
	if err := s.pool.QueryRow(ctx, getSchemaVersionPostgres).Scan(&version); err != nil {
		return evidence.NewStorageError("postgres", "get_schema_version", err)
	}
	if version == nil || *version != SchemaVersion {
		return evidence.NewStorageError("postgres", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d", SchemaVersion))
	}
	return nil
}

// Append inserts the entry inside a transaction that checks sequence continuity.
func (s *PostgresStorage) Append(ctx context.Context, entry *evidence.AuditEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return evidence.NewStorageError("postgres", "append", err)
	}
	defer tx.Rollback(ctx)

	var last int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM audit_entries`).Scan(&last); err != nil {
		return evidence.NewStorageError("postgres", "append", err)
	}
	if want := last + 1; entry.Sequence != want {
		return evidence.NewStorageError("postgres", "append",
			fmt.Errorf("%w: got sequence %d, want %d", evidence.ErrSequenceConflict, entry.Sequence, want))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.Sequence,
		entry.ID,
		entry.Timestamp.UTC(),
		entry.RequestID,
		entry.Action,
		entry.UserID,
		entry.Approved,
		entry.RiskScore,
		nonNil(entry.Violations),
		entry.RulesEvaluated,
		nonNil(entry.RuleIDs),
		entry.PolicyVersion,
		entry.PrevHash,
		entry.Hash,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = fmt.Errorf("%w: %s", evidence.ErrSequenceConflict, pgErr.Message)
		}
		return evidence.NewStorageError("postgres", "append", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return evidence.NewStorageError("postgres", "append", err)
	}
	return nil
}

// Query retrieves entries matching the query.
func (s *PostgresStorage) Query(ctx context.Context, query *evidence.Query) ([]*evidence.AuditEntry, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	where, args := buildWhere(query, s.dialect)
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM audit_entries`+where+buildSuffix(query, s.dialect), args...)
	if err != nil {
		return nil, evidence.NewStorageError("postgres", "query", err)
	}
	defer rows.Close()

	results := []*evidence.AuditEntry{}
	for rows.Next() {
		e, err := scanPostgresEntry(rows)
		if err != nil {
			return nil, evidence.NewStorageError("postgres", "scan", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, evidence.NewStorageError("postgres", "query", err)
	}
	return results, nil
}

// Count returns the number of entries matching the query filters.
func (s *PostgresStorage) Count(ctx context.Context, query *evidence.Query) (int64, error) {
	if query == nil {
		query = &evidence.Query{}
	}
	if err := query.Validate(); err != nil {
		return 0, err
	}

	where, args := buildWhere(query, s.dialect)
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_entries`+where, args...).Scan(&n); err != nil {
		return 0, evidence.NewStorageError("postgres", "count", err)
	}
	return n, nil
}

// Last returns the most recent entry, or nil when the table is empty.
func (s *PostgresStorage) Last(ctx context.Context) (*evidence.AuditEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM audit_entries ORDER BY sequence DESC LIMIT 1`)
	e, err := scanPostgresEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, evidence.NewStorageError("postgres", "last", err)
	}
	return e, nil
}

// Pool exposes the underlying pool for maintenance tooling and tests.
func (s *PostgresStorage) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresEntry(row pgx.Row) (*evidence.AuditEntry, error) {
	var e evidence.AuditEntry
	err := row.Scan(
		&e.Sequence,
		&e.ID,
		&e.Timestamp,
		&e.RequestID,
		&e.Action,
		&e.UserID,
		&e.Approved,
		&e.RiskScore,
		&e.Violations,
		&e.RulesEvaluated,
		&e.RuleIDs,
		&e.PolicyVersion,
		&e.PrevHash,
		&e.Hash,
	)
	if err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Violations = nonNil(e.Violations)
	e.RuleIDs = nonNil(e.RuleIDs)
	return &e, nil
}
