package storage_test

import (
	"context"
	"os"
	"testing"

	"mercator-hq/covenant/pkg/evidence"
	"mercator-hq/covenant/pkg/evidence/storage"
)

// postgresDSNEnv names the variable holding a disposable test database.
const postgresDSNEnv = "COVENANT_TEST_POSTGRES_DSN"

func newPostgres(t *testing.T) *storage.PostgresStorage {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}

	cfg := storage.DefaultPostgresConfig()
	cfg.DSN = dsn
	ctx := context.Background()

	// Row triggers block DELETE and TRUNCATE, so start each test from a fresh table.
	s, err := storage.NewPostgresStorage(ctx, cfg)
	if err != nil {
		t.Fatalf("NewPostgresStorage() error = %v", err)
	}
	if _, err := s.Pool().Exec(ctx, `DROP TABLE audit_entries`); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	s.Close()

	s, err = storage.NewPostgresStorage(ctx, cfg)
	if err != nil {
		t.Fatalf("NewPostgresStorage() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStorage(t *testing.T) {
	if os.Getenv(postgresDSNEnv) == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	runStorageSuite(t, func(t *testing.T) evidence.Storage {
		return newPostgres(t)
	})
}

func TestPostgresStorage_AppendOnly(t *testing.T) {
	s := newPostgres(t)
	seed(t, s)

	ctx := context.Background()
	for _, stmt := range []string{
		`UPDATE audit_entries SET approved = true`,
		`DELETE FROM audit_entries`,
		`TRUNCATE audit_entries`,
	} {
		if _, err := s.Pool().Exec(ctx, stmt); err == nil {
			t.Errorf("%q should be rejected", stmt)
		}
	}
}

func TestNewPostgresStorage_RequiresDSN(t *testing.T) {
	if _, err := storage.NewPostgresStorage(context.Background(), storage.DefaultPostgresConfig()); err == nil {
		t.Fatal("expected error without dsn")
	}
}
