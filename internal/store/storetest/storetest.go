// internal/store/storetest/storetest.go

// Package storetest opens throwaway stores for tests.
package storetest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"librarian/internal/config"
	"librarian/internal/logging"
	"librarian/internal/store"
)

// PostgresEnv names the variable holding a PostgreSQL DSN. When it is set,
// tests run against that database instead of SQLite.
const PostgresEnv = "LIBRARIAN_TEST_POSTGRES_DSN"

// Open returns an empty, migrated store that is closed when t finishes.
func Open(t testing.TB) *store.Store {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "library.db"),
	}
	if dsn := os.Getenv(PostgresEnv); dsn != "" {
		cfg = config.DatabaseConfig{
			Driver:       config.DriverPostgres,
			URL:          dsn,
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		}
	}

	ctx := context.Background()
	s, err := store.Open(ctx, cfg, logging.Discard())
	if err != nil {
		if cfg.Driver == config.DriverPostgres {
			t.Skipf("skipping: could not connect to postgres: %v", err)
		}
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if cfg.Driver == config.DriverPostgres {
		stmt := "TRUNCATE " + strings.Join(store.Tables(), ", ") + " CASCADE"
		if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("truncate tables: %v", err)
		}
	}
	return s
}
