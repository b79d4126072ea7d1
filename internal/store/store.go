// internal/store/store.go

// Package store owns the relational connection pool and the unit-of-work
// boundary every multi-statement mutation runs inside.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"librarian/internal/apperr"
	"librarian/internal/config"
)

// Store wraps a pooled connection with its SQL dialect.
type Store struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Open connects to the configured database, verifies the connection and
// applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if cfg.Driver == config.DriverSQLite && cfg.URL == "" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, apperr.E(apperr.ConnectionUnavailable, "store.open", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// One writer at a time; also keeps every statement of a unit of work
		// on the same connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperr.E(apperr.ConnectionUnavailable, "store.open", fmt.Errorf("ping database: %w", err))
	}

	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database connected", slog.Any("target", cfg.Redacted()))
	return s, nil
}

// New wraps an already opened handle. The driver name of db selects the dialect.
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:      db,
		dialect: goqu.Dialect(db.DriverName()),
		tracer:  otel.Tracer("librarian/store"),
		logger:  logger,
	}
}

// DB returns the pooled handle for single-statement reads.
func (s *Store) DB() *sqlx.DB { return s.db }

// Driver returns the database/sql driver name.
func (s *Store) Driver() string { return s.db.DriverName() }

// Builder returns a query builder for the store's dialect.
func (s *Store) Builder() goqu.DialectWrapper { return s.dialect }

func (s *Store) Ping(ctx context.Context) error {
	return Classify("store.ping", s.db.PingContext(ctx))
}

func (s *Store) Close() error { return s.db.Close() }

// TxFunc is the body of a unit of work.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// WithTx runs fn as one all-or-nothing unit of work. The transaction commits
// only when fn returns nil; every other exit, including a panic, rolls back.
// The returned error is always classified.
func (s *Store) WithTx(ctx context.Context, op string, fn TxFunc) (err error) {
	ctx, span := s.tracer.Start(ctx, "store.unit_of_work",
		trace.WithAttributes(attribute.String("op", op)),
	)
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		err = Classify(op, fmt.Errorf("begin transaction: %w", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return err
	}

	committed := false
	defer func() {
		if p := recover(); p != nil {
			err = apperr.E(apperr.Unexpected, op, fmt.Errorf("panic in unit of work: %v", p))
		}
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("rollback failed", slog.String("op", op), slog.Any("error", rbErr))
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, apperr.KindOf(err).String())
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return Classify(op, err)
	}
	if err = tx.Commit(); err != nil {
		return Classify(op, fmt.Errorf("commit transaction: %w", err))
	}
	committed = true
	return nil
}

// Get runs a single-row query written with ? placeholders.
func Get(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q, dest, q.Rebind(query), args...)
}

// Select runs a multi-row query written with ? placeholders.
func Select(ctx context.Context, q sqlx.ExtContext, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, q.Rebind(query), args...)
}

// Exec runs a statement written with ? placeholders.
func Exec(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, q.Rebind(query), args...)
}

// GetDataset runs a single-row query built with goqu. Locking clauses such as
// ForUpdate render as nothing on SQLite, whose single writer connection
// serializes units of work instead.
func GetDataset(ctx context.Context, q sqlx.QueryerContext, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

// SelectDataset runs a multi-row query built with goqu.
func SelectDataset(ctx context.Context, q sqlx.QueryerContext, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// ExecOne runs a statement and reports whether exactly one row was affected.
func ExecOne(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (bool, error) {
	res, err := Exec(ctx, q, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
