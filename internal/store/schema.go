// internal/store/schema.go
package store

import (
	"context"
	"fmt"

	"librarian/internal/apperr"
	"librarian/internal/config"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		book_id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT NOT NULL UNIQUE,
		genre TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		available_quantity INTEGER NOT NULL,
		CONSTRAINT books_available_range CHECK (available_quantity >= 0 AND available_quantity <= quantity)
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		member_id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone_number TEXT NOT NULL DEFAULT '',
		registration_date DATE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id UUID PRIMARY KEY,
		book_id UUID NOT NULL REFERENCES books (book_id) ON DELETE RESTRICT,
		member_id UUID NOT NULL REFERENCES members (member_id) ON DELETE RESTRICT,
		issue_date DATE NOT NULL,
		due_date DATE NOT NULL,
		return_date DATE,
		fine_amount NUMERIC(10, 2) NOT NULL DEFAULT 0 CHECK (fine_amount >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_open_idx
		ON transactions (book_id, member_id) WHERE return_date IS NULL`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		aggregate_id UUID NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_data JSONB NOT NULL,
		metadata JSONB,
		version INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (aggregate_id, version)
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		book_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL,
		isbn TEXT NOT NULL UNIQUE,
		genre TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		available_quantity INTEGER NOT NULL,
		CHECK (available_quantity >= 0 AND available_quantity <= quantity)
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		member_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone_number TEXT NOT NULL DEFAULT '',
		registration_date DATE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL REFERENCES books (book_id) ON DELETE RESTRICT,
		member_id TEXT NOT NULL REFERENCES members (member_id) ON DELETE RESTRICT,
		issue_date DATE NOT NULL,
		due_date DATE NOT NULL,
		return_date DATE,
		fine_amount NUMERIC NOT NULL DEFAULT 0 CHECK (fine_amount >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_open_idx
		ON transactions (book_id, member_id) WHERE return_date IS NULL`,
	`CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		aggregate_id TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_data TEXT NOT NULL,
		metadata TEXT,
		version INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (aggregate_id, version)
	)`,
}

// Migrate creates any missing table. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.Driver() == config.DriverSQLite {
		stmts = sqliteSchema
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Classify("store.migrate", fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return apperr.E(apperr.Unexpected, "store.migrate", fmt.Errorf("apply schema statement %d: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return Classify("store.migrate", fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Tables lists the application tables, children first.
func Tables() []string {
	return []string{"events", "transactions", "users", "members", "books"}
}
