package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/apperr"
	"librarian/internal/store"
	"librarian/internal/store/storetest"
)

func insertBook(ctx context.Context, q sqlx.ExtContext, isbn string, qty, avail int) error {
	_, err := store.Exec(ctx, q, `
		INSERT INTO books (book_id, title, author, isbn, genre, quantity, available_quantity)
		VALUES (?, 'Title', 'Author', ?, '', ?, ?)
	`, uuid.NewString(), isbn, qty, avail)
	return err
}

func countBooks(t *testing.T, s *store.Store) int {
	t.Helper()
	var n int
	require.NoError(t, store.Get(context.Background(), s.DB(), &n, `SELECT COUNT(*) FROM books`))
	return n
}

func TestWithTxCommits(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	err := s.WithTx(ctx, "test.commit", func(ctx context.Context, tx *sqlx.Tx) error {
		return insertBook(ctx, tx, "isbn-1", 2, 2)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countBooks(t, s))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, "test.rollback", func(ctx context.Context, tx *sqlx.Tx) error {
		if err := insertBook(ctx, tx, "isbn-1", 2, 2); err != nil {
			return err
		}
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, apperr.Unexpected, apperr.KindOf(err))
	assert.Equal(t, 0, countBooks(t, s), "first insert must not survive")
}

func TestWithTxRecoversPanic(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	err := s.WithTx(ctx, "test.panic", func(ctx context.Context, tx *sqlx.Tx) error {
		if err := insertBook(ctx, tx, "isbn-1", 2, 2); err != nil {
			return err
		}
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Equal(t, apperr.Unexpected, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, 0, countBooks(t, s))

	// the connection must be usable again
	require.NoError(t, s.WithTx(ctx, "test.after", func(ctx context.Context, tx *sqlx.Tx) error {
		return insertBook(ctx, tx, "isbn-2", 1, 1)
	}))
	assert.Equal(t, 1, countBooks(t, s))
}

func TestWithTxKeepsClassification(t *testing.T) {
	s := storetest.Open(t)

	err := s.WithTx(context.Background(), "test.validation", func(ctx context.Context, tx *sqlx.Tx) error {
		return apperr.Validationf("catalog.get", "book not found")
	})
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.Equal(t, "book not found", apperr.Reason(err))
}

func TestConstraintViolationsAreIntegrity(t *testing.T) {
	s := storetest.Open(t)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, "seed", func(ctx context.Context, tx *sqlx.Tx) error {
		return insertBook(ctx, tx, "dup", 1, 1)
	}))

	t.Run("unique", func(t *testing.T) {
		err := s.WithTx(ctx, "dup", func(ctx context.Context, tx *sqlx.Tx) error {
			return insertBook(ctx, tx, "dup", 1, 1)
		})
		assert.True(t, apperr.Is(err, apperr.Integrity))
		assert.True(t, store.IsUniqueViolation(err))
	})

	t.Run("check", func(t *testing.T) {
		err := s.WithTx(ctx, "over", func(ctx context.Context, tx *sqlx.Tx) error {
			return insertBook(ctx, tx, "over", 1, 2)
		})
		assert.True(t, apperr.Is(err, apperr.Integrity))
		assert.True(t, store.IsCheckViolation(err))
	})

	t.Run("foreign key", func(t *testing.T) {
		err := s.WithTx(ctx, "orphan", func(ctx context.Context, tx *sqlx.Tx) error {
			_, err := store.Exec(ctx, tx, `
				INSERT INTO transactions (transaction_id, book_id, member_id, issue_date, due_date, fine_amount)
				VALUES (?, ?, ?, '2024-01-01', '2024-01-15', 0)
			`, uuid.NewString(), uuid.NewString(), uuid.NewString())
			return err
		})
		assert.True(t, apperr.Is(err, apperr.Integrity))
		assert.True(t, store.IsForeignKeyViolation(err))
	})

	t.Run("restricted delete", func(t *testing.T) {
		book, member := uuid.NewString(), uuid.NewString()
		require.NoError(t, s.WithTx(ctx, "history", func(ctx context.Context, tx *sqlx.Tx) error {
			if _, err := store.Exec(ctx, tx, `
				INSERT INTO books (book_id, title, author, isbn, genre, quantity, available_quantity)
				VALUES (?, 'Title', 'Author', 'kept', '', 1, 1)
			`, book); err != nil {
				return err
			}
			if _, err := store.Exec(ctx, tx, `
				INSERT INTO members (member_id, name, email, phone_number, registration_date)
				VALUES (?, 'Reader', 'reader@example.com', '', '2024-01-01')
			`, member); err != nil {
				return err
			}
			_, err := store.Exec(ctx, tx, `
				INSERT INTO transactions (transaction_id, book_id, member_id, issue_date, due_date, return_date, fine_amount)
				VALUES (?, ?, ?, '2024-01-01', '2024-01-15', '2024-01-10', 0)
			`, uuid.NewString(), book, member)
			return err
		}))

		for _, del := range []struct{ query, id string }{
			{`DELETE FROM books WHERE book_id = ?`, book},
			{`DELETE FROM members WHERE member_id = ?`, member},
		} {
			err := s.WithTx(ctx, "delete", func(ctx context.Context, tx *sqlx.Tx) error {
				_, err := store.Exec(ctx, tx, del.query, del.id)
				return err
			})
			assert.True(t, store.IsForeignKeyViolation(err), "%s: %v", del.query, err)
			assert.True(t, apperr.Is(err, apperr.Integrity))
		}
	})
}

func TestClosedStoreIsConnectionUnavailable(t *testing.T) {
	s := storetest.Open(t)
	require.NoError(t, s.Close())

	err := s.WithTx(context.Background(), "closed", func(ctx context.Context, tx *sqlx.Tx) error {
		return nil
	})
	assert.True(t, apperr.Is(err, apperr.ConnectionUnavailable), "got %v", err)
	assert.True(t, apperr.Is(s.Ping(context.Background()), apperr.ConnectionUnavailable))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := storetest.Open(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, store.Classify("op", nil))
}
