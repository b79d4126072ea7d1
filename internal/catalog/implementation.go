// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"librarian/internal/apperr"
	"librarian/internal/store"
	"librarian/internal/validation"
	"librarian/pkg/eventstore"
)

var bookColumns = []any{"book_id", "title", "author", "isbn", "genre", "quantity", "available_quantity"}

// service implements the Service interface.
type service struct {
	store      *store.Store
	eventStore *eventstore.EventStore
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewService creates a new catalog service instance.
func NewService(st *store.Store, es *eventstore.EventStore, logger *slog.Logger) Service {
	return &service{
		store:      st,
		eventStore: es,
		logger:     logger,
		tracer:     otel.Tracer("librarian/catalog"),
	}
}

// AddBook inserts a book with every copy available.
func (s *service) AddBook(ctx context.Context, nb NewBook) (*Book, error) {
	const op = "catalog.add_book"
	nb.Title = strings.TrimSpace(nb.Title)
	nb.Author = strings.TrimSpace(nb.Author)
	nb.ISBN = strings.TrimSpace(nb.ISBN)
	nb.Genre = strings.TrimSpace(nb.Genre)
	if err := validation.Struct(op, nb); err != nil {
		return nil, err
	}

	book := &Book{
		ID:                uuid.New(),
		Title:             nb.Title,
		Author:            nb.Author,
		ISBN:              nb.ISBN,
		Genre:             nb.Genre,
		Quantity:          nb.Quantity,
		AvailableQuantity: nb.Quantity,
	}

	err := s.store.WithTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := store.Exec(ctx, tx, `
			INSERT INTO books (book_id, title, author, isbn, genre, quantity, available_quantity)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, book.ID, book.Title, book.Author, book.ISBN, book.Genre, book.Quantity, book.AvailableQuantity)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return apperr.E(apperr.Integrity, op, fmt.Errorf("%w: %s", ErrDuplicateISBN, book.ISBN))
			}
			return fmt.Errorf("insert book: %w", err)
		}
		return s.record(ctx, tx, op, book.ID, "BookAdded", BookAddedEvent{
			ID:       book.ID,
			ISBN:     book.ISBN,
			Title:    book.Title,
			Author:   book.Author,
			Quantity: book.Quantity,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "book added", slog.String("book_id", book.ID.String()), slog.String("isbn", book.ISBN))
	return book, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	const op = "catalog.get_book"
	book := &Book{}
	err := store.Get(ctx, s.store.DB(), book, `
		SELECT book_id, title, author, isbn, genre, quantity, available_quantity
		FROM books
		WHERE book_id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.Validation, op, ErrBookNotFound)
	}
	if err != nil {
		return nil, store.Classify(op, fmt.Errorf("get book: %w", err))
	}
	return book, nil
}

// UpdateBook replaces title, author, genre and quantity. available_quantity
// moves by the same delta as quantity so loans already out stay counted.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, upd BookUpdate) (UpdateResult, error) {
	const op = "catalog.update_book"
	upd.Title = strings.TrimSpace(upd.Title)
	upd.Author = strings.TrimSpace(upd.Author)
	upd.Genre = strings.TrimSpace(upd.Genre)
	if err := validation.Struct(op, upd); err != nil {
		return UpdateResult{}, err
	}

	var result UpdateResult
	err := s.store.WithTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		current, err := s.lockBook(ctx, tx, op, id)
		if err != nil {
			return err
		}

		next := *current
		next.Title = upd.Title
		next.Author = upd.Author
		next.Genre = upd.Genre
		next.Quantity = upd.Quantity
		next.AvailableQuantity = current.AvailableQuantity + (upd.Quantity - current.Quantity)

		if next == *current {
			result = UpdateResult{Book: current, Changed: false}
			return nil
		}
		if next.AvailableQuantity < 0 {
			return apperr.E(apperr.Validation, op,
				fmt.Errorf("%w: %d copies on loan, requested quantity %d", ErrQuantityBelowLoans, current.OnLoan(), upd.Quantity))
		}

		ok, err := store.ExecOne(ctx, tx, `
			UPDATE books
			SET title = ?, author = ?, genre = ?, quantity = ?, available_quantity = ?
			WHERE book_id = ?
		`, next.Title, next.Author, next.Genre, next.Quantity, next.AvailableQuantity, id)
		if err != nil {
			return fmt.Errorf("update book: %w", err)
		}
		if !ok {
			return apperr.Integrityf(op, "book %s vanished during update", id)
		}

		result = UpdateResult{Book: &next, Changed: true}
		return s.record(ctx, tx, op, id, "BookUpdated", BookUpdatedEvent{
			ID:           id,
			Title:        next.Title,
			Author:       next.Author,
			Genre:        next.Genre,
			NewQuantity:  next.Quantity,
			NewAvailable: next.AvailableQuantity,
		})
	})
	if err != nil {
		return UpdateResult{}, err
	}

	if result.Changed {
		s.logger.InfoContext(ctx, "book updated", slog.String("book_id", id.String()))
	}
	return result, nil
}

// RemoveBook deletes a book that has no loans, open or closed.
func (s *service) RemoveBook(ctx context.Context, id uuid.UUID) error {
	const op = "catalog.remove_book"
	err := s.store.WithTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		book, err := s.lockBook(ctx, tx, op, id)
		if err != nil {
			return err
		}

		var open int
		if err := store.Get(ctx, tx, &open, `
			SELECT COUNT(*) FROM transactions WHERE book_id = ? AND return_date IS NULL
		`, id); err != nil {
			return fmt.Errorf("count open loans: %w", err)
		}
		if open > 0 {
			return apperr.E(apperr.Integrity, op, fmt.Errorf("%w: %d open loans", ErrBookOnLoan, open))
		}

		if _, err := store.Exec(ctx, tx, `DELETE FROM books WHERE book_id = ?`, id); err != nil {
			if store.IsForeignKeyViolation(err) {
				return apperr.E(apperr.Integrity, op, ErrBookHasHistory)
			}
			return fmt.Errorf("delete book: %w", err)
		}

		return s.record(ctx, tx, op, id, "BookRemoved", BookRemovedEvent{ID: id, ISBN: book.ISBN})
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "book removed", slog.String("book_id", id.String()))
	return nil
}

// SearchBooks finds books in the catalog.
func (s *service) SearchBooks(ctx context.Context, term string) ([]*Book, error) {
	const op = "catalog.search_books"
	term = strings.TrimSpace(term)

	ctx, span := s.tracer.Start(ctx, "catalog.search",
		trace.WithAttributes(attribute.String("search.term", term)),
	)
	defer span.End()

	ds := s.store.Builder().
		From("books").
		Select(bookColumns...).
		Order(goqu.I("title").Asc(), goqu.I("isbn").Asc())

	if term != "" {
		pattern := "%" + term + "%"
		conds := []exp.Expression{
			goqu.I("title").ILike(pattern),
			goqu.I("author").ILike(pattern),
			goqu.I("genre").ILike(pattern),
			goqu.I("isbn").Eq(term),
		}
		if id, err := uuid.Parse(term); err == nil {
			conds = append(conds, goqu.I("book_id").Eq(id.String()))
		}
		ds = ds.Where(goqu.Or(conds...))
	}

	books := []*Book{}
	if err := store.SelectDataset(ctx, s.store.DB(), &books, ds); err != nil {
		span.RecordError(err)
		return nil, store.Classify(op, fmt.Errorf("search books: %w", err))
	}

	span.SetAttributes(attribute.Int("search.results", len(books)))
	return books, nil
}

// lockBook reads a book inside tx, holding its row lock until tx ends.
func (s *service) lockBook(ctx context.Context, tx *sqlx.Tx, op string, id uuid.UUID) (*Book, error) {
	ds := s.store.Builder().
		From("books").
		Select(bookColumns...).
		Where(goqu.I("book_id").Eq(id.String())).
		ForUpdate(exp.Wait)

	book := &Book{}
	err := store.GetDataset(ctx, tx, book, ds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.Validation, op, ErrBookNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read book: %w", err)
	}
	return book, nil
}

func (s *service) record(ctx context.Context, tx *sqlx.Tx, op string, id uuid.UUID, eventType string, payload any) error {
	err := s.eventStore.Record(ctx, tx, id, aggregateType, eventType, payload)
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return apperr.E(apperr.Integrity, op, fmt.Errorf("record %s: %w", eventType, err))
	}
	if err != nil {
		return fmt.Errorf("record %s: %w", eventType, err)
	}
	return nil
}
