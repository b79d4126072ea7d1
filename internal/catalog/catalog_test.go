package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/apperr"
	"librarian/internal/logging"
	"librarian/internal/store"
	"librarian/internal/store/storetest"
	"librarian/pkg/eventstore"
)

func newTestService(t *testing.T) (Service, *store.Store) {
	t.Helper()
	st := storetest.Open(t)
	return NewService(st, eventstore.NewEventStore(), logging.Discard()), st
}

func addBook(t *testing.T, svc Service, isbn string, qty int) *Book {
	t.Helper()
	b, err := svc.AddBook(context.Background(), NewBook{
		Title:    "The Go Programming Language",
		Author:   "Donovan",
		ISBN:     isbn,
		Genre:    "Programming",
		Quantity: qty,
	})
	require.NoError(t, err)
	return b
}

// openLoan inserts a loan row directly so catalog tests do not depend on
// circulation.
func openLoan(t *testing.T, st *store.Store, bookID uuid.UUID, returned bool) {
	t.Helper()
	ctx := context.Background()
	memberID := uuid.New()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.Exec(ctx, st.DB(), `
		INSERT INTO members (member_id, name, email, phone_number, registration_date)
		VALUES (?, 'Reader', ?, '', ?)
	`, memberID, memberID.String()+"@example.com", day)
	require.NoError(t, err)

	var returnDate any
	if returned {
		returnDate = day.AddDate(0, 0, 3)
	} else {
		_, err = store.Exec(ctx, st.DB(), `UPDATE books SET available_quantity = available_quantity - 1 WHERE book_id = ?`, bookID)
		require.NoError(t, err)
	}
	_, err = store.Exec(ctx, st.DB(), `
		INSERT INTO transactions (transaction_id, book_id, member_id, issue_date, due_date, return_date, fine_amount)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, uuid.New(), bookID, memberID, day, day.AddDate(0, 0, 14), returnDate)
	require.NoError(t, err)
}

func TestAddAndGetBook(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	b := addBook(t, svc, "978-0134190440", 3)
	assert.Equal(t, 3, b.AvailableQuantity)

	got, err := svc.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	events, err := eventstore.NewEventStore().LoadEvents(ctx, st.DB(), b.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "BookAdded", events[0].EventType)
}

func TestAddBookValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddBook(context.Background(), NewBook{Title: "  ", Author: "A", ISBN: "1", Quantity: 0})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.Contains(t, apperr.Reason(err), "title is required")
	assert.Contains(t, apperr.Reason(err), "quantity must be greater than or equal to 1")
}

func TestAddBookDuplicateISBN(t *testing.T) {
	svc, _ := newTestService(t)
	addBook(t, svc, "dup", 1)

	_, err := svc.AddBook(context.Background(), NewBook{Title: "T", Author: "A", ISBN: "dup", Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.Integrity))
	assert.ErrorIs(t, err, ErrDuplicateISBN)

	books, err := svc.SearchBooks(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, books, 1, "failed insert must leave nothing behind")
}

func TestGetBookNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetBook(context.Background(), uuid.New())
	assert.True(t, apperr.Is(err, apperr.Validation))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSearchBooks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	gopl := addBook(t, svc, "111", 1)
	_, err := svc.AddBook(ctx, NewBook{Title: "Dune", Author: "Frank Herbert", ISBN: "222", Genre: "Science Fiction", Quantity: 2})
	require.NoError(t, err)

	tests := []struct {
		term string
		want []string
	}{
		{"", []string{"Dune", "The Go Programming Language"}},
		{"dune", []string{"Dune"}},
		{"HERB", []string{"Dune"}},
		{"fiction", []string{"Dune"}},
		{"111", []string{"The Go Programming Language"}},
		{"11", nil},
		{gopl.ID.String(), []string{"The Go Programming Language"}},
		{"nothing matches", nil},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			books, err := svc.SearchBooks(ctx, tt.term)
			require.NoError(t, err)
			var titles []string
			for _, b := range books {
				titles = append(titles, b.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestUpdateBook(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	b := addBook(t, svc, "111", 3)
	openLoan(t, st, b.ID, false)

	t.Run("no-op", func(t *testing.T) {
		res, err := svc.UpdateBook(ctx, b.ID, BookUpdate{Title: b.Title, Author: b.Author, Genre: b.Genre, Quantity: 3})
		require.NoError(t, err)
		assert.False(t, res.Changed)
	})

	t.Run("quantity delta moves availability", func(t *testing.T) {
		res, err := svc.UpdateBook(ctx, b.ID, BookUpdate{Title: "New", Author: b.Author, Quantity: 5})
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, 5, res.Book.Quantity)
		assert.Equal(t, 4, res.Book.AvailableQuantity)

		res, err = svc.UpdateBook(ctx, b.ID, BookUpdate{Title: "New", Author: b.Author, Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, 0, res.Book.AvailableQuantity)
	})

	t.Run("below loans is rejected", func(t *testing.T) {
		_, err := svc.UpdateBook(ctx, b.ID, BookUpdate{Title: "New", Author: b.Author, Quantity: 0})
		assert.True(t, apperr.Is(err, apperr.Validation))
		assert.ErrorIs(t, err, ErrQuantityBelowLoans)

		got, err := svc.GetBook(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Quantity)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := svc.UpdateBook(ctx, uuid.New(), BookUpdate{Title: "T", Author: "A", Quantity: 1})
		assert.ErrorIs(t, err, ErrBookNotFound)
	})
}

func TestRemoveBook(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	t.Run("free book", func(t *testing.T) {
		b := addBook(t, svc, "free", 1)
		require.NoError(t, svc.RemoveBook(ctx, b.ID))
		_, err := svc.GetBook(ctx, b.ID)
		assert.ErrorIs(t, err, ErrBookNotFound)
	})

	t.Run("open loan", func(t *testing.T) {
		b := addBook(t, svc, "lent", 1)
		openLoan(t, st, b.ID, false)
		err := svc.RemoveBook(ctx, b.ID)
		assert.True(t, apperr.Is(err, apperr.Integrity))
		assert.ErrorIs(t, err, ErrBookOnLoan)
	})

	t.Run("closed history", func(t *testing.T) {
		b := addBook(t, svc, "history", 1)
		openLoan(t, st, b.ID, true)
		err := svc.RemoveBook(ctx, b.ID)
		assert.True(t, apperr.Is(err, apperr.Integrity))
		assert.ErrorIs(t, err, ErrBookHasHistory)

		_, err = svc.GetBook(ctx, b.ID)
		assert.NoError(t, err, "rejected delete must roll back")
	})

	t.Run("missing", func(t *testing.T) {
		assert.ErrorIs(t, svc.RemoveBook(ctx, uuid.New()), ErrBookNotFound)
	})
}

func TestHandler(t *testing.T) {
	svc, _ := newTestService(t)
	r := chi.NewRouter()
	NewHandler(svc).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/books",
		strings.NewReader(`{"title":"Dune","author":"Herbert","isbn":"1","quantity":2}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available_quantity":2`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/books",
		strings.NewReader(`{"title":"Dune","author":"Herbert","isbn":"1","quantity":2}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"ok":false,"kind":"integrity","reason":"a book with this isbn already exists: 1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books/not-a-uuid", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/books?q=dune", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isbn":"1"`)
}
