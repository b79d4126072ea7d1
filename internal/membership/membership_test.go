package membership

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
	"librarian/internal/clock"
	"librarian/internal/logging"
	"librarian/internal/store"
	"librarian/internal/store/storetest"
	"librarian/pkg/eventstore"
)

var registrationDay = time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (Service, *store.Store) {
	t.Helper()
	st := storetest.Open(t)
	clk := clock.Fixed(registrationDay.Add(15 * time.Hour))
	return NewService(st, eventstore.NewEventStore(), clk, logging.Discard()), st
}

func register(t *testing.T, svc Service, name, email string) *Member {
	t.Helper()
	m, err := svc.RegisterMember(context.Background(), NewMember{Name: name, Email: email, PhoneNumber: "555-0100"})
	require.NoError(t, err)
	return m
}

// addLoan inserts a book and a loan for m directly.
func addLoan(t *testing.T, st *store.Store, memberID uuid.UUID, returned bool) {
	t.Helper()
	ctx := context.Background()
	bookID := uuid.New()
	_, err := store.Exec(ctx, st.DB(), `
		INSERT INTO books (book_id, title, author, isbn, genre, quantity, available_quantity)
		VALUES (?, 'T', 'A', ?, '', 1, ?)
	`, bookID, bookID.String(), map[bool]int{true: 1, false: 0}[returned])
	require.NoError(t, err)

	var returnDate any
	if returned {
		returnDate = registrationDay.AddDate(0, 0, 2)
	}
	_, err = store.Exec(ctx, st.DB(), `
		INSERT INTO transactions (transaction_id, book_id, member_id, issue_date, due_date, return_date, fine_amount)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, uuid.New(), bookID, memberID, registrationDay, registrationDay.AddDate(0, 0, 14), returnDate)
	require.NoError(t, err)
}

func TestRegisterAndGetMember(t *testing.T) {
	svc, _ := newTestService(t)

	m := register(t, svc, "  Ada Lovelace ", "Ada@Example.com")
	assert.Equal(t, "Ada Lovelace", m.Name)
	assert.Equal(t, "ada@example.com", m.Email)
	assert.Equal(t, registrationDay, m.RegistrationDate)

	got, err := svc.GetMember(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Email, got.Email)
	assert.True(t, registrationDay.Equal(got.RegistrationDate))
}

func TestRegisterMemberRejects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "Ada", "ada@example.com")

	_, err := svc.RegisterMember(ctx, NewMember{Name: "Other", Email: "ADA@example.com"})
	assert.True(t, apperr.Is(err, apperr.Integrity))
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = svc.RegisterMember(ctx, NewMember{Name: "Bad", Email: "not-an-email"})
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestSearchMembers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ada := register(t, svc, "Ada Lovelace", "ada@example.com")
	register(t, svc, "Grace Hopper", "grace@navy.mil")

	all, err := svc.SearchMembers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	for term, want := range map[string]string{
		"lovelace":      "Ada Lovelace",
		"NAVY":          "Grace Hopper",
		ada.ID.String(): "Ada Lovelace",
	} {
		found, err := svc.SearchMembers(ctx, term)
		require.NoError(t, err)
		require.Len(t, found, 1, term)
		assert.Equal(t, want, found[0].Name)
	}

	none, err := svc.SearchMembers(ctx, "turing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateMember(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	m := register(t, svc, "Ada", "ada@example.com")
	register(t, svc, "Grace", "grace@example.com")

	res, err := svc.UpdateMember(ctx, m.ID, MemberUpdate{Name: "Ada", Email: "ada@example.com", PhoneNumber: "555-0100"})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = svc.UpdateMember(ctx, m.ID, MemberUpdate{Name: "Ada King", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "Ada King", res.Member.Name)
	assert.Empty(t, res.Member.PhoneNumber)
	assert.Equal(t, registrationDay, res.Member.RegistrationDate, "registration date is immutable")

	_, err = svc.UpdateMember(ctx, m.ID, MemberUpdate{Name: "Ada", Email: "grace@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = svc.UpdateMember(ctx, uuid.New(), MemberUpdate{Name: "X", Email: "x@example.com"})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestRemoveMember(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	free := register(t, svc, "Free", "free@example.com")
	require.NoError(t, svc.RemoveMember(ctx, free.ID))
	_, err := svc.GetMember(ctx, free.ID)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	borrower := register(t, svc, "Borrower", "borrower@example.com")
	addLoan(t, st, borrower.ID, false)
	err = svc.RemoveMember(ctx, borrower.ID)
	assert.True(t, apperr.Is(err, apperr.Integrity))
	assert.ErrorIs(t, err, ErrMemberHasLoans)

	past := register(t, svc, "Past", "past@example.com")
	addLoan(t, st, past.ID, true)
	err = svc.RemoveMember(ctx, past.ID)
	assert.True(t, apperr.Is(err, apperr.Integrity))
	assert.ErrorIs(t, err, ErrMemberHasHistory)
}

func TestHandler(t *testing.T) {
	svc, _ := newTestService(t)
	r := chi.NewRouter()
	NewHandler(svc).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/members",
		strings.NewReader(`{"name":"Ada","email":"ada@example.com"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/members",
		strings.NewReader(`{"name":"Ada","email":"nope"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"validation"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/members/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
