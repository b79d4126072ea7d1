package clients

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/catalog"
	"librarian/internal/circulation"
	"librarian/internal/clock"
	"librarian/internal/membership"
	"librarian/internal/server"
	"librarian/internal/server/servertest"
)

func TestClientRoundTrip(t *testing.T) {
	day := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	var now atomic.Int64
	now.Store(day.Unix())
	srv := servertest.New(t, server.Options{Clock: func() time.Time { return time.Unix(now.Load(), 0) }})
	ctx := context.Background()

	c := NewClient(srv.URL)
	_, err := c.SearchBooks(ctx, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	require.NoError(t, c.Login(ctx, servertest.Username, servertest.Password))

	book, err := c.AddBook(ctx, catalog.NewBook{Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Quantity: 1})
	require.NoError(t, err)
	alice, err := c.RegisterMember(ctx, membership.NewMember{Name: "Alice", Email: "alice@example.com"})
	require.NoError(t, err)
	bob, err := c.RegisterMember(ctx, membership.NewMember{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, clock.Date(day), alice.RegistrationDate)

	loan, err := c.IssueBook(ctx, book.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Date(day).AddDate(0, 0, circulation.LoanPeriodDays), loan.DueDate)

	_, err = c.IssueBook(ctx, book.ID, bob.ID)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "book is not available", apiErr.Reason)

	got, err := c.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableQuantity)

	now.Store(day.AddDate(0, 0, 20).Unix())
	overdue, err := c.OverdueLoans(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, 6, overdue[0].DaysOverdue)

	closed, err := c.ReturnBook(ctx, book.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.00").Equal(closed.FineAmount))

	fetched, err := c.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.False(t, fetched.Open())

	history, err := c.LoanHistory(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "LoanClosed", history[1].EventType)

	open, err := c.ListLoans(ctx, circulation.LoanFilter{BookID: &book.ID, OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)

	found, err := c.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, found)

	res, err := c.UpdateMember(ctx, bob.ID, membership.MemberUpdate{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	require.NoError(t, c.RemoveMember(ctx, bob.ID))

	err = c.RemoveBook(ctx, book.ID)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	books, err := c.SearchBooks(ctx, "dune")
	require.NoError(t, err)
	assert.Len(t, books, 1)

	upd, err := c.UpdateBook(ctx, book.ID, catalog.BookUpdate{Title: "Dune", Author: "Frank Herbert", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, upd.Book.AvailableQuantity)

	members, err := c.SearchMembers(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, members, 1)
	m, err := c.GetMember(ctx, members[0].ID)
	require.NoError(t, err)
	assert.Equal(t, alice.Email, m.Email)
}
