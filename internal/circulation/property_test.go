package circulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"librarian/internal/apperr"
	"librarian/internal/clock"
	"librarian/internal/logging"
	"librarian/internal/store/storetest"
)

func TestFine(t *testing.T) {
	rate := decimal.RequireFromString("0.50")
	due := issueDay.AddDate(0, 0, LoanPeriodDays)

	tests := []struct {
		name string
		day  time.Time
		want string
	}{
		{"before due", due.AddDate(0, 0, -3), "0"},
		{"on due date", due, "0"},
		{"late in the due day", due.Add(23 * time.Hour), "0"},
		{"one day late", due.AddDate(0, 0, 1), "0.50"},
		{"six days late", due.AddDate(0, 0, 6), "3.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fine(due, tt.day, rate)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestFineProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(1, 10_000).Draw(t, "rate_cents")
		rate := decimal.New(cents, -2)
		offset := rapid.IntRange(-400, 400).Draw(t, "offset_days")
		due := issueDay.AddDate(0, 0, LoanPeriodDays)
		day := due.AddDate(0, 0, offset)

		fine := Fine(due, day, rate)
		if fine.IsNegative() {
			t.Fatalf("negative fine %s", fine)
		}
		if offset <= 0 && !fine.IsZero() {
			t.Fatalf("fine %s for a return %d days before due", fine, -offset)
		}
		if offset > 0 && !fine.Equal(rate.Mul(decimal.NewFromInt(int64(offset)))) {
			t.Fatalf("fine %s, want %d x %s", fine, offset, rate)
		}
		if OverdueDays(due, day) != max(offset, 0) {
			t.Fatalf("overdue days %d for offset %d", OverdueDays(due, day), offset)
		}
	})
}

// TestIssueReturnInvariants drives random issue/return sequences and checks
// after every step that availability matches the open loans and stays within
// 0..quantity.
func TestIssueReturnInvariants(t *testing.T) {
	st := storetest.Open(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		f := newFixtureOn(t, st)
		quantity := rapid.IntRange(1, 3).Draw(rt, "quantity")
		book := f.addBook(t, quantity)
		members := make([]uuid.UUID, rapid.IntRange(1, 4).Draw(rt, "members"))
		for i := range members {
			members[i] = f.addMember(t)
		}

		day := issueDay
		available := quantity
		open := map[uuid.UUID]*Loan{}

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			day = day.AddDate(0, 0, rapid.IntRange(0, 10).Draw(rt, "advance"))
			f.clock.Set(day)
			member := rapid.SampledFrom(members).Draw(rt, "member")

			if rapid.Bool().Draw(rt, "issue") {
				loan, err := f.svc.IssueBook(ctx, book, member)
				switch {
				case available == 0:
					require.ErrorIs(rt, err, ErrNotAvailable)
				case open[member] != nil:
					require.ErrorIs(rt, err, ErrAlreadyOnLoan)
				default:
					require.NoError(rt, err)
					require.Equal(rt, day, loan.IssueDate)
					open[member] = loan
					available--
				}
			} else {
				loan, err := f.svc.ReturnBook(ctx, book, member)
				if prev := open[member]; prev != nil {
					require.NoError(rt, err)
					require.Equal(rt, prev.ID, loan.ID)
					want := Fine(prev.DueDate, day, decimal.RequireFromString("0.50"))
					require.True(rt, want.Equal(loan.FineAmount), "fine %s, want %s", loan.FineAmount, want)
					delete(open, member)
					available++
				} else {
					require.ErrorIs(rt, err, ErrNoActiveLoan)
					require.True(rt, apperr.Is(err, apperr.Validation))
				}
			}

			got := f.available(t, book)
			require.Equal(rt, available, got)
			require.GreaterOrEqual(rt, got, 0)
			require.LessOrEqual(rt, got, quantity)
			require.Equal(rt, quantity-got, f.openLoans(t, book))
		}
	})

	found, err := NewAuditor(st, logging.Discard()).Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestConcurrentIssueOfLastCopy(t *testing.T) {
	for _, tc := range []struct {
		name   string
		locker func(*Config)
	}{
		{"book lock", func(*Config) {}},
		{"store guards only", func(c *Config) { c.Locker = nopLocker{} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.locker)
			book := f.addBook(t, 1)

			const n = 16
			members := make([]uuid.UUID, n)
			for i := range members {
				members[i] = f.addMember(t)
			}

			var wg sync.WaitGroup
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = f.svc.IssueBook(context.Background(), book, members[i])
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, ErrNotAvailable)
			}
			assert.Equal(t, 1, succeeded)
			assert.Equal(t, 0, f.available(t, book))
			assert.Equal(t, 1, f.openLoans(t, book))
			f.assertClean(t)
		})
	}
}

func TestConcurrentReturnOfSameLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.addBook(t, 1)
	member := f.addMember(t)

	_, err := f.svc.IssueBook(ctx, book, member)
	require.NoError(t, err)
	f.clock.Set(issueDay.AddDate(0, 0, 30))

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ReturnBook(ctx, book, member)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrNoActiveLoan)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.available(t, book))
	assert.Equal(t, 0, f.openLoans(t, book))
	f.assertClean(t)
}

func TestDatesAreCivil(t *testing.T) {
	late := time.Date(2024, 3, 1, 23, 59, 0, 0, time.FixedZone("UTC-5", -5*3600))
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), clock.Fixed(late).Today())
}
