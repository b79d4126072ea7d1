// internal/circulation/auditor.go
package circulation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"librarian/internal/store"
)

// Inconsistency kinds reported by the Auditor.
const (
	AvailabilityOutOfRange = "availability_out_of_range"
	AvailabilityMismatch   = "availability_mismatch"
	DuplicateOpenLoans     = "duplicate_open_loans"
	ReturnBeforeIssue      = "return_before_issue"
)

// Inconsistency is one violation of the book/transaction invariants.
type Inconsistency struct {
	Kind          string     `json:"kind"`
	BookID        uuid.UUID  `json:"book_id"`
	MemberID      *uuid.UUID `json:"member_id,omitempty"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Detail        string     `json:"detail"`
}

// Auditor cross-checks books against their transactions. It only reads.
type Auditor struct {
	store  *store.Store
	logger *slog.Logger
}

func NewAuditor(st *store.Store, logger *slog.Logger) *Auditor {
	return &Auditor{store: st, logger: logger}
}

type bookLoans struct {
	BookID            uuid.UUID `db:"book_id"`
	Quantity          int       `db:"quantity"`
	AvailableQuantity int       `db:"available_quantity"`
	OpenLoans         int       `db:"open_loans"`
}

type openPair struct {
	BookID   uuid.UUID `db:"book_id"`
	MemberID uuid.UUID `db:"member_id"`
	Count    int       `db:"open_loans"`
}

// Check returns every inconsistency found, in a stable order. An empty slice
// means the store is consistent.
func (a *Auditor) Check(ctx context.Context) ([]Inconsistency, error) {
	const op = "circulation.audit"
	found := []Inconsistency{}

	var books []bookLoans
	if err := store.Select(ctx, a.store.DB(), &books, `
		SELECT b.book_id, b.quantity, b.available_quantity,
			(SELECT COUNT(*) FROM transactions t
			 WHERE t.book_id = b.book_id AND t.return_date IS NULL) AS open_loans
		FROM books b
		ORDER BY b.book_id
	`); err != nil {
		return nil, store.Classify(op, fmt.Errorf("read books: %w", err))
	}
	for _, b := range books {
		if b.AvailableQuantity < 0 || b.AvailableQuantity > b.Quantity {
			found = append(found, Inconsistency{
				Kind:   AvailabilityOutOfRange,
				BookID: b.BookID,
				Detail: fmt.Sprintf("available %d outside 0..%d", b.AvailableQuantity, b.Quantity),
			})
		}
		if b.Quantity-b.AvailableQuantity != b.OpenLoans {
			found = append(found, Inconsistency{
				Kind:   AvailabilityMismatch,
				BookID: b.BookID,
				Detail: fmt.Sprintf("%d copies out but %d open loans", b.Quantity-b.AvailableQuantity, b.OpenLoans),
			})
		}
	}

	var pairs []openPair
	if err := store.Select(ctx, a.store.DB(), &pairs, `
		SELECT book_id, member_id, COUNT(*) AS open_loans
		FROM transactions
		WHERE return_date IS NULL
		GROUP BY book_id, member_id
		HAVING COUNT(*) > 1
		ORDER BY book_id, member_id
	`); err != nil {
		return nil, store.Classify(op, fmt.Errorf("read open loans: %w", err))
	}
	for _, p := range pairs {
		member := p.MemberID
		found = append(found, Inconsistency{
			Kind:     DuplicateOpenLoans,
			BookID:   p.BookID,
			MemberID: &member,
			Detail:   fmt.Sprintf("%d open loans", p.Count),
		})
	}

	var backdated []*Loan
	if err := store.Select(ctx, a.store.DB(), &backdated, `
		SELECT transaction_id, book_id, member_id, issue_date, due_date, return_date, fine_amount
		FROM transactions
		WHERE return_date IS NOT NULL AND return_date < issue_date
		ORDER BY transaction_id
	`); err != nil {
		return nil, store.Classify(op, fmt.Errorf("read closed loans: %w", err))
	}
	for _, l := range backdated {
		normalize(l)
		id, member := l.ID, l.MemberID
		found = append(found, Inconsistency{
			Kind:          ReturnBeforeIssue,
			BookID:        l.BookID,
			MemberID:      &member,
			TransactionID: &id,
			Detail: fmt.Sprintf("returned %s, issued %s",
				l.ReturnDate.Format(dateLayout), l.IssueDate.Format(dateLayout)),
		})
	}

	return found, nil
}

// Run checks the store and logs every inconsistency at error level. It is
// the scheduled form of Check.
func (a *Auditor) Run(ctx context.Context) {
	found, err := a.Check(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "audit failed", slog.Any("error", err))
		return
	}
	for _, inc := range found {
		attrs := []any{
			slog.String("kind", inc.Kind),
			slog.String("book_id", inc.BookID.String()),
			slog.String("detail", inc.Detail),
		}
		if inc.MemberID != nil {
			attrs = append(attrs, slog.String("member_id", inc.MemberID.String()))
		}
		if inc.TransactionID != nil {
			attrs = append(attrs, slog.String("transaction_id", inc.TransactionID.String()))
		}
		a.logger.ErrorContext(ctx, "inconsistency", attrs...)
	}
	a.logger.InfoContext(ctx, "audit complete", slog.Int("inconsistencies", len(found)))
}
