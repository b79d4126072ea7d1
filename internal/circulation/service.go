// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"

	"librarian/pkg/eventstore"
)

// Service defines the interface for the circulation service.
type Service interface {
	// IssueBook lends one copy of a book to a member.
	IssueBook(ctx context.Context, bookID, memberID uuid.UUID) (*Loan, error)
	// ReturnBook closes the member's open loan of the book and assesses the
	// overdue fine.
	ReturnBook(ctx context.Context, bookID, memberID uuid.UUID) (*Loan, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	// LoanHistory returns the recorded events of a loan in version order.
	LoanHistory(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error)
	// ListLoans returns matching loans, most recently issued first.
	ListLoans(ctx context.Context, filter LoanFilter) ([]*Loan, error)
	// OverdueLoans returns open loans past due as of today, oldest due first.
	OverdueLoans(ctx context.Context) ([]*OverdueLoan, error)
}
