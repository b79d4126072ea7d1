// internal/circulation/domain.go
package circulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"librarian/internal/apperr"
)

// LoanPeriodDays is the fixed time between issue and due date.
const LoanPeriodDays = 14

const aggregateType = "loan"

var (
	ErrNotAvailable         = errors.New("book is not available")
	ErrMemberNotFound       = fmt.Errorf("member %w", apperr.ErrNotFound)
	ErrAlreadyOnLoan        = errors.New("member already has this book on loan")
	ErrNoActiveLoan         = errors.New("no active loan for this book and member")
	ErrLoanNotFound         = fmt.Errorf("loan %w", apperr.ErrNotFound)
	ErrDuplicateOpenLoans   = errors.New("more than one open loan for this book and member")
	ErrReturnBeforeIssue    = errors.New("return date precedes issue date")
	ErrAvailabilityOverflow = errors.New("available quantity would exceed quantity")
	ErrLoanClosed           = errors.New("loan was closed by a concurrent return")
)

// Loan is one borrowing of one copy. A nil ReturnDate means the copy is
// still out.
type Loan struct {
	ID         uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	BookID     uuid.UUID       `json:"book_id" db:"book_id"`
	MemberID   uuid.UUID       `json:"member_id" db:"member_id"`
	IssueDate  time.Time       `json:"issue_date" db:"issue_date"`
	DueDate    time.Time       `json:"due_date" db:"due_date"`
	ReturnDate *time.Time      `json:"return_date" db:"return_date"`
	FineAmount decimal.Decimal `json:"fine_amount" db:"fine_amount"`
}

func (l *Loan) Open() bool { return l.ReturnDate == nil }

// OverdueLoan is an open loan past its due date with the fine it would be
// charged if returned today.
type OverdueLoan struct {
	Loan
	DaysOverdue int             `json:"days_overdue"`
	AccruedFine decimal.Decimal `json:"accrued_fine"`
}

// LoanFilter narrows ListLoans. Nil ids match everything.
type LoanFilter struct {
	BookID   *uuid.UUID
	MemberID *uuid.UUID
	OpenOnly bool
}

// LoanOpenedEvent is recorded when a book is issued.
type LoanOpenedEvent struct {
	LoanID    uuid.UUID `json:"transaction_id"`
	BookID    uuid.UUID `json:"book_id"`
	MemberID  uuid.UUID `json:"member_id"`
	IssueDate string    `json:"issue_date"`
	DueDate   string    `json:"due_date"`
}

// LoanClosedEvent is recorded when a book is returned.
type LoanClosedEvent struct {
	LoanID     uuid.UUID `json:"transaction_id"`
	BookID     uuid.UUID `json:"book_id"`
	MemberID   uuid.UUID `json:"member_id"`
	ReturnDate string    `json:"return_date"`
	FineAmount string    `json:"fine_amount"`
}

const dateLayout = "2006-01-02"
