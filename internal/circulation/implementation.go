// internal/circulation/implementation.go
package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"librarian/internal/apperr"
	"librarian/internal/clock"
	"librarian/internal/events"
	"librarian/internal/lock"
	"librarian/internal/store"
	"librarian/pkg/eventstore"
)

var loanColumns = []any{"transaction_id", "book_id", "member_id", "issue_date", "due_date", "return_date", "fine_amount"}

// Config carries the collaborators and policy of the circulation service.
type Config struct {
	FinePerDay decimal.Decimal
	Clock      clock.Clock
	Locker     lock.Locker
	Publisher  events.Publisher
}

type availability struct {
	Quantity          int `db:"quantity"`
	AvailableQuantity int `db:"available_quantity"`
}

// service implements the Service interface.
type service struct {
	store      *store.Store
	eventStore *eventstore.EventStore
	finePerDay decimal.Decimal
	clock      clock.Clock
	locker     lock.Locker
	publisher  events.Publisher
	logger     *slog.Logger
	tracer     trace.Tracer

	issued   metric.Int64Counter
	returned metric.Int64Counter
	rejected metric.Int64Counter
	fines    metric.Int64Counter
}

// NewService creates a new circulation service instance.
func NewService(st *store.Store, es *eventstore.EventStore, cfg Config, logger *slog.Logger) (Service, error) {
	if !cfg.FinePerDay.IsPositive() {
		return nil, fmt.Errorf("fine per day must be positive, got %s", cfg.FinePerDay)
	}
	if !cfg.FinePerDay.Equal(cfg.FinePerDay.Round(2)) {
		return nil, fmt.Errorf("fine per day must be whole cents, got %s", cfg.FinePerDay)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocal()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Nop{}
	}

	s := &service{
		store:      st,
		eventStore: es,
		finePerDay: cfg.FinePerDay,
		clock:      cfg.Clock,
		locker:     cfg.Locker,
		publisher:  cfg.Publisher,
		logger:     logger,
		tracer:     otel.Tracer("librarian/circulation"),
	}

	meter := otel.Meter("librarian/circulation")
	var err error
	if s.issued, err = meter.Int64Counter("librarian.loans.issued",
		metric.WithDescription("Books issued")); err != nil {
		return nil, fmt.Errorf("create issued counter: %w", err)
	}
	if s.returned, err = meter.Int64Counter("librarian.loans.returned",
		metric.WithDescription("Books returned")); err != nil {
		return nil, fmt.Errorf("create returned counter: %w", err)
	}
	if s.rejected, err = meter.Int64Counter("librarian.loans.rejected",
		metric.WithDescription("Issue and return attempts that failed")); err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}
	if s.fines, err = meter.Int64Counter("librarian.fines.assessed_cents",
		metric.WithDescription("Overdue fines assessed at return"),
		metric.WithUnit("{cent}")); err != nil {
		return nil, fmt.Errorf("create fines counter: %w", err)
	}
	return s, nil
}

// IssueBook runs the issue workflow as one unit of work under the book lock.
func (s *service) IssueBook(ctx context.Context, bookID, memberID uuid.UUID) (*Loan, error) {
	const op = "circulation.issue_book"
	ctx, span := s.tracer.Start(ctx, "circulation.issue",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
			attribute.String("member.id", memberID.String()),
		),
	)
	defer span.End()

	unlock, err := s.locker.Lock(ctx, bookID.String())
	if err != nil {
		return nil, s.reject(ctx, span, op, apperr.E(apperr.Unexpected, op, fmt.Errorf("acquire book lock: %w", err)))
	}
	defer unlock()

	today := s.clock.Today()
	loan := &Loan{
		ID:         uuid.New(),
		BookID:     bookID,
		MemberID:   memberID,
		IssueDate:  today,
		DueDate:    today.AddDate(0, 0, LoanPeriodDays),
		FineAmount: decimal.Zero,
	}

	err = s.store.WithTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		book, err := s.lockBook(ctx, tx, bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.E(apperr.Validation, op, fmt.Errorf("%w: no book with id %s", ErrNotAvailable, bookID))
		}
		if err != nil {
			return err
		}
		if book.AvailableQuantity <= 0 {
			return apperr.E(apperr.Validation, op, ErrNotAvailable)
		}

		var members int
		if err := store.Get(ctx, tx, &members, `SELECT COUNT(*) FROM members WHERE member_id = ?`, memberID); err != nil {
			return fmt.Errorf("check member: %w", err)
		}
		if members == 0 {
			return apperr.E(apperr.Validation, op, ErrMemberNotFound)
		}

		var open int
		if err := store.Get(ctx, tx, &open, `
			SELECT COUNT(*) FROM transactions
			WHERE book_id = ? AND member_id = ? AND return_date IS NULL
		`, bookID, memberID); err != nil {
			return fmt.Errorf("count open loans: %w", err)
		}
		if open > 0 {
			return apperr.E(apperr.Validation, op, ErrAlreadyOnLoan)
		}

		ok, err := store.ExecOne(ctx, tx, `
			UPDATE books SET available_quantity = available_quantity - 1
			WHERE book_id = ? AND available_quantity > 0
		`, bookID)
		if err != nil {
			return fmt.Errorf("decrement availability: %w", err)
		}
		if !ok {
			return apperr.E(apperr.Validation, op, ErrNotAvailable)
		}

		if _, err := store.Exec(ctx, tx, `
			INSERT INTO transactions (transaction_id, book_id, member_id, issue_date, due_date, return_date, fine_amount)
			VALUES (?, ?, ?, ?, ?, NULL, ?)
		`, loan.ID, loan.BookID, loan.MemberID, loan.IssueDate, loan.DueDate, loan.FineAmount); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		return s.appendEvent(ctx, tx, op, loan.ID, 0, "LoanOpened", LoanOpenedEvent{
			LoanID:    loan.ID,
			BookID:    bookID,
			MemberID:  memberID,
			IssueDate: loan.IssueDate.Format(dateLayout),
			DueDate:   loan.DueDate.Format(dateLayout),
		})
	})
	if err != nil {
		return nil, s.reject(ctx, span, op, err)
	}

	s.issued.Add(ctx, 1)
	span.SetAttributes(attribute.String("loan.id", loan.ID.String()))
	s.logger.InfoContext(ctx, "book issued",
		slog.String("transaction_id", loan.ID.String()),
		slog.String("book_id", bookID.String()),
		slog.String("member_id", memberID.String()),
		slog.String("due_date", loan.DueDate.Format(dateLayout)),
	)
	s.publish(ctx, events.LoanOpened, loan)
	return loan, nil
}

// ReturnBook runs the return workflow as one unit of work under the book lock.
func (s *service) ReturnBook(ctx context.Context, bookID, memberID uuid.UUID) (*Loan, error) {
	const op = "circulation.return_book"
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(
			attribute.String("book.id", bookID.String()),
			attribute.String("member.id", memberID.String()),
		),
	)
	defer span.End()

	unlock, err := s.locker.Lock(ctx, bookID.String())
	if err != nil {
		return nil, s.reject(ctx, span, op, apperr.E(apperr.Unexpected, op, fmt.Errorf("acquire book lock: %w", err)))
	}
	defer unlock()

	today := s.clock.Today()
	var loan *Loan

	err = s.store.WithTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		book, err := s.lockBook(ctx, tx, bookID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.E(apperr.Validation, op, ErrNoActiveLoan)
		}
		if err != nil {
			return err
		}

		ds := s.store.Builder().
			From("transactions").
			Select(loanColumns...).
			Where(
				goqu.I("book_id").Eq(bookID.String()),
				goqu.I("member_id").Eq(memberID.String()),
				goqu.I("return_date").IsNull(),
			).
			Order(goqu.I("issue_date").Asc())

		var open []*Loan
		if err := store.SelectDataset(ctx, tx, &open, ds); err != nil {
			return fmt.Errorf("find open loan: %w", err)
		}
		switch {
		case len(open) == 0:
			return apperr.E(apperr.Validation, op, ErrNoActiveLoan)
		case len(open) > 1:
			ids := make([]string, len(open))
			for i, l := range open {
				ids[i] = l.ID.String()
			}
			s.logger.ErrorContext(ctx, "inconsistency: duplicate open loans",
				slog.String("book_id", bookID.String()),
				slog.String("member_id", memberID.String()),
				slog.Any("transaction_ids", ids),
			)
			return apperr.E(apperr.Integrity, op, fmt.Errorf("%w: %d loans", ErrDuplicateOpenLoans, len(open)))
		}

		l := normalize(open[0])
		if today.Before(l.IssueDate) {
			return apperr.E(apperr.Integrity, op, fmt.Errorf("%w: issued %s, today is %s",
				ErrReturnBeforeIssue, l.IssueDate.Format(dateLayout), today.Format(dateLayout)))
		}
		fine := Fine(l.DueDate, today, s.finePerDay)

		ok, err := store.ExecOne(ctx, tx, `
			UPDATE transactions SET return_date = ?, fine_amount = ?
			WHERE transaction_id = ? AND return_date IS NULL
		`, today, fine, l.ID)
		if err != nil {
			return fmt.Errorf("close transaction: %w", err)
		}
		if !ok {
			return apperr.E(apperr.Integrity, op, ErrLoanClosed)
		}

		if book.AvailableQuantity+1 > book.Quantity {
			return apperr.E(apperr.Integrity, op, fmt.Errorf("%w: %d of %d already available",
				ErrAvailabilityOverflow, book.AvailableQuantity, book.Quantity))
		}
		ok, err = store.ExecOne(ctx, tx, `
			UPDATE books SET available_quantity = available_quantity + 1
			WHERE book_id = ? AND available_quantity < quantity
		`, bookID)
		if err != nil {
			return fmt.Errorf("increment availability: %w", err)
		}
		if !ok {
			return apperr.E(apperr.Integrity, op, ErrAvailabilityOverflow)
		}

		if err := s.appendEvent(ctx, tx, op, l.ID, 1, "LoanClosed", LoanClosedEvent{
			LoanID:     l.ID,
			BookID:     bookID,
			MemberID:   memberID,
			ReturnDate: today.Format(dateLayout),
			FineAmount: fine.StringFixed(2),
		}); err != nil {
			return err
		}

		returned := today
		l.ReturnDate = &returned
		l.FineAmount = fine
		loan = l
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, span, op, err)
	}

	s.returned.Add(ctx, 1)
	if loan.FineAmount.IsPositive() {
		s.fines.Add(ctx, loan.FineAmount.Shift(2).IntPart())
	}
	span.SetAttributes(
		attribute.String("loan.id", loan.ID.String()),
		attribute.String("fine.amount", loan.FineAmount.StringFixed(2)),
	)
	s.logger.InfoContext(ctx, "book returned",
		slog.String("transaction_id", loan.ID.String()),
		slog.String("book_id", bookID.String()),
		slog.String("member_id", memberID.String()),
		slog.String("fine_amount", loan.FineAmount.StringFixed(2)),
	)
	s.publish(ctx, events.LoanClosed, loan)
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *service) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	const op = "circulation.get_loan"
	ds := s.store.Builder().
		From("transactions").
		Select(loanColumns...).
		Where(goqu.I("transaction_id").Eq(id.String()))

	loan := &Loan{}
	err := store.GetDataset(ctx, s.store.DB(), loan, ds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.Validation, op, ErrLoanNotFound)
	}
	if err != nil {
		return nil, store.Classify(op, fmt.Errorf("get loan: %w", err))
	}
	return normalize(loan), nil
}

func (s *service) LoanHistory(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	const op = "circulation.loan_history"
	if _, err := s.GetLoan(ctx, id); err != nil {
		return nil, err
	}
	history, err := s.eventStore.LoadEvents(ctx, s.store.DB(), id, 0, 0)
	if err != nil {
		return nil, store.Classify(op, err)
	}
	return history, nil
}

func (s *service) ListLoans(ctx context.Context, filter LoanFilter) ([]*Loan, error) {
	const op = "circulation.list_loans"
	ds := s.store.Builder().
		From("transactions").
		Select(loanColumns...).
		Order(goqu.I("issue_date").Desc(), goqu.I("transaction_id").Asc())

	if filter.BookID != nil {
		ds = ds.Where(goqu.I("book_id").Eq(filter.BookID.String()))
	}
	if filter.MemberID != nil {
		ds = ds.Where(goqu.I("member_id").Eq(filter.MemberID.String()))
	}
	if filter.OpenOnly {
		ds = ds.Where(goqu.I("return_date").IsNull())
	}

	loans := []*Loan{}
	if err := store.SelectDataset(ctx, s.store.DB(), &loans, ds); err != nil {
		return nil, store.Classify(op, fmt.Errorf("list loans: %w", err))
	}
	for _, l := range loans {
		normalize(l)
	}
	return loans, nil
}

func (s *service) OverdueLoans(ctx context.Context) ([]*OverdueLoan, error) {
	const op = "circulation.overdue_loans"
	today := s.clock.Today()

	ds := s.store.Builder().
		From("transactions").
		Select(loanColumns...).
		Where(
			goqu.I("return_date").IsNull(),
			goqu.I("due_date").Lt(today),
		).
		Order(goqu.I("due_date").Asc(), goqu.I("transaction_id").Asc())

	var loans []*Loan
	if err := store.SelectDataset(ctx, s.store.DB(), &loans, ds); err != nil {
		return nil, store.Classify(op, fmt.Errorf("list overdue loans: %w", err))
	}

	overdue := make([]*OverdueLoan, 0, len(loans))
	for _, l := range loans {
		normalize(l)
		overdue = append(overdue, &OverdueLoan{
			Loan:        *l,
			DaysOverdue: OverdueDays(l.DueDate, today),
			AccruedFine: Fine(l.DueDate, today, s.finePerDay),
		})
	}
	return overdue, nil
}

func (s *service) lockBook(ctx context.Context, tx *sqlx.Tx, bookID uuid.UUID) (*availability, error) {
	ds := s.store.Builder().
		From("books").
		Select("quantity", "available_quantity").
		Where(goqu.I("book_id").Eq(bookID.String())).
		ForUpdate(exp.Wait)

	book := &availability{}
	if err := store.GetDataset(ctx, tx, book, ds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("read book: %w", err)
	}
	return book, nil
}

func (s *service) appendEvent(ctx context.Context, tx *sqlx.Tx, op string, loanID uuid.UUID, expectedVersion int, eventType string, payload any) error {
	event, err := eventstore.NewEvent(eventType, payload)
	if err != nil {
		return err
	}
	err = s.eventStore.AppendEvents(ctx, tx, loanID, aggregateType, expectedVersion, []eventstore.Event{event})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return apperr.E(apperr.Integrity, op, fmt.Errorf("record %s: %w", eventType, err))
	}
	if err != nil {
		return fmt.Errorf("record %s: %w", eventType, err)
	}
	return nil
}

// reject records a failed workflow and passes err through.
func (s *service) reject(ctx context.Context, span trace.Span, op string, err error) error {
	kind := apperr.KindOf(err)
	s.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("kind", kind.String()),
	))
	span.RecordError(err)
	span.SetStatus(codes.Error, kind.String())

	level := slog.LevelInfo
	if kind != apperr.Validation {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "circulation request rejected",
		slog.String("op", op),
		slog.String("kind", kind.String()),
		slog.String("reason", apperr.Reason(err)),
	)
	return err
}

func (s *service) publish(ctx context.Context, eventType string, loan *Loan) {
	if err := s.publisher.Publish(ctx, eventType, loan); err != nil {
		s.logger.WarnContext(ctx, "publish circulation event",
			slog.String("event_type", eventType),
			slog.String("transaction_id", loan.ID.String()),
			slog.Any("error", err),
		)
	}
}

// normalize pins every date of l to midnight UTC, whatever zone the driver
// scanned it in.
func normalize(l *Loan) *Loan {
	l.IssueDate = clock.Date(l.IssueDate)
	l.DueDate = clock.Date(l.DueDate)
	if l.ReturnDate != nil {
		d := clock.Date(*l.ReturnDate)
		l.ReturnDate = &d
	}
	return l
}
