// internal/membership/implementation.go
package membership

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

	"librarian/internal/apperr"
	"librarian/internal/clock"
	"librarian/internal/store"
	"librarian/internal/validation"
	"librarian/pkg/eventstore"
)

var memberColumns = []any{"member_id", "name", "email", "phone_number", "registration_date"}

// service implements the Service interface.
type service struct {
	store      *store.Store
	eventStore *eventstore.EventStore
	clock      clock.Clock
	logger     *slog.Logger
}

// NewService creates a new membership service instance.
func NewService(st *store.Store, es *eventstore.EventStore, clk clock.Clock, logger *slog.Logger) Service {
	return &service{
		store:      st,
		eventStore: es,
		clock:      clk,
		logger:     logger,
	}
}

func normalize(name, email, phone string) (string, string, string) {
	return strings.TrimSpace(name), strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(phone)
}

// RegisterMember creates a new member registered today.
func (s *service) RegisterMember(ctx context.Context, nm NewMember) (*Member, error) {
	const op = "membership.register_member"
	nm.Name, nm.Email, nm.PhoneNumber = normalize(nm.Name, nm.Email, nm.PhoneNumber)
	if err := validation.Struct(op, nm); err != nil {
		return nil, err
	}

	member := &Member{
		ID:               uuid.New(),
		Name:             nm.Name,
		Email:            nm.Email,
		PhoneNumber:      nm.PhoneNumber,
		RegistrationDate: s.clock.Today(),
	}

	err := s.store.WithTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := store.Exec(ctx, tx, `
			INSERT INTO members (member_id, name, email, phone_number, registration_date)
			VALUES (?, ?, ?, ?, ?)
		`, member.ID, member.Name, member.Email, member.PhoneNumber, member.RegistrationDate)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return apperr.E(apperr.Integrity, op, fmt.Errorf("%w: %s", ErrDuplicateEmail, member.Email))
			}
			return fmt.Errorf("insert member: %w", err)
		}
		return s.record(ctx, tx, op, member.ID, "MemberRegistered", MemberRegisteredEvent{
			ID:               member.ID,
			Email:            member.Email,
			Name:             member.Name,
			RegistrationDate: member.RegistrationDate.Format("2006-01-02"),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member registered", slog.String("member_id", member.ID.String()))
	return member, nil
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	const op = "membership.get_member"
	member := &Member{}
	err := store.Get(ctx, s.store.DB(), member, `
		SELECT member_id, name, email, phone_number, registration_date
		FROM members
		WHERE member_id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.Validation, op, ErrMemberNotFound)
	}
	if err != nil {
		return nil, store.Classify(op, fmt.Errorf("get member: %w", err))
	}
	member.RegistrationDate = clock.Date(member.RegistrationDate)
	return member, nil
}

// SearchMembers finds members by name, email or id.
func (s *service) SearchMembers(ctx context.Context, term string) ([]*Member, error) {
	const op = "membership.search_members"
	term = strings.TrimSpace(term)

	ds := s.store.Builder().
		From("members").
		Select(memberColumns...).
		Order(goqu.I("name").Asc(), goqu.I("email").Asc())

	if term != "" {
		pattern := "%" + term + "%"
		conds := []exp.Expression{
			goqu.I("name").ILike(pattern),
			goqu.I("email").ILike(pattern),
		}
		if id, err := uuid.Parse(term); err == nil {
			conds = append(conds, goqu.I("member_id").Eq(id.String()))
		}
		ds = ds.Where(goqu.Or(conds...))
	}

	members := []*Member{}
	if err := store.SelectDataset(ctx, s.store.DB(), &members, ds); err != nil {
		return nil, store.Classify(op, fmt.Errorf("search members: %w", err))
	}
	for _, m := range members {
		m.RegistrationDate = clock.Date(m.RegistrationDate)
	}
	return members, nil
}

// UpdateMember replaces name, email and phone number.
func (s *service) UpdateMember(ctx context.Context, id uuid.UUID, upd MemberUpdate) (UpdateResult, error) {
	const op = "membership.update_member"
	upd.Name, upd.Email, upd.PhoneNumber = normalize(upd.Name, upd.Email, upd.PhoneNumber)
	if err := validation.Struct(op, upd); err != nil {
		return UpdateResult{}, err
	}

	var result UpdateResult
	err := s.store.WithTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		current, err := s.lockMember(ctx, tx, op, id)
		if err != nil {
			return err
		}

		next := *current
		next.Name = upd.Name
		next.Email = upd.Email
		next.PhoneNumber = upd.PhoneNumber
		if next.Name == current.Name && next.Email == current.Email && next.PhoneNumber == current.PhoneNumber {
			result = UpdateResult{Member: current, Changed: false}
			return nil
		}

		ok, err := store.ExecOne(ctx, tx, `
			UPDATE members SET name = ?, email = ?, phone_number = ? WHERE member_id = ?
		`, next.Name, next.Email, next.PhoneNumber, id)
		if err != nil {
			if store.IsUniqueViolation(err) {
				return apperr.E(apperr.Integrity, op, fmt.Errorf("%w: %s", ErrDuplicateEmail, next.Email))
			}
			return fmt.Errorf("update member: %w", err)
		}
		if !ok {
			return apperr.Integrityf(op, "member %s vanished during update", id)
		}

		result = UpdateResult{Member: &next, Changed: true}
		return s.record(ctx, tx, op, id, "MemberUpdated", MemberUpdatedEvent{
			ID:          id,
			Email:       next.Email,
			Name:        next.Name,
			PhoneNumber: next.PhoneNumber,
		})
	})
	if err != nil {
		return UpdateResult{}, err
	}

	if result.Changed {
		s.logger.InfoContext(ctx, "member updated", slog.String("member_id", id.String()))
	}
	return result, nil
}

// RemoveMember deletes a member with no loans, open or closed.
func (s *service) RemoveMember(ctx context.Context, id uuid.UUID) error {
	const op = "membership.remove_member"
	err := s.store.WithTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		member, err := s.lockMember(ctx, tx, op, id)
		if err != nil {
			return err
		}

		var open int
		if err := store.Get(ctx, tx, &open, `
			SELECT COUNT(*) FROM transactions WHERE member_id = ? AND return_date IS NULL
		`, id); err != nil {
			return fmt.Errorf("count open loans: %w", err)
		}
		if open > 0 {
			return apperr.E(apperr.Integrity, op, fmt.Errorf("%w: %d open loans", ErrMemberHasLoans, open))
		}

		if _, err := store.Exec(ctx, tx, `DELETE FROM members WHERE member_id = ?`, id); err != nil {
			if store.IsForeignKeyViolation(err) {
				return apperr.E(apperr.Integrity, op, ErrMemberHasHistory)
			}
			return fmt.Errorf("delete member: %w", err)
		}

		return s.record(ctx, tx, op, id, "MemberRemoved", MemberRemovedEvent{ID: id, Email: member.Email})
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "member removed", slog.String("member_id", id.String()))
	return nil
}

func (s *service) lockMember(ctx context.Context, tx *sqlx.Tx, op string, id uuid.UUID) (*Member, error) {
	ds := s.store.Builder().
		From("members").
		Select(memberColumns...).
		Where(goqu.I("member_id").Eq(id.String())).
		ForUpdate(exp.Wait)

	member := &Member{}
	err := store.GetDataset(ctx, tx, member, ds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.Validation, op, ErrMemberNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read member: %w", err)
	}
	member.RegistrationDate = clock.Date(member.RegistrationDate)
	return member, nil
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
