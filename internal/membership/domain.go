// internal/membership/domain.go
package membership

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"librarian/internal/apperr"
)

const aggregateType = "member"

var (
	ErrMemberNotFound   = fmt.Errorf("member %w", apperr.ErrNotFound)
	ErrDuplicateEmail   = errors.New("a member with this email already exists")
	ErrMemberHasLoans   = errors.New("member has books on loan")
	ErrMemberHasHistory = errors.New("member is referenced by loan history")
)

// Member represents a library member.
type Member struct {
	ID               uuid.UUID `json:"member_id" db:"member_id"`
	Name             string    `json:"name" db:"name"`
	Email            string    `json:"email" db:"email"`
	PhoneNumber      string    `json:"phone_number" db:"phone_number"`
	RegistrationDate time.Time `json:"registration_date" db:"registration_date"`
}

// NewMember is the input to RegisterMember.
type NewMember struct {
	Name        string `json:"name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	PhoneNumber string `json:"phone_number" validate:"max=32"`
}

// MemberUpdate replaces a member's contact details. The registration date
// never changes.
type MemberUpdate struct {
	Name        string `json:"name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	PhoneNumber string `json:"phone_number" validate:"max=32"`
}

// UpdateResult tells a no-op apart from a write.
type UpdateResult struct {
	Member  *Member `json:"member"`
	Changed bool    `json:"changed"`
}

// MemberRegisteredEvent is recorded when a new member registers.
type MemberRegisteredEvent struct {
	ID               uuid.UUID `json:"member_id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	RegistrationDate string    `json:"registration_date"`
}

// MemberUpdatedEvent is recorded when contact details change.
type MemberUpdatedEvent struct {
	ID          uuid.UUID `json:"member_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
}

// MemberRemovedEvent is recorded when a member is deleted.
type MemberRemovedEvent struct {
	ID    uuid.UUID `json:"member_id"`
	Email string    `json:"email"`
}
