// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	RegisterMember(ctx context.Context, nm NewMember) (*Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
	// SearchMembers matches term case-insensitively inside name and email,
	// and exactly against member_id. An empty term lists all.
	SearchMembers(ctx context.Context, term string) ([]*Member, error)
	UpdateMember(ctx context.Context, id uuid.UUID, upd MemberUpdate) (UpdateResult, error)
	RemoveMember(ctx context.Context, id uuid.UUID) error
}
