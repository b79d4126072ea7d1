// internal/credential/service.go
package credential

import (
	"context"
)

// Service checks and provisions login credentials.
type Service interface {
	// Verify returns nil when password matches username. It has no side
	// effects beyond consuming rate-limit budget.
	Verify(ctx context.Context, username, password string) error
	Provision(ctx context.Context, nu NewUser) error
	HasUsers(ctx context.Context) (bool, error)
}
