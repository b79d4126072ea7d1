// internal/credential/domain.go
package credential

import (
	"errors"
)

var (
	// ErrInvalidCredentials covers both an unknown user and a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrRateLimited        = errors.New("too many login attempts, try again later")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrUnauthenticated    = errors.New("missing or invalid token")
)

// NewUser is the input to Provision.
type NewUser struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=8,max=256"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is what a successful login returns.
type Session struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}
