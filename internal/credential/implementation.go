// internal/credential/implementation.go
package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"librarian/internal/apperr"
	"librarian/internal/store"
	"librarian/internal/validation"
)

// Options tunes login throttling.
type Options struct {
	LoginRatePerMinute int
	LoginBurst         int
}

// service implements the Service interface.
type service struct {
	store       *store.Store
	rateLimiter *rate.Limiter
	logger      *slog.Logger
	// dummyHash is checked when the user does not exist so both rejection
	// paths cost the same.
	dummyHash string
}

// NewService creates a new credential service instance.
func NewService(st *store.Store, opts Options, logger *slog.Logger) (Service, error) {
	dummy, err := hashPassword("not a real password")
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if opts.LoginRatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.LoginRatePerMinute))
	}
	return &service{
		store:       st,
		rateLimiter: rate.NewLimiter(limit, opts.LoginBurst),
		logger:      logger,
		dummyHash:   dummy,
	}, nil
}

func (s *service) Verify(ctx context.Context, username, password string) error {
	const op = "credential.verify"
	if !s.rateLimiter.Allow() {
		return apperr.E(apperr.Validation, op, ErrRateLimited)
	}

	var hash string
	err := store.Get(ctx, s.store.DB(), &hash, `SELECT password_hash FROM users WHERE username = ?`, strings.TrimSpace(username))
	if errors.Is(err, sql.ErrNoRows) {
		_, _ = verifyPassword(password, s.dummyHash)
		s.logger.InfoContext(ctx, "login rejected", slog.String("username", username))
		return apperr.E(apperr.Validation, op, ErrInvalidCredentials)
	}
	if err != nil {
		return store.Classify(op, fmt.Errorf("get user: %w", err))
	}

	ok, err := verifyPassword(password, hash)
	if err != nil {
		return apperr.E(apperr.Unexpected, op, fmt.Errorf("verify password of %s: %w", username, err))
	}
	if !ok {
		s.logger.InfoContext(ctx, "login rejected", slog.String("username", username))
		return apperr.E(apperr.Validation, op, ErrInvalidCredentials)
	}
	return nil
}

func (s *service) Provision(ctx context.Context, nu NewUser) error {
	const op = "credential.provision"
	nu.Username = strings.TrimSpace(nu.Username)
	if err := validation.Struct(op, nu); err != nil {
		return err
	}

	hash, err := hashPassword(nu.Password)
	if err != nil {
		return apperr.E(apperr.Unexpected, op, fmt.Errorf("failed to hash password: %w", err))
	}

	err = s.store.WithTx(ctx, op, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := store.Exec(ctx, tx, `INSERT INTO users (username, password_hash) VALUES (?, ?)`, nu.Username, hash)
		if store.IsUniqueViolation(err) {
			return apperr.E(apperr.Integrity, op, fmt.Errorf("%w: %s", ErrDuplicateUser, nu.Username))
		}
		return err
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user provisioned", slog.String("username", nu.Username))
	return nil
}

func (s *service) HasUsers(ctx context.Context) (bool, error) {
	var n int
	if err := store.Get(ctx, s.store.DB(), &n, `SELECT COUNT(*) FROM users`); err != nil {
		return false, store.Classify("credential.has_users", err)
	}
	return n > 0, nil
}
