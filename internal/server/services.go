// internal/server/services.go
package server

import (
	"fmt"
	"log/slog"

	"librarian/internal/catalog"
	"librarian/internal/circulation"
	"librarian/internal/clock"
	"librarian/internal/config"
	"librarian/internal/credential"
	"librarian/internal/events"
	"librarian/internal/lock"
	"librarian/internal/membership"
	"librarian/internal/store"
	"librarian/pkg/eventstore"
)

// Options overrides the collaborators NewServices would otherwise default.
type Options struct {
	Clock     clock.Clock
	Locker    lock.Locker
	Publisher events.Publisher
}

// NewServices wires every service onto one store.
func NewServices(st *store.Store, cfg *config.Config, opts Options, logger *slog.Logger) (Services, error) {
	if opts.Clock == nil {
		opts.Clock = clock.System
	}
	es := eventstore.NewEventStore()

	circ, err := circulation.NewService(st, es, circulation.Config{
		FinePerDay: cfg.FinePerDay,
		Clock:      opts.Clock,
		Locker:     opts.Locker,
		Publisher:  opts.Publisher,
	}, logger.With(slog.String("component", "circulation")))
	if err != nil {
		return Services{}, fmt.Errorf("create circulation service: %w", err)
	}

	cred, err := credential.NewService(st, credential.Options{
		LoginRatePerMinute: cfg.Auth.LoginRatePerMinute,
		LoginBurst:         cfg.Auth.LoginBurst,
	}, logger.With(slog.String("component", "credential")))
	if err != nil {
		return Services{}, fmt.Errorf("create credential service: %w", err)
	}

	return Services{
		Catalog:     catalog.NewService(st, es, logger.With(slog.String("component", "catalog"))),
		Membership:  membership.NewService(st, es, opts.Clock, logger.With(slog.String("component", "membership"))),
		Circulation: circ,
		Auditor:     circulation.NewAuditor(st, logger.With(slog.String("component", "auditor"))),
		Credential:  cred,
		Tokens:      credential.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Store:       st,
	}, nil
}
