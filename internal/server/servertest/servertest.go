// internal/server/servertest/servertest.go

// Package servertest runs the full API in process for tests.
package servertest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"librarian/internal/config"
	"librarian/internal/credential"
	"librarian/internal/logging"
	"librarian/internal/server"
	"librarian/internal/store/storetest"
)

// Credentials of the user every test server is provisioned with.
const (
	Username = "librarian"
	Password = "correct-horse-battery"
)

// Server is a running API with the services behind it.
type Server struct {
	*httptest.Server
	Services server.Services
}

// New starts an API on a fresh store. It is closed when t finishes.
func New(t testing.TB, opts server.Options) *Server {
	t.Helper()
	st := storetest.Open(t)

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret-that-is-long-enough-for-hs256",
			TokenTTL:           time.Hour,
			LoginRatePerMinute: 6000,
			LoginBurst:         1000,
		},
		FinePerDay: decimal.RequireFromString("0.50"),
	}
	logger := logging.Discard()

	svcs, err := server.NewServices(st, cfg, opts, logger)
	if err != nil {
		t.Fatalf("create services: %v", err)
	}
	if err := svcs.Credential.Provision(context.Background(), credential.NewUser{Username: Username, Password: Password}); err != nil {
		t.Fatalf("provision user: %v", err)
	}

	srv := httptest.NewServer(server.NewRouter(svcs, logger))
	t.Cleanup(srv.Close)
	return &Server{Server: srv, Services: svcs}
}
