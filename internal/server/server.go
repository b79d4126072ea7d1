// internal/server/server.go

// Package server assembles the HTTP API from the service handlers.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"librarian/internal/apperr"
	"librarian/internal/catalog"
	"librarian/internal/circulation"
	"librarian/internal/credential"
	"librarian/internal/httpx"
	"librarian/internal/membership"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services is everything the router dispatches to.
type Services struct {
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service
	Auditor     *circulation.Auditor
	Credential  credential.Service
	Tokens      *credential.Tokens
	Store       Pinger
}

// NewRouter returns the API handler. Everything under /api/v1 except login
// requires a bearer token.
func NewRouter(svc Services, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(svc.Store))

	r.Route("/api/v1", func(r chi.Router) {
		credential.NewHandler(svc.Credential, svc.Tokens).Routes(r)

		r.Group(func(r chi.Router) {
			r.Use(svc.Tokens.Middleware)
			catalog.NewHandler(svc.Catalog).Routes(r)
			membership.NewHandler(svc.Membership).Routes(r)
			circulation.NewHandler(svc.Circulation, svc.Auditor).Routes(r)
		})
	})

	return r
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			httpx.WriteFailure(w, http.StatusServiceUnavailable,
				apperr.ConnectionUnavailable.String(), "database unreachable")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
