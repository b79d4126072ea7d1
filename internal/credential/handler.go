// internal/credential/handler.go
package credential

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"librarian/internal/httpx"
)

type Handler struct {
	service Service
	tokens  *Tokens
}

func NewHandler(service Service, tokens *Tokens) *Handler {
	return &Handler{service: service, tokens: tokens}
}

// Routes mounts the unauthenticated login endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	if err := h.service.Verify(r.Context(), req.Username, req.Password); err != nil {
		switch {
		case errors.Is(err, ErrRateLimited):
			httpx.WriteFailure(w, http.StatusTooManyRequests, "rate_limited", ErrRateLimited.Error())
		case errors.Is(err, ErrInvalidCredentials):
			httpx.WriteFailure(w, http.StatusUnauthorized, "unauthenticated", ErrInvalidCredentials.Error())
		default:
			httpx.WriteError(w, r, err)
		}
		return
	}

	token, expiresAt, err := h.tokens.Issue(req.Username)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, Session{Token: token, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)})
}
