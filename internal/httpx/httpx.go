// internal/httpx/httpx.go

// Package httpx holds the JSON response helpers shared by every handler.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"librarian/internal/apperr"
)

// Failure is the body of every unsuccessful response.
type Failure struct {
	OK     bool   `json:"ok"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Status maps a service error onto an HTTP status.
func Status(err error) int {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		if errors.Is(err, apperr.ErrNotFound) {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case apperr.Integrity:
		return http.StatusConflict
	case apperr.ConnectionUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encode response", slog.Any("error", err))
	}
}

// WriteError reports err with the status its kind maps to. Unexpected
// failures are logged and their detail withheld from the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	kind := apperr.KindOf(err)
	reason := apperr.Reason(err)
	if status == http.StatusInternalServerError {
		slog.Default().ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		reason = "internal error"
	}
	WriteFailure(w, status, kind.String(), reason)
}

func WriteFailure(w http.ResponseWriter, status int, kind, reason string) {
	WriteJSON(w, status, Failure{OK: false, Kind: kind, Reason: reason})
}

// Decode reads a JSON body into dst. A malformed body is a validation failure.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validationf("decode", "malformed request body: %v", err)
	}
	return nil
}

// IDParam parses the named chi URL parameter as a UUID.
func IDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validationf("decode", "invalid %s %q", name, raw)
	}
	return id, nil
}

// QueryID parses an optional UUID query parameter.
func QueryID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.E(apperr.Validation, "decode", fmt.Errorf("invalid %s %q", name, raw))
	}
	return &id, nil
}
