// internal/circulation/handler.go
package circulation

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"librarian/internal/apperr"
	"librarian/internal/httpx"
)

type Handler struct {
	service Service
	auditor *Auditor
}

func NewHandler(service Service, auditor *Auditor) *Handler {
	return &Handler{service: service, auditor: auditor}
}

// LoanRequest names the book and member of an issue or return.
type LoanRequest struct {
	BookID   uuid.UUID `json:"book_id"`
	MemberID uuid.UUID `json:"member_id"`
}

// Routes mounts the loan and audit endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/loans/issue", h.handleIssue)
	r.Post("/loans/return", h.handleReturn)
	r.Get("/loans", h.handleList)
	r.Get("/loans/overdue", h.handleOverdue)
	r.Get("/loans/{id}", h.handleGetLoan)
	r.Get("/loans/{id}/events", h.handleLoanHistory)
	r.Get("/audit", h.handleAudit)
}

func (h *Handler) decodeLoanRequest(r *http.Request) (LoanRequest, error) {
	var req LoanRequest
	if err := httpx.Decode(r, &req); err != nil {
		return req, err
	}
	if req.BookID == uuid.Nil || req.MemberID == uuid.Nil {
		return req, apperr.Validationf("decode", "book_id and member_id are required")
	}
	return req, nil
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeLoanRequest(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	loan, err := h.service.IssueBook(r.Context(), req.BookID, req.MemberID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, loan)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeLoanRequest(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	loan, err := h.service.ReturnBook(r.Context(), req.BookID, req.MemberID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filter LoanFilter
	var err error
	if filter.BookID, err = httpx.QueryID(r, "book_id"); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if filter.MemberID, err = httpx.QueryID(r, "member_id"); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("open"); raw != "" {
		if filter.OpenOnly, err = strconv.ParseBool(raw); err != nil {
			httpx.WriteError(w, r, apperr.Validationf("decode", "invalid open %q", raw))
			return
		}
	}

	loans, err := h.service.ListLoans(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.OverdueLoans(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loans)
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loan)
}

func (h *Handler) handleLoanHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	history, err := h.service.LoanHistory(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, history)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	found, err := h.auditor.Check(r.Context())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, found)
}
