/*
handlers.go - HTTP API handlers for the pocket ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the store and reconciliation
  logic.

ENDPOINTS:
  Accounts:
    POST   /api/users/{id}/account     Create account (NEW lifecycle state)
    DELETE /api/users/{id}/account     Delete account and all records
    PUT    /api/users/{id}/currency    Assign real currency (NEW -> USED)
    GET    /api/users/{id}/balance     Running balance
    GET    /api/users/{id}/state       Derived lifecycle state

  Records:
    POST   /api/users/{id}/records              Append income/expense record
    DELETE /api/users/{id}/records/{recordID}   Delete record (reverses balance)
    GET    /api/users/{id}/records              Batch fetch (?cursor=&limit=)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record/balance not found
  - 409: Account already exists, timestamp collision
  - 500: Transport failures, inconsistent state

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/pocket-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store ledger.Store
	Clock *ledger.TimestampSource

	// Default batch size when the client omits ?limit=.
	PageSize int
}

// NewHandler creates a new handler with the given store.
func NewHandler(store ledger.Store, pageSize int) *Handler {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Handler{
		Store:    store,
		Clock:    ledger.NewTimestampSource(),
		PageSize: pageSize,
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))
	if err := h.Store.CreateAccount(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, StateDTO{State: ledger.StateNew})
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteAccount(r.Context(), user); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateDTO{State: ledger.StateDeleted})
}

func (h *Handler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	var req SetCurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.CurrencyCode == ledger.CurrencyNone {
		writeBadRequest(w, "currency_code must be a real currency")
		return
	}

	if err := h.Store.SetCurrency(r.Context(), user, req.CurrencyCode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateDTO{State: ledger.StateUsed})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	snap, err := h.Store.Balance(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		CurrencyCode: snap.CurrencyCode,
		Balance:      snap.Balance.String(),
	})
}

// GetState classifies the account. The caller reached us with a user id,
// so identity is present; signed-out classification belongs to clients
// that own the identity stream (see account.Watcher).
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	snap, err := h.Store.Balance(r.Context(), user)
	if err != nil {
		if ledger.IsNotFound(err) {
			writeJSON(w, http.StatusOK, StateDTO{State: ledger.Classify(true, nil)})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateDTO{State: ledger.Classify(true, &snap)})
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	var req CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid amount %q", req.Amount))
		return
	}
	if amount.IsNegative() {
		writeBadRequest(w, "amount must be non-negative")
		return
	}

	ts := h.Clock.Next()
	date := req.Date
	if date == 0 {
		date = ts
	}
	rec := ledger.Record{
		ID:         ledger.RecordID(fmt.Sprintf("rec-%d", ts)),
		IsExpense:  req.IsExpense,
		CategoryID: ledger.CategoryID(req.CategoryID),
		Timestamp:  ts,
		Date:       date,
		Amount:     amount,
	}

	if err := h.Store.AppendRecord(r.Context(), user, rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))
	id := ledger.RecordID(chi.URLParam(r, "recordID"))

	if err := h.Store.DeleteRecord(r.Context(), user, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetRecords(w http.ResponseWriter, r *http.Request) {
	user := ledger.UserID(chi.URLParam(r, "id"))

	var cursor *int64
	if v := r.URL.Query().Get("cursor"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid cursor %q", v))
			return
		}
		cursor = &ts
	}

	limit := h.PageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	batch, err := h.Store.FetchBatch(r.Context(), user, cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	dto := BatchDTO{Records: make([]RecordDTO, 0, len(batch))}
	for _, rec := range batch {
		dto.Records = append(dto.Records, toRecordDTO(rec))
	}
	if len(batch) > 0 {
		next := batch[len(batch)-1].Timestamp
		dto.NextCursor = &next
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: msg})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case ledger.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrAccountExists), errors.Is(err, ledger.ErrDuplicateTimestamp):
		status = http.StatusConflict
	case ledger.IsClientError(err):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, ErrorDTO{Error: err.Error()})
}
