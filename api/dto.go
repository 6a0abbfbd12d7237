/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/pocket-ledger/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RecordDTO represents one income/expense entry in API responses.
// Amount travels as a decimal string to avoid float drift in clients.
type RecordDTO struct {
	ID         string `json:"id"`
	IsExpense  bool   `json:"is_expense"`
	CategoryID string `json:"category_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Date       int64  `json:"date"`
	Amount     string `json:"amount"`
}

func toRecordDTO(r ledger.Record) RecordDTO {
	return RecordDTO{
		ID:         string(r.ID),
		IsExpense:  r.IsExpense,
		CategoryID: string(r.CategoryID),
		Timestamp:  r.Timestamp,
		Date:       r.Date,
		Amount:     r.Amount.String(),
	}
}

// CreateRecordRequest is the request to append a record. Timestamp and ID
// are assigned server-side; Date defaults to the assigned timestamp when
// omitted (zero).
type CreateRecordRequest struct {
	IsExpense  bool   `json:"is_expense"`
	CategoryID string `json:"category_id"`
	Date       int64  `json:"date"`
	Amount     string `json:"amount"`
}

// BatchDTO is one page of history.
type BatchDTO struct {
	Records    []RecordDTO `json:"records"`
	NextCursor *int64      `json:"next_cursor,omitempty"`
}

// BalanceDTO represents the running balance.
type BalanceDTO struct {
	CurrencyCode int    `json:"currency_code"`
	Balance      string `json:"balance"`
}

// SetCurrencyRequest assigns a real currency to a new account.
type SetCurrencyRequest struct {
	CurrencyCode int `json:"currency_code"`
}

// StateDTO reports the derived account lifecycle state.
type StateDTO struct {
	State ledger.AccountState `json:"state"`
}

// ErrorDTO is the uniform error envelope.
type ErrorDTO struct {
	Error string `json:"error"`
}
