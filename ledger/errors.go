/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is/errors.As; nothing in this package panics
  or throws across a subscription boundary.

ERROR CATEGORIES:
  1. Transport errors - Store unreachable or denied
  2. Not-found errors - Record/balance missing on delete or update
  3. Consistency errors - Record written but balance update failed

USAGE:
    if errors.Is(err, ledger.ErrNotFound) {
        // render 404
    }
    var inc *ledger.InconsistentStateError
    if errors.As(err, &inc) {
        // surface for manual reconciliation
    }

SEE ALSO:
  - store.go: Operations returning these errors
  - api/handlers.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTransport is returned when the backing store is unreachable or
	// refuses the operation. Wrapped around the driver error.
	ErrTransport = errors.New("store transport failure")

	// ErrNotFound is returned when a record or balance document does not
	// exist for a delete, update, or point read.
	ErrNotFound = errors.New("not found")

	// ErrInconsistentState is returned when a record write succeeded but
	// the paired balance update failed (or vice versa). The stores in this
	// repository apply both inside one database transaction, so this
	// surfaces only from stores that cannot guarantee that.
	ErrInconsistentState = errors.New("record and balance out of sync")

	// ErrAccountExists is returned when creating an account that already
	// has a balance record.
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidRecord is returned for records with an empty ID or a
	// negative amount.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrDuplicateTimestamp is returned when a record would violate the
	// per-user timestamp uniqueness that pagination ordering depends on.
	ErrDuplicateTimestamp = errors.New("duplicate record timestamp")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InconsistentStateError reports a half-applied write: which user, which
// record, and which half failed. Operators reconcile these manually.
type InconsistentStateError struct {
	UserID   UserID
	RecordID RecordID
	Op       string // "append" or "delete"
	Cause    error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent state: %s of record %s for user %s half-applied: %v",
		e.Op, e.RecordID, e.UserID, e.Cause)
}

func (e *InconsistentStateError) Unwrap() error {
	return ErrInconsistentState
}

// TransportError wraps a driver-level failure with the operation name so
// logs can say which call path died.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure in %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return ErrTransport
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record/balance.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError reports whether the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrDuplicateTimestamp)
}
