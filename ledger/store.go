/*
store.go - Persistence interface for records and balances

PURPOSE:
  Defines the interface between the ledger engine and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage.

KEY CONTRACT:
  AppendRecord / DeleteRecord: the record write and the signed balance
  delta are applied as ONE logical operation. SQL implementations wrap
  both in a single database transaction; an implementation that cannot
  must return *InconsistentStateError when the second half fails.

  FetchBatch: ascending-Timestamp cursor reads. With a nil cursor the
  first `limit` records are returned; with a cursor, up to `limit`
  records strictly greater than it. Results are NEVER out of order.

  SubscribeBalance: push subscription on the balance record. The current
  snapshot is delivered first, then every subsequent change, until the
  cancel func runs. Errors travel inside BalanceEvent, never as a panic
  across the subscription boundary.

IMPLEMENTATIONS:
  - store/sqlite:        Production SQLite
  - store/postgres:      Production PostgreSQL (lib/pq)
  - ledger/store/memory: In-memory for testing/dev

SEE ALSO:
  - subscription.go: The Hub used by implementations to fan out events
  - reconcile.go: Delta computation used by implementations
*/
package ledger

import "context"

// BalanceEvent is one element of the balance subscription stream: either
// a snapshot or an error, tagged, never both.
//
// Snapshot == nil with Err == nil means the balance record does not exist
// (account deleted or never created) — that absence is itself an event the
// lifecycle classifier consumes.
type BalanceEvent struct {
	Snapshot *BalanceSnapshot
	Err      error
}

// CancelFunc detaches a subscription. Safe to call more than once.
type CancelFunc func()

// Store handles persistence of records and balances for all users.
//
// Balance updates are serialized per user by the implementation; after any
// append/delete the balance equals the sum of signed contributions of the
// records currently present.
type Store interface {
	// AppendRecord writes an immutable record and applies its signed delta
	// (income +Amount, expense -Amount) to the user's balance in the same
	// logical operation.
	AppendRecord(ctx context.Context, user UserID, rec Record) error

	// DeleteRecord removes the record by ID and applies the inverse delta,
	// reversing the original contribution. ErrNotFound if absent.
	DeleteRecord(ctx context.Context, user UserID, id RecordID) error

	// FetchBatch returns up to limit records in ascending Timestamp order,
	// strictly after cursor when cursor is non-nil.
	FetchBatch(ctx context.Context, user UserID, cursor *int64, limit int) ([]Record, error)

	// Balance reads the current balance record. ErrNotFound if the account
	// has no balance record (deleted / never created).
	Balance(ctx context.Context, user UserID) (BalanceSnapshot, error)

	// SubscribeBalance delivers the current snapshot (or its absence) and
	// every subsequent change on the returned channel until cancelled.
	// The channel is closed after cancel.
	SubscribeBalance(ctx context.Context, user UserID) (<-chan BalanceEvent, CancelFunc)

	// CreateAccount creates the balance record with the sentinel currency
	// and a zero balance. ErrAccountExists if one is already present.
	CreateAccount(ctx context.Context, user UserID) error

	// SetCurrency assigns a real currency code, moving the account from
	// new to used. ErrNotFound if no balance record exists.
	SetCurrency(ctx context.Context, user UserID, code int) error

	// DeleteAccount removes the balance record and all records for the
	// user. Subscribers observe the absence as a nil-snapshot event.
	DeleteAccount(ctx context.Context, user UserID) error
}
