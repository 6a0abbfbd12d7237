/*
Package ledger provides the core transaction ledger engine.

PURPOSE:
  This package contains the types and algorithms for a per-user income/
  expense ledger: immutable records written against a single running
  balance, cursor-based batch reads over the record collection, and a
  push subscription on the balance that drives account lifecycle
  classification.

KEY CONCEPTS IN THIS FILE (types.go):
  - Record: An immutable income/expense entry, ordered by Timestamp
  - BalanceSnapshot: The single mutable running total per user
  - AccountState: Derived lifecycle classification (new/used/deleted/...)
  - UserID/RecordID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Records are never modified; the only mutation is delete,
     which reverses the record's balance contribution
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Ordering: Timestamp is the sole pagination key and is unique per user
  4. Derivation: AccountState is never stored, always computed

USAGE:
  rec := ledger.Record{
      ID:        "rec-1",
      IsExpense: true,
      Amount:    decimal.NewFromInt(30),
      Timestamp: clock.Next(),
  }
  err := store.AppendRecord(ctx, "user-1", rec)

SEE ALSO:
  - reconcile.go: Signed deltas and lifecycle classification
  - store.go: Persistence interface
  - errors.go: Error taxonomy
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type RecordID string
type CategoryID string

// =============================================================================
// RECORD - Immutable income/expense entry
// =============================================================================

// Record is a single income/expense entry. Immutable once created.
//
// Timestamp is the creation instant in epoch milliseconds and is the ONLY
// pagination/ordering key. It is unique per user: the creation path must
// never assign the same Timestamp twice (see TimestampSource in clock.go).
//
// Date is the user-selected logical date (backdated entries are allowed).
// It is used for display grouping only and never for ordering.
type Record struct {
	ID         RecordID
	IsExpense  bool
	CategoryID CategoryID
	Timestamp  int64
	Date       int64
	Amount     decimal.Decimal
}

// Valid reports whether the record can be appended: a non-empty ID and a
// non-negative amount. Sign is carried by IsExpense, never by Amount.
func (r Record) Valid() bool {
	return r.ID != "" && !r.Amount.IsNegative()
}

// =============================================================================
// BALANCE - Single running total per user, mutable
// =============================================================================

// CurrencyNone is the sentinel currency code of a freshly created account.
// A balance record holding this value classifies the account as StateNew.
const CurrencyNone = -1

// BalanceSnapshot is the state of a user's balance record at a point in
// time. The record itself lives in the Store; snapshots flow through the
// balance subscription.
type BalanceSnapshot struct {
	CurrencyCode int
	Balance      decimal.Decimal
}

// Initialized reports whether the account has been given a real currency.
func (b BalanceSnapshot) Initialized() bool {
	return b.CurrencyCode != CurrencyNone
}

// =============================================================================
// ACCOUNT LIFECYCLE STATE - Derived, never stored
// =============================================================================

// AccountState classifies a user's account from (a) identity presence and
// (b) the shape of the balance record. See Classify in reconcile.go.
type AccountState string

const (
	StateNone      AccountState = "none"       // transient/unknown
	StateSignedOut AccountState = "signed_out" // no identity
	StateDeleted   AccountState = "deleted"    // identity, balance record absent
	StateNew       AccountState = "new"        // balance record with sentinel currency
	StateUsed      AccountState = "used"       // balance record with real currency
)
