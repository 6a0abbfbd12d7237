/*
reconcile.go - Signed deltas and account lifecycle classification

PURPOSE:
  The reconciliation rules that keep the running balance consistent with
  the record collection, and the pure classifier that derives account
  lifecycle state from identity presence and balance-record shape.

DELTA RULES:
  add:    income  -> +Amount     expense -> -Amount
  delete: income  -> -Amount     expense -> +Amount   (exact inverse)

CLASSIFICATION RULES:
  no identity                     -> StateSignedOut
  identity, balance record absent -> StateDeleted
  balance with sentinel currency  -> StateNew
  balance with real currency      -> StateUsed

No side effects here: stores call DeltaForAdd/DeltaForDelete when they
apply the balance increment, and the account watcher calls Classify on
every identity/balance event. Retry policy belongs to the transport
layer, never to this file.

SEE ALSO:
  - account/watcher.go: Feeds event streams through Classify
  - store.go: Where the deltas are applied
*/
package ledger

import "github.com/shopspring/decimal"

// DeltaForAdd returns the signed balance contribution of appending rec.
func DeltaForAdd(rec Record) decimal.Decimal {
	if rec.IsExpense {
		return rec.Amount.Neg()
	}
	return rec.Amount
}

// DeltaForDelete returns the signed balance contribution of removing rec.
// Always the exact inverse of DeltaForAdd.
func DeltaForDelete(rec Record) decimal.Decimal {
	return DeltaForAdd(rec).Neg()
}

// Classify derives the account lifecycle state. snapshot == nil means the
// balance record does not exist.
func Classify(identityPresent bool, snapshot *BalanceSnapshot) AccountState {
	switch {
	case !identityPresent:
		return StateSignedOut
	case snapshot == nil:
		return StateDeleted
	case !snapshot.Initialized():
		return StateNew
	default:
		return StateUsed
	}
}
