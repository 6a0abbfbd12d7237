/*
Package account derives account lifecycle state from event streams.

PURPOSE:
  Merges two push sources - the identity sign-in/sign-out stream and the
  balance-record subscription - through the pure classifier in the ledger
  package, and exposes the result as an AccountState event stream.

STATE FLOW:
  signed out                       -> StateSignedOut
  signed in, balance record absent -> StateDeleted
  signed in, sentinel currency     -> StateNew
  signed in, real currency         -> StateUsed
  subscription error               -> StateNone + the error

  Consecutive duplicate states are suppressed; consumers only see
  transitions.

SEE ALSO:
  - ledger/reconcile.go: Classify
  - identity/identity.go: Session stream
*/
package account

import (
	"context"

	"github.com/warp/pocket-ledger/identity"
	"github.com/warp/pocket-ledger/ledger"
)

// Event is one element of the lifecycle stream. Err is non-nil only for
// subscription failures, in which case State is StateNone.
type Event struct {
	State ledger.AccountState
	Err   error
}

// Watcher owns the merge loop. One Watcher per consumer; Watch may be
// called multiple times, each call gets an independent loop.
type Watcher struct {
	store ledger.Store
	ids   identity.Provider
}

func NewWatcher(store ledger.Store, ids identity.Provider) *Watcher {
	return &Watcher{store: store, ids: ids}
}

// Watch starts the merge loop and returns the lifecycle stream. The
// stream ends when ctx is done or the returned cancel func runs.
func (w *Watcher) Watch(ctx context.Context) (<-chan Event, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Event, 8)

	go w.run(ctx, out)
	return out, cancel
}

func (w *Watcher) run(ctx context.Context, out chan<- Event) {
	defer close(out)

	sessions, cancelSessions := w.ids.Subscribe()
	defer cancelSessions()

	var (
		balance   <-chan ledger.BalanceEvent
		cancelBal ledger.CancelFunc
		last      ledger.AccountState = ledger.StateNone
	)
	stopBalance := func() {
		if cancelBal != nil {
			cancelBal()
			cancelBal = nil
			balance = nil
		}
	}
	defer stopBalance()

	emit := func(ev Event) bool {
		if ev.Err == nil && ev.State == last {
			return true
		}
		select {
		case out <- ev:
			if ev.Err == nil {
				last = ev.State
			}
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case sess, ok := <-sessions:
			if !ok {
				return
			}
			stopBalance()
			if !sess.Present {
				if !emit(Event{State: ledger.StateSignedOut}) {
					return
				}
				continue
			}
			// New identity: classification comes from the subscription's
			// initial snapshot event.
			balance, cancelBal = w.store.SubscribeBalance(ctx, ledger.UserID(sess.UserID))

		case ev, ok := <-balance:
			if !ok {
				balance = nil
				continue
			}
			if ev.Err != nil {
				if !emit(Event{State: ledger.StateNone, Err: ev.Err}) {
					return
				}
				continue
			}
			if !emit(Event{State: ledger.Classify(true, ev.Snapshot)}) {
				return
			}
		}
	}
}
