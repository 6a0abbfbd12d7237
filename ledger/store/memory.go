// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/pocket-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	records  map[ledger.UserID][]ledger.Record // sorted ascending by Timestamp
	balances map[ledger.UserID]*ledger.BalanceSnapshot
	hub      *ledger.Hub
}

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[ledger.UserID][]ledger.Record),
		balances: make(map[ledger.UserID]*ledger.BalanceSnapshot),
		hub:      ledger.NewHub(),
	}
}

// AppendRecord inserts rec in Timestamp order and applies its signed delta
// to the balance. Both happen under one lock, so the conservation
// invariant holds after every call.
func (m *Memory) AppendRecord(_ context.Context, user ledger.UserID, rec ledger.Record) error {
	if !rec.Valid() {
		return ledger.ErrInvalidRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[user]
	if !ok {
		return fmt.Errorf("append record %s: no balance record for user %s: %w",
			rec.ID, user, ledger.ErrNotFound)
	}

	recs := m.records[user]
	for _, r := range recs {
		if r.ID == rec.ID {
			return fmt.Errorf("record id %s already exists: %w", rec.ID, ledger.ErrInvalidRecord)
		}
		if r.Timestamp == rec.Timestamp {
			return fmt.Errorf("timestamp %d already used by record %s: %w",
				rec.Timestamp, r.ID, ledger.ErrDuplicateTimestamp)
		}
	}

	// Binary search for insertion point, same as loading out-of-order
	// backdated entries: the slice stays sorted by Timestamp.
	i := sort.Search(len(recs), func(i int) bool {
		return recs[i].Timestamp > rec.Timestamp
	})
	recs = append(recs, ledger.Record{})
	copy(recs[i+1:], recs[i:])
	recs[i] = rec
	m.records[user] = recs

	bal.Balance = bal.Balance.Add(ledger.DeltaForAdd(rec))
	m.publishLocked(user)
	return nil
}

// DeleteRecord removes the record and applies the inverse delta,
// reversing its original contribution.
func (m *Memory) DeleteRecord(_ context.Context, user ledger.UserID, id ledger.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.records[user]
	idx := -1
	for i, r := range recs {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("delete record %s: %w", id, ledger.ErrNotFound)
	}

	bal, ok := m.balances[user]
	if !ok {
		return fmt.Errorf("delete record %s: no balance record for user %s: %w",
			id, user, ledger.ErrNotFound)
	}

	rec := recs[idx]
	m.records[user] = append(recs[:idx], recs[idx+1:]...)
	bal.Balance = bal.Balance.Add(ledger.DeltaForDelete(rec))
	m.publishLocked(user)
	return nil
}

func (m *Memory) FetchBatch(_ context.Context, user ledger.UserID, cursor *int64, limit int) ([]ledger.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit < 0 {
		limit = 0
	}
	recs := m.records[user]
	start := 0
	if cursor != nil {
		start = sort.Search(len(recs), func(i int) bool {
			return recs[i].Timestamp > *cursor
		})
	}
	end := start + limit
	if end > len(recs) {
		end = len(recs)
	}

	result := make([]ledger.Record, end-start)
	copy(result, recs[start:end])
	return result, nil
}

func (m *Memory) Balance(_ context.Context, user ledger.UserID) (ledger.BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bal, ok := m.balances[user]
	if !ok {
		return ledger.BalanceSnapshot{}, fmt.Errorf("balance for user %s: %w", user, ledger.ErrNotFound)
	}
	return *bal, nil
}

// SubscribeBalance registers under the write lock so the initial snapshot
// cannot interleave with a concurrent mutation's publish.
func (m *Memory) SubscribeBalance(ctx context.Context, user ledger.UserID) (<-chan ledger.BalanceEvent, ledger.CancelFunc) {
	m.mu.Lock()
	ch, cancel := m.hub.Subscribe(user)
	ch <- m.eventLocked(user)
	m.mu.Unlock()

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			cancel()
		}()
	}
	return ch, cancel
}

func (m *Memory) CreateAccount(_ context.Context, user ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.balances[user]; ok {
		return fmt.Errorf("create account for user %s: %w", user, ledger.ErrAccountExists)
	}
	m.balances[user] = &ledger.BalanceSnapshot{
		CurrencyCode: ledger.CurrencyNone,
		Balance:      decimal.Zero,
	}
	m.publishLocked(user)
	return nil
}

func (m *Memory) SetCurrency(_ context.Context, user ledger.UserID, code int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.balances[user]
	if !ok {
		return fmt.Errorf("set currency for user %s: %w", user, ledger.ErrNotFound)
	}
	bal.CurrencyCode = code
	m.publishLocked(user)
	return nil
}

func (m *Memory) DeleteAccount(_ context.Context, user ledger.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.balances, user)
	delete(m.records, user)
	m.publishLocked(user)
	return nil
}

// publishLocked pushes the current balance (or its absence) to
// subscribers. Callers hold m.mu.
func (m *Memory) publishLocked(user ledger.UserID) {
	m.hub.Publish(user, m.eventLocked(user))
}

func (m *Memory) eventLocked(user ledger.UserID) ledger.BalanceEvent {
	bal, ok := m.balances[user]
	if !ok {
		return ledger.BalanceEvent{}
	}
	snap := *bal
	return ledger.BalanceEvent{Snapshot: &snap}
}
