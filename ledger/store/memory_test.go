package store_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pocket-ledger/ledger"
	"github.com/warp/pocket-ledger/ledger/store"
)

const user = ledger.UserID("user-1")

func newAccount(t *testing.T) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	require.NoError(t, m.CreateAccount(context.Background(), user))
	return m
}

func income(id string, ts int64, amount int64) ledger.Record {
	return ledger.Record{ID: ledger.RecordID(id), Timestamp: ts, Date: ts, Amount: decimal.NewFromInt(amount)}
}

func expense(id string, ts int64, amount int64) ledger.Record {
	r := income(id, ts, amount)
	r.IsExpense = true
	return r
}

// =============================================================================
// BALANCE CONSERVATION
// =============================================================================

func TestMemory_BalanceConservation(t *testing.T) {
	// GIVEN: A fresh account
	// WHEN: income 100, expense 30, then the expense is deleted
	// THEN: balance walks 100 -> 70 -> 100

	m := newAccount(t)
	ctx := context.Background()

	require.NoError(t, m.AppendRecord(ctx, user, income("r1", 1, 100)))
	snap, err := m.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(100)))

	require.NoError(t, m.AppendRecord(ctx, user, expense("r2", 2, 30)))
	snap, err = m.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(70)))

	require.NoError(t, m.DeleteRecord(ctx, user, "r2"))
	snap, err = m.Balance(ctx, user)
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(100)))
}

func TestMemory_AppendWithoutAccount_NotFound(t *testing.T) {
	m := store.NewMemory()
	err := m.AppendRecord(context.Background(), user, income("r1", 1, 10))
	assert.True(t, ledger.IsNotFound(err))
}

func TestMemory_DeleteMissingRecord_NotFound(t *testing.T) {
	m := newAccount(t)
	err := m.DeleteRecord(context.Background(), user, "nope")
	assert.True(t, ledger.IsNotFound(err))
}

func TestMemory_DuplicateTimestamp_Rejected(t *testing.T) {
	m := newAccount(t)
	ctx := context.Background()

	require.NoError(t, m.AppendRecord(ctx, user, income("r1", 7, 10)))
	err := m.AppendRecord(ctx, user, income("r2", 7, 10))
	assert.ErrorIs(t, err, ledger.ErrDuplicateTimestamp)

	// The rejected append must not have touched the balance.
	snap, err2 := m.Balance(ctx, user)
	require.NoError(t, err2)
	assert.True(t, snap.Balance.Equal(decimal.NewFromInt(10)))
}

func TestMemory_NegativeAmount_Rejected(t *testing.T) {
	m := newAccount(t)
	rec := income("r1", 1, 10)
	rec.Amount = decimal.NewFromInt(-10)
	assert.ErrorIs(t, m.AppendRecord(context.Background(), user, rec), ledger.ErrInvalidRecord)
}

// =============================================================================
// FETCH BATCH
// =============================================================================

func TestMemory_FetchBatch_CursorSemantics(t *testing.T) {
	// GIVEN: Records appended out of timestamp order (a backdated entry)
	m := newAccount(t)
	ctx := context.Background()
	for _, ts := range []int64{3, 1, 5, 2, 4} {
		require.NoError(t, m.AppendRecord(ctx, user, income(string(rune('a'+ts)), ts, 1)))
	}

	// WHEN: Fetching from the head
	batch, err := m.FetchBatch(ctx, user, nil, 3)
	require.NoError(t, err)
	// THEN: Ascending timestamps from the start
	require.Len(t, batch, 3)
	assert.Equal(t, []int64{1, 2, 3}, timestamps(batch))

	// WHEN: Resuming strictly after the cursor
	cursor := batch[len(batch)-1].Timestamp
	batch, err = m.FetchBatch(ctx, user, &cursor, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, timestamps(batch))

	// WHEN: The cursor is past the tail
	cursor = 5
	batch, err = m.FetchBatch(ctx, user, &cursor, 3)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func timestamps(recs []ledger.Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.Timestamp
	}
	return out
}

// =============================================================================
// BALANCE SUBSCRIPTION
// =============================================================================

func TestMemory_SubscribeBalance_InitialAndUpdates(t *testing.T) {
	// GIVEN: An account with one subscriber
	m := newAccount(t)
	ctx := context.Background()

	events, cancel := m.SubscribeBalance(ctx, user)
	defer cancel()

	// THEN: The initial snapshot arrives first (sentinel currency, zero balance)
	ev := <-events
	require.NoError(t, ev.Err)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, ledger.CurrencyNone, ev.Snapshot.CurrencyCode)
	assert.True(t, ev.Snapshot.Balance.IsZero())

	// WHEN: The account gains a currency and a record
	require.NoError(t, m.SetCurrency(ctx, user, 978))
	ev = <-events
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, 978, ev.Snapshot.CurrencyCode)

	require.NoError(t, m.AppendRecord(ctx, user, expense("r1", 1, 25)))
	ev = <-events
	require.NotNil(t, ev.Snapshot)
	assert.True(t, ev.Snapshot.Balance.Equal(decimal.NewFromInt(-25)))

	// WHEN: The account is deleted
	require.NoError(t, m.DeleteAccount(ctx, user))
	// THEN: Subscribers observe the absence as a nil snapshot
	ev = <-events
	require.NoError(t, ev.Err)
	assert.Nil(t, ev.Snapshot)
}

func TestMemory_SubscribeBalance_AbsentAccount(t *testing.T) {
	m := store.NewMemory()
	events, cancel := m.SubscribeBalance(context.Background(), user)
	defer cancel()

	ev := <-events
	assert.NoError(t, ev.Err)
	assert.Nil(t, ev.Snapshot, "initial event for a missing account is the absence itself")
}

func TestMemory_SubscribeBalance_CancelClosesChannel(t *testing.T) {
	m := newAccount(t)
	events, cancel := m.SubscribeBalance(context.Background(), user)

	<-events // initial
	cancel()

	_, open := <-events
	assert.False(t, open)
}

// =============================================================================
// ACCOUNT LIFECYCLE OPERATIONS
// =============================================================================

func TestMemory_CreateAccount_Twice(t *testing.T) {
	m := newAccount(t)
	err := m.CreateAccount(context.Background(), user)
	assert.ErrorIs(t, err, ledger.ErrAccountExists)
}

func TestMemory_SetCurrency_NoAccount(t *testing.T) {
	m := store.NewMemory()
	err := m.SetCurrency(context.Background(), user, 840)
	assert.True(t, ledger.IsNotFound(err))
}

func TestMemory_DeleteAccount_RemovesRecords(t *testing.T) {
	m := newAccount(t)
	ctx := context.Background()
	require.NoError(t, m.AppendRecord(ctx, user, income("r1", 1, 10)))

	require.NoError(t, m.DeleteAccount(ctx, user))

	_, err := m.Balance(ctx, user)
	assert.True(t, ledger.IsNotFound(err))
	batch, err := m.FetchBatch(ctx, user, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
