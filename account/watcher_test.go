package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pocket-ledger/account"
	"github.com/warp/pocket-ledger/identity"
	"github.com/warp/pocket-ledger/ledger"
	"github.com/warp/pocket-ledger/ledger/store"
)

func nextState(t *testing.T, events <-chan account.Event) ledger.AccountState {
	t.Helper()
	select {
	case ev := <-events:
		require.NoError(t, ev.Err)
		return ev.State
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lifecycle event")
		return ledger.StateNone
	}
}

func TestWatcher_FullLifecycle(t *testing.T) {
	// GIVEN: A signed-out identity and an empty store
	m := store.NewMemory()
	ids := identity.NewStatic()
	w := account.NewWatcher(m, ids)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, stop := w.Watch(ctx)
	defer stop()

	// THEN: The initial classification is signed out
	assert.Equal(t, ledger.StateSignedOut, nextState(t, events))

	// WHEN: A user signs in with no account yet
	ids.SignIn("user-1")
	assert.Equal(t, ledger.StateDeleted, nextState(t, events))

	// WHEN: The account is created (sentinel currency)
	require.NoError(t, m.CreateAccount(ctx, "user-1"))
	assert.Equal(t, ledger.StateNew, nextState(t, events))

	// WHEN: A real currency is assigned
	require.NoError(t, m.SetCurrency(ctx, "user-1", 978))
	assert.Equal(t, ledger.StateUsed, nextState(t, events))

	// WHEN: The account is deleted
	require.NoError(t, m.DeleteAccount(ctx, "user-1"))
	assert.Equal(t, ledger.StateDeleted, nextState(t, events))

	// WHEN: The user signs out
	ids.SignOut()
	assert.Equal(t, ledger.StateSignedOut, nextState(t, events))
}

func TestWatcher_SignInToExistingAccount(t *testing.T) {
	// GIVEN: A store already holding a used account
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, "user-1"))
	require.NoError(t, m.SetCurrency(ctx, "user-1", 840))

	ids := identity.NewStatic()
	ids.SignIn("user-1")

	// WHEN: Watching starts after sign-in
	events, stop := account.NewWatcher(m, ids).Watch(ctx)
	defer stop()

	// THEN: The first classification is already Used
	assert.Equal(t, ledger.StateUsed, nextState(t, events))
}

func TestWatcher_SuppressesDuplicateStates(t *testing.T) {
	// Balance changes that do not alter classification are not re-emitted.
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateAccount(ctx, "user-1"))
	require.NoError(t, m.SetCurrency(ctx, "user-1", 840))

	ids := identity.NewStatic()
	ids.SignIn("user-1")

	events, stop := account.NewWatcher(m, ids).Watch(ctx)
	defer stop()
	require.Equal(t, ledger.StateUsed, nextState(t, events))

	// WHEN: Records change the balance but not the lifecycle state
	rec := ledger.Record{ID: "r1", Timestamp: 1, Date: 1, Amount: decimal.NewFromInt(1)}
	require.NoError(t, m.AppendRecord(ctx, "user-1", rec))
	require.NoError(t, m.DeleteAccount(ctx, "user-1"))

	// THEN: The next emitted state is the deletion, not a repeated Used
	assert.Equal(t, ledger.StateDeleted, nextState(t, events))
}

func TestWatcher_StopEndsStream(t *testing.T) {
	m := store.NewMemory()
	ids := identity.NewStatic()

	events, stop := account.NewWatcher(m, ids).Watch(context.Background())
	require.Equal(t, ledger.StateSignedOut, nextState(t, events))

	stop()

	select {
	case _, open := <-events:
		assert.False(t, open, "stream must close after stop")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close")
	}
}
