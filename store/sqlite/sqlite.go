/*
Package sqlite provides a SQLite-backed implementation of the ledger Store.

PURPOSE:
  Implements ledger.Store using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences (see
  store/postgres).

KEY TABLES:
  records:  Immutable income/expense entries, one row per record
  balances: One mutable row per user (currency + running total)

ATOMICITY:
  AppendRecord and DeleteRecord wrap the record write and the balance
  delta in a single database transaction. The pair either commits
  together or not at all, so the conservation invariant (balance equals
  the sum of signed contributions of the records present) holds after
  every operation. InconsistentStateError is reserved for a commit
  failing after partial application, which SQLite's transactionality
  rules out on this path.

ORDERING:
  records carries UNIQUE(user_id, timestamp); timestamp is the sole
  pagination key and FetchBatch always orders by it ascending.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Balance updates are therefore
  serialized per process; WAL mode keeps readers unblocked.

SUBSCRIPTIONS:
  Balance change events fan out through a ledger.Hub, published after
  commit while still holding the write lock, so subscribers observe
  changes in commit order.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definition and contracts
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/pocket-ledger/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	hub *ledger.Hub
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, hub: ledger.NewHub()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Records (immutable income/expense entries)
	CREATE TABLE IF NOT EXISTS records (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		is_expense BOOLEAN NOT NULL,
		category_id TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		date INTEGER NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	-- CRITICAL: timestamp is the sole pagination key and must be unique
	-- per user. The creation path disambiguates same-millisecond appends;
	-- this index is the backstop.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_user_timestamp
		ON records(user_id, timestamp);

	-- Balances (one mutable row per user)
	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT PRIMARY KEY,
		currency_code INTEGER NOT NULL,
		balance TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD OPERATIONS (ledger.Store interface)
// =============================================================================

// AppendRecord writes the record and applies its signed delta to the
// balance inside one database transaction.
func (s *Store) AppendRecord(ctx context.Context, user ledger.UserID, rec ledger.Record) error {
	if !rec.Valid() {
		return ledger.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.TransportError{Op: "append", Cause: err}
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO records (user_id, id, is_expense, category_id, timestamp, date, amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user, rec.ID, rec.IsExpense, rec.CategoryID, rec.Timestamp, rec.Date, rec.Amount.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			if strings.Contains(err.Error(), "idx_records_user_timestamp") {
				return fmt.Errorf("timestamp %d already used: %w", rec.Timestamp, ledger.ErrDuplicateTimestamp)
			}
			return fmt.Errorf("record id %s already exists: %w", rec.ID, ledger.ErrInvalidRecord)
		}
		return &ledger.TransportError{Op: "append", Cause: err}
	}

	if err := s.applyDelta(ctx, sqlTx, user, ledger.DeltaForAdd(rec)); err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}

	if err := sqlTx.Commit(); err != nil {
		return &ledger.InconsistentStateError{UserID: user, RecordID: rec.ID, Op: "append", Cause: err}
	}

	s.publishLocked(ctx, user)
	return nil
}

// DeleteRecord removes the record and applies the inverse delta inside
// one database transaction.
func (s *Store) DeleteRecord(ctx context.Context, user ledger.UserID, id ledger.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.TransportError{Op: "delete", Cause: err}
	}
	defer sqlTx.Rollback()

	rec, err := scanRecord(sqlTx.QueryRowContext(ctx, `
		SELECT id, is_expense, category_id, timestamp, date, amount
		FROM records WHERE user_id = ? AND id = ?`,
		user, id,
	))
	if err == sql.ErrNoRows {
		return fmt.Errorf("delete record %s: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return &ledger.TransportError{Op: "delete", Cause: err}
	}

	if _, err := sqlTx.ExecContext(ctx,
		"DELETE FROM records WHERE user_id = ? AND id = ?", user, id,
	); err != nil {
		return &ledger.TransportError{Op: "delete", Cause: err}
	}

	if err := s.applyDelta(ctx, sqlTx, user, ledger.DeltaForDelete(rec)); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}

	if err := sqlTx.Commit(); err != nil {
		return &ledger.InconsistentStateError{UserID: user, RecordID: id, Op: "delete", Cause: err}
	}

	s.publishLocked(ctx, user)
	return nil
}

// applyDelta adds delta to the user's balance within sqlTx. The read and
// write happen inside the transaction, never against a client-side cache.
func (s *Store) applyDelta(ctx context.Context, sqlTx *sql.Tx, user ledger.UserID, delta decimal.Decimal) error {
	var raw string
	err := sqlTx.QueryRowContext(ctx,
		"SELECT balance FROM balances WHERE user_id = ?", user,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("no balance record for user %s: %w", user, ledger.ErrNotFound)
	}
	if err != nil {
		return &ledger.TransportError{Op: "balance read", Cause: err}
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt balance %q for user %s: %w", raw, user, err)
	}

	_, err = sqlTx.ExecContext(ctx,
		"UPDATE balances SET balance = ? WHERE user_id = ?",
		balance.Add(delta).String(), user,
	)
	if err != nil {
		return &ledger.TransportError{Op: "balance update", Cause: err}
	}
	return nil
}

// FetchBatch returns up to limit records strictly after cursor, ascending
// by timestamp.
func (s *Store) FetchBatch(ctx context.Context, user ledger.UserID, cursor *int64, limit int) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	after := int64(-1 << 62)
	if cursor != nil {
		after = *cursor
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, is_expense, category_id, timestamp, date, amount
		FROM records
		WHERE user_id = ? AND timestamp > ?
		ORDER BY timestamp ASC
		LIMIT ?`,
		user, after, limit,
	)
	if err != nil {
		return nil, &ledger.TransportError{Op: "fetch batch", Cause: err}
	}
	defer rows.Close()

	var result []ledger.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &ledger.TransportError{Op: "fetch batch", Cause: err}
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// =============================================================================
// BALANCE OPERATIONS
// =============================================================================

func (s *Store) Balance(ctx context.Context, user ledger.UserID) (ledger.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readBalance(ctx, user)
}

func (s *Store) readBalance(ctx context.Context, user ledger.UserID) (ledger.BalanceSnapshot, error) {
	var (
		code int
		raw  string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT currency_code, balance FROM balances WHERE user_id = ?", user,
	).Scan(&code, &raw)
	if err == sql.ErrNoRows {
		return ledger.BalanceSnapshot{}, fmt.Errorf("balance for user %s: %w", user, ledger.ErrNotFound)
	}
	if err != nil {
		return ledger.BalanceSnapshot{}, &ledger.TransportError{Op: "balance read", Cause: err}
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return ledger.BalanceSnapshot{}, fmt.Errorf("corrupt balance %q for user %s: %w", raw, user, err)
	}
	return ledger.BalanceSnapshot{CurrencyCode: code, Balance: balance}, nil
}

// SubscribeBalance registers under the write lock so the initial snapshot
// cannot interleave with a concurrent mutation's publish.
func (s *Store) SubscribeBalance(ctx context.Context, user ledger.UserID) (<-chan ledger.BalanceEvent, ledger.CancelFunc) {
	s.mu.Lock()
	ch, cancel := s.hub.Subscribe(user)
	ch <- s.eventLocked(ctx, user)
	s.mu.Unlock()

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			cancel()
		}()
	}
	return ch, cancel
}

func (s *Store) CreateAccount(ctx context.Context, user ledger.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO balances (user_id, currency_code, balance) VALUES (?, ?, '0')",
		user, ledger.CurrencyNone,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("create account for user %s: %w", user, ledger.ErrAccountExists)
		}
		return &ledger.TransportError{Op: "create account", Cause: err}
	}

	s.publishLocked(ctx, user)
	return nil
}

func (s *Store) SetCurrency(ctx context.Context, user ledger.UserID, code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE balances SET currency_code = ? WHERE user_id = ?", code, user,
	)
	if err != nil {
		return &ledger.TransportError{Op: "set currency", Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set currency for user %s: %w", user, ledger.ErrNotFound)
	}

	s.publishLocked(ctx, user)
	return nil
}

// DeleteAccount removes the balance record and all records for the user.
func (s *Store) DeleteAccount(ctx context.Context, user ledger.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.TransportError{Op: "delete account", Cause: err}
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM records WHERE user_id = ?", user); err != nil {
		return &ledger.TransportError{Op: "delete account", Cause: err}
	}
	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM balances WHERE user_id = ?", user); err != nil {
		return &ledger.TransportError{Op: "delete account", Cause: err}
	}
	if err := sqlTx.Commit(); err != nil {
		return &ledger.TransportError{Op: "delete account", Cause: err}
	}

	s.publishLocked(ctx, user)
	return nil
}

// publishLocked pushes the post-commit balance (or its absence) to
// subscribers. Callers hold s.mu.
func (s *Store) publishLocked(ctx context.Context, user ledger.UserID) {
	s.hub.Publish(user, s.eventLocked(ctx, user))
}

func (s *Store) eventLocked(ctx context.Context, user ledger.UserID) ledger.BalanceEvent {
	snap, err := s.readBalance(ctx, user)
	if err != nil {
		if ledger.IsNotFound(err) {
			return ledger.BalanceEvent{}
		}
		return ledger.BalanceEvent{Err: err}
	}
	return ledger.BalanceEvent{Snapshot: &snap}
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ledger.Record, error) {
	var (
		rec ledger.Record
		raw string
	)
	err := row.Scan(&rec.ID, &rec.IsExpense, &rec.CategoryID, &rec.Timestamp, &rec.Date, &raw)
	if err != nil {
		return ledger.Record{}, err
	}
	rec.Amount, err = decimal.NewFromString(raw)
	if err != nil {
		return ledger.Record{}, fmt.Errorf("corrupt amount %q for record %s: %w", raw, rec.ID, err)
	}
	return rec, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
