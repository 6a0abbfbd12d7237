/*
Package postgres provides a PostgreSQL-backed implementation of the
ledger Store over lib/pq.

PURPOSE:
  The production multi-process backend. Same contract as store/sqlite,
  but balance serialization uses row locks (SELECT ... FOR UPDATE)
  instead of a process-wide mutex, so concurrent writers across
  processes still leave the conservation invariant intact.

SCHEMA:
  Migrate() creates the records and balances tables; run it once at
  startup. For fleets, move the DDL into a versioned migration tool.

SUBSCRIPTIONS:
  Change fan-out happens through an in-process ledger.Hub, so a
  subscriber sees every change committed through THIS process. Cross-
  process push (LISTEN/NOTIFY) is a deployment concern left to the
  transport layer.

SEE ALSO:
  - ledger/store.go: Interface definition and contracts
  - store/sqlite: Single-process backend, shared test suite shape
*/
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/warp/pocket-ledger/ledger"
)

const uniqueViolation = "23505"

// Store implements ledger.Store using PostgreSQL.
type Store struct {
	db *sql.DB

	// Guards subscription registration against publish ordering only;
	// data races are handled by row locks in the database.
	mu  sync.Mutex
	hub *ledger.Hub
}

// New wraps an open *sql.DB (driver "postgres").
func New(db *sql.DB) *Store {
	return &Store{db: db, hub: ledger.NewHub()}
}

// Open connects with the given DSN and pings the server.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &ledger.TransportError{Op: "open", Cause: err}
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		user_id TEXT NOT NULL,
		id TEXT NOT NULL,
		is_expense BOOLEAN NOT NULL,
		category_id TEXT NOT NULL DEFAULT '',
		timestamp BIGINT NOT NULL,
		date BIGINT NOT NULL,
		amount NUMERIC NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_user_timestamp
		ON records(user_id, timestamp);

	CREATE TABLE IF NOT EXISTS balances (
		user_id TEXT PRIMARY KEY,
		currency_code INTEGER NOT NULL,
		balance NUMERIC NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// RECORD OPERATIONS (ledger.Store interface)
// =============================================================================

// AppendRecord locks the user's balance row, inserts the record, and
// applies the signed delta, all in one database transaction.
func (s *Store) AppendRecord(ctx context.Context, user ledger.UserID, rec ledger.Record) error {
	if !rec.Valid() {
		return ledger.ErrInvalidRecord
	}

	err := s.withBalanceTx(ctx, "append", user, func(tx *sql.Tx, balance decimal.Decimal) (decimal.Decimal, error) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (user_id, id, is_expense, category_id, timestamp, date, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			user, rec.ID, rec.IsExpense, rec.CategoryID, rec.Timestamp, rec.Date, rec.Amount.String(),
		)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
				if pqErr.Constraint == "idx_records_user_timestamp" {
					return balance, fmt.Errorf("timestamp %d already used: %w", rec.Timestamp, ledger.ErrDuplicateTimestamp)
				}
				return balance, fmt.Errorf("record id %s already exists: %w", rec.ID, ledger.ErrInvalidRecord)
			}
			return balance, &ledger.TransportError{Op: "append", Cause: err}
		}
		return balance.Add(ledger.DeltaForAdd(rec)), nil
	})
	if err != nil {
		return fmt.Errorf("append record %s: %w", rec.ID, err)
	}

	s.publish(ctx, user)
	return nil
}

// DeleteRecord removes the record and applies the inverse delta under the
// same row lock.
func (s *Store) DeleteRecord(ctx context.Context, user ledger.UserID, id ledger.RecordID) error {
	err := s.withBalanceTx(ctx, "delete", user, func(tx *sql.Tx, balance decimal.Decimal) (decimal.Decimal, error) {
		rec, err := scanRecord(tx.QueryRowContext(ctx, `
			SELECT id, is_expense, category_id, timestamp, date, amount
			FROM records WHERE user_id = $1 AND id = $2`,
			user, id,
		))
		if err == sql.ErrNoRows {
			return balance, ledger.ErrNotFound
		}
		if err != nil {
			return balance, &ledger.TransportError{Op: "delete", Cause: err}
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM records WHERE user_id = $1 AND id = $2", user, id,
		); err != nil {
			return balance, &ledger.TransportError{Op: "delete", Cause: err}
		}
		return balance.Add(ledger.DeltaForDelete(rec)), nil
	})
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}

	s.publish(ctx, user)
	return nil
}

// withBalanceTx opens a transaction, locks the balance row, runs fn, and
// persists the balance fn returns. The row lock serializes concurrent
// writers for the same user across processes.
func (s *Store) withBalanceTx(ctx context.Context, op string, user ledger.UserID, fn func(tx *sql.Tx, balance decimal.Decimal) (decimal.Decimal, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.TransportError{Op: op, Cause: err}
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT balance FROM balances WHERE user_id = $1 FOR UPDATE", user,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return fmt.Errorf("no balance record for user %s: %w", user, ledger.ErrNotFound)
	}
	if err != nil {
		return &ledger.TransportError{Op: op, Cause: err}
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("corrupt balance %q for user %s: %w", raw, user, err)
	}

	updated, err := fn(tx, balance)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE balances SET balance = $1 WHERE user_id = $2",
		updated.String(), user,
	); err != nil {
		return &ledger.TransportError{Op: op, Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return &ledger.InconsistentStateError{UserID: user, Op: op, Cause: err}
	}
	return nil
}

// FetchBatch returns up to limit records strictly after cursor, ascending
// by timestamp.
func (s *Store) FetchBatch(ctx context.Context, user ledger.UserID, cursor *int64, limit int) ([]ledger.Record, error) {
	after := int64(-1 << 62)
	if cursor != nil {
		after = *cursor
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, is_expense, category_id, timestamp, date, amount
		FROM records
		WHERE user_id = $1 AND timestamp > $2
		ORDER BY timestamp ASC
		LIMIT $3`,
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
	var (
		code int
		raw  string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT currency_code, balance FROM balances WHERE user_id = $1", user,
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

func (s *Store) SubscribeBalance(ctx context.Context, user ledger.UserID) (<-chan ledger.BalanceEvent, ledger.CancelFunc) {
	s.mu.Lock()
	ch, cancel := s.hub.Subscribe(user)
	ch <- s.event(ctx, user)
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
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO balances (user_id, currency_code, balance) VALUES ($1, $2, 0)",
		user, ledger.CurrencyNone,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return fmt.Errorf("create account for user %s: %w", user, ledger.ErrAccountExists)
		}
		return &ledger.TransportError{Op: "create account", Cause: err}
	}

	s.publish(ctx, user)
	return nil
}

func (s *Store) SetCurrency(ctx context.Context, user ledger.UserID, code int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE balances SET currency_code = $1 WHERE user_id = $2", code, user,
	)
	if err != nil {
		return &ledger.TransportError{Op: "set currency", Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set currency for user %s: %w", user, ledger.ErrNotFound)
	}

	s.publish(ctx, user)
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, user ledger.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.TransportError{Op: "delete account", Cause: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE user_id = $1", user); err != nil {
		return &ledger.TransportError{Op: "delete account", Cause: err}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM balances WHERE user_id = $1", user); err != nil {
		return &ledger.TransportError{Op: "delete account", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return &ledger.TransportError{Op: "delete account", Cause: err}
	}

	s.publish(ctx, user)
	return nil
}

func (s *Store) publish(ctx context.Context, user ledger.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub.Publish(user, s.event(ctx, user))
}

func (s *Store) event(ctx context.Context, user ledger.UserID) ledger.BalanceEvent {
	snap, err := s.Balance(ctx, user)
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
