package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store persists the ledger, budgets and goals in SQLite.
type Store struct {
	db         *sql.DB
	currencies model.Currencies
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCurrencies sets the currency codes used to pick converted ledger columns.
func WithCurrencies(cur model.Currencies) Option {
	return func(s *Store) { s.currencies = cur }
}

// WithClock overrides the clock used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers; transactions below rely on it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{
		db:         db,
		currencies: model.Currencies{Native: "SOL", Primary: "USD", Secondary: "NGN"},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			signature        TEXT PRIMARY KEY,
			owner            TEXT NOT NULL,
			amount           TEXT NOT NULL,
			asset            TEXT NOT NULL,
			amount_primary   TEXT,
			amount_secondary TEXT,
			category         TEXT NOT NULL,
			direction        TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			goal_id          TEXT,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_owner_ts ON ledger_entries(owner, created_at)`,

		`CREATE TABLE IF NOT EXISTS budgets (
			id         TEXT PRIMARY KEY,
			owner      TEXT NOT NULL,
			amount     TEXT NOT NULL,
			currency   TEXT NOT NULL,
			period     TEXT NOT NULL,
			start_date INTEGER NOT NULL,
			end_date   INTEGER NOT NULL,
			recurring  INTEGER NOT NULL,
			status     TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_budgets_one_active ON budgets(owner) WHERE status = 'ACTIVE'`,
		`CREATE INDEX IF NOT EXISTS idx_budgets_due ON budgets(status, end_date)`,

		`CREATE TABLE IF NOT EXISTS goals (
			id             TEXT PRIMARY KEY,
			owner          TEXT NOT NULL,
			name           TEXT NOT NULL,
			target_amount  TEXT NOT NULL,
			current_amount TEXT NOT NULL,
			currency       TEXT NOT NULL,
			type           TEXT NOT NULL,
			created_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_goals_owner ON goals(owner)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	logger.Info("closing sqlite store")
	return s.db.Close()
}

func toUnix(t time.Time) int64 { return t.UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}
