package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// TimeLayout is how timestamps are stored; fixed width so text comparison orders correctly
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t for storage in UTC
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// SQLiteStorage implements StateStore and the catalog repositories on SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at dbPath and applies the schema.
// Transactions start with BEGIN IMMEDIATE so ledger writes take the write lock up front.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", buildDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if strings.Contains(dbPath, "mode=memory") || dbPath == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return storage, nil
}

func buildDSN(path string) string {
	params := url.Values{}
	params.Add("_txlock", "immediate")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}

// initialize creates the necessary tables
func (s *SQLiteStorage) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS panels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		panel_type TEXT NOT NULL,
		url TEXT NOT NULL,
		username TEXT NOT NULL,
		password TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS plans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		price INTEGER NOT NULL CHECK (price >= 0),
		traffic_gb INTEGER NOT NULL DEFAULT 0,
		duration_days INTEGER NOT NULL DEFAULT 0,
		panel_id INTEGER REFERENCES panels(id),
		inbound_id INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		plan_id INTEGER NOT NULL REFERENCES plans(id),
		panel_id INTEGER REFERENCES panels(id),
		marzban_username TEXT NOT NULL DEFAULT '',
		xui_client_id TEXT NOT NULL DEFAULT '',
		xui_inbound_id INTEGER,
		status TEXT NOT NULL,
		expires_at DATETIME,
		subscription_url TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
	CREATE INDEX IF NOT EXISTS idx_orders_expires ON orders(status, expires_at);

	CREATE TABLE IF NOT EXISTS user_wallets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		balance INTEGER NOT NULL DEFAULT 0,
		total_deposited INTEGER NOT NULL DEFAULT 0,
		total_spent INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wallet_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		amount INTEGER NOT NULL CHECK (amount > 0),
		direction TEXT NOT NULL CHECK (direction IN ('credit', 'debit')),
		method TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected', 'cancelled')),
		reference TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		admin_id INTEGER,
		created_at DATETIME NOT NULL,
		processed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_wallet_tx_user ON wallet_transactions(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_wallet_tx_status ON wallet_transactions(status);

	CREATE TABLE IF NOT EXISTS user_points (
		user_id INTEGER PRIMARY KEY,
		total_points INTEGER NOT NULL DEFAULT 0,
		current_points INTEGER NOT NULL DEFAULT 0,
		level TEXT NOT NULL DEFAULT 'bronze',
		last_daily_login TEXT NOT NULL DEFAULT '',
		birthday TEXT NOT NULL DEFAULT '',
		last_birthday_bonus INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS points_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		points INTEGER NOT NULL,
		action TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_points_history_user ON points_history(user_id);

	CREATE TABLE IF NOT EXISTS user_states (
		user_id INTEGER PRIMARY KEY,
		state TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deposit_states (
		user_id INTEGER PRIMARY KEY,
		amount INTEGER NOT NULL,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS broadcast_states (
		admin_id INTEGER PRIMARY KEY,
		message TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the connection pool for packages that own their own tables
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// WithTx runs fn in a single transaction, committing when fn returns nil
func (s *SQLiteStorage) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return WithTx(ctx, s.db, fn)
}

// WithTx runs fn in a single transaction on db, committing when fn returns nil
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// User states
func (s *SQLiteStorage) SetUserState(userID int64, state string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO user_states (user_id, state, timestamp) VALUES (?, ?, ?)",
		userID, state, FormatTime(time.Now()),
	)
	return err
}

func (s *SQLiteStorage) GetUserState(userID int64) (string, error) {
	var state string
	err := s.db.QueryRow(
		"SELECT state FROM user_states WHERE user_id = ?",
		userID,
	).Scan(&state)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("state not found for user %d", userID)
	}
	return state, err
}

func (s *SQLiteStorage) DeleteUserState(userID int64) error {
	_, err := s.db.Exec("DELETE FROM user_states WHERE user_id = ?", userID)
	return err
}

// Deposit states
func (s *SQLiteStorage) SetDepositState(userID int64, state *DepositState) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO deposit_states (user_id, amount, timestamp) VALUES (?, ?, ?)",
		userID, state.Amount, FormatTime(state.Timestamp),
	)
	return err
}

func (s *SQLiteStorage) GetDepositState(userID int64) (*DepositState, error) {
	state := &DepositState{}
	err := s.db.QueryRow(
		"SELECT amount, timestamp FROM deposit_states WHERE user_id = ?",
		userID,
	).Scan(&state.Amount, &state.Timestamp)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("deposit state not found for user %d", userID)
	}
	return state, err
}

func (s *SQLiteStorage) DeleteDepositState(userID int64) error {
	_, err := s.db.Exec("DELETE FROM deposit_states WHERE user_id = ?", userID)
	return err
}

// Broadcast states
func (s *SQLiteStorage) SetBroadcastState(adminID int64, state *BroadcastState) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO broadcast_states (admin_id, message, timestamp)
		VALUES (?, ?, ?)`,
		adminID, state.Message, FormatTime(state.Timestamp),
	)
	return err
}

func (s *SQLiteStorage) GetBroadcastState(adminID int64) (*BroadcastState, error) {
	state := &BroadcastState{}
	err := s.db.QueryRow(`
		SELECT message, timestamp FROM broadcast_states WHERE admin_id = ?`,
		adminID,
	).Scan(&state.Message, &state.Timestamp)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("broadcast state not found for admin %d", adminID)
	}
	return state, err
}

func (s *SQLiteStorage) DeleteBroadcastState(adminID int64) error {
	_, err := s.db.Exec("DELETE FROM broadcast_states WHERE admin_id = ?", adminID)
	return err
}

// CleanupExpiredStates removes states older than maxAge
func (s *SQLiteStorage) CleanupExpiredStates(maxAge time.Duration) error {
	cutoff := FormatTime(time.Now().Add(-maxAge))

	tables := []string{
		"user_states",
		"deposit_states",
		"broadcast_states",
	}

	for _, table := range tables {
		_, err := s.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE timestamp < ?", table),
			cutoff,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// Backup writes a consistent snapshot of the database to path
func (s *SQLiteStorage) Backup(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path)
	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
