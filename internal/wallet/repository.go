package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/storage"
)

// Repository holds the SQL for user_wallets and wallet_transactions.
// Every method takes a Querier so the service can run several of them in one transaction.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx runs fn inside a BEGIN IMMEDIATE transaction
func (r *Repository) WithTx(ctx context.Context, fn func(q storage.Querier) error) error {
	return storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(tx)
	})
}

// DB returns the pool for single-statement reads
func (r *Repository) DB() storage.Querier {
	return r.db
}

// EnsureWallet creates a zero wallet for userID if none exists
func (r *Repository) EnsureWallet(ctx context.Context, q storage.Querier, userID int64, now time.Time) error {
	ts := storage.FormatTime(now)
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_wallets (user_id, balance, total_deposited, total_spent, created_at, updated_at)
		VALUES (?, 0, 0, 0, ?, ?)`,
		userID, ts, ts,
	)
	return err
}

func (r *Repository) GetWallet(ctx context.Context, q storage.Querier, userID int64) (*Wallet, error) {
	w := &Wallet{}
	err := q.QueryRowContext(ctx, `
		SELECT user_id, balance, total_deposited, total_spent, created_at, updated_at
		FROM user_wallets WHERE user_id = ?`,
		userID,
	).Scan(&w.UserID, &w.Balance, &w.TotalDeposited, &w.TotalSpent, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("کیف پول یافت نشد")
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Credit adds amount to balance and total_deposited
func (r *Repository) Credit(ctx context.Context, q storage.Querier, userID, amount int64, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE user_wallets
		SET balance = balance + ?, total_deposited = total_deposited + ?, updated_at = ?
		WHERE user_id = ?`,
		amount, amount, storage.FormatTime(now), userID,
	)
	return err
}

// Debit subtracts amount only if the balance covers it; false means insufficient funds
func (r *Repository) Debit(ctx context.Context, q storage.Querier, userID, amount int64, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE user_wallets
		SET balance = balance - ?, total_spent = total_spent + ?, updated_at = ?
		WHERE user_id = ? AND balance >= ?`,
		amount, amount, storage.FormatTime(now), userID, amount,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, q storage.Querier, t *Transaction) (int64, error) {
	var processedAt any
	if t.ProcessedAt.Valid {
		processedAt = storage.FormatTime(t.ProcessedAt.Time)
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO wallet_transactions
			(user_id, amount, direction, method, status, reference, description, admin_id, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Amount, t.Direction, t.Method, t.Status, t.Reference, t.Description,
		t.AdminID, storage.FormatTime(t.CreatedAt), processedAt,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

// Resolve moves a pending transaction to status; false means it was no longer pending
func (r *Repository) Resolve(ctx context.Context, q storage.Querier, txID int64, status string, adminID int64, now time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE wallet_transactions
		SET status = ?, admin_id = ?, processed_at = ?
		WHERE id = ? AND status = ?`,
		status, adminID, storage.FormatTime(now), txID, StatusPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const txColumns = `id, user_id, amount, direction, method, status, reference, description,
	admin_id, created_at, processed_at`

func scanTransaction(row interface{ Scan(...any) error }) (*Transaction, error) {
	t := &Transaction{}
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Direction, &t.Method, &t.Status, &t.Reference,
		&t.Description, &t.AdminID, &t.CreatedAt, &t.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repository) GetTransaction(ctx context.Context, q storage.Querier, txID int64) (*Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, "SELECT "+txColumns+" FROM wallet_transactions WHERE id = ?", txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("تراکنش یافت نشد")
	}
	return t, err
}

func (r *Repository) listTransactions(ctx context.Context, q storage.Querier, query string, args ...any) ([]*Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListByUser returns the user's transactions, newest first
func (r *Repository) ListByUser(ctx context.Context, q storage.Querier, userID int64, limit int) ([]*Transaction, error) {
	return r.listTransactions(ctx, q,
		"SELECT "+txColumns+" FROM wallet_transactions WHERE user_id = ? ORDER BY id DESC LIMIT ?",
		userID, limit,
	)
}

// ListPending returns pending transactions, oldest first
func (r *Repository) ListPending(ctx context.Context, q storage.Querier, limit int) ([]*Transaction, error) {
	return r.listTransactions(ctx, q,
		"SELECT "+txColumns+" FROM wallet_transactions WHERE status = ? ORDER BY id ASC LIMIT ?",
		StatusPending, limit,
	)
}

func (r *Repository) CountByUser(ctx context.Context, q storage.Querier, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM wallet_transactions WHERE user_id = ?", userID).Scan(&n)
	return n, err
}

// ApprovedCreditsSince counts and sums approved credits created at or after since.
// userID 0 means all users.
func (r *Repository) ApprovedCreditsSince(ctx context.Context, q storage.Querier, userID int64, since time.Time) (int, int64, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM wallet_transactions
		WHERE direction = ? AND status = ? AND created_at >= ?`
	args := []any{DirectionCredit, StatusApproved, storage.FormatTime(since)}
	if userID != 0 {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	var count int
	var sum int64
	err := q.QueryRowContext(ctx, query, args...).Scan(&count, &sum)
	return count, sum, err
}

// LastApprovedCredit returns the most recently processed deposit, nil if there is none
func (r *Repository) LastApprovedCredit(ctx context.Context, q storage.Querier, userID int64) (*Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, `
		SELECT `+txColumns+` FROM wallet_transactions
		WHERE user_id = ? AND direction = ? AND status = ?
		ORDER BY processed_at DESC, id DESC LIMIT 1`,
		userID, DirectionCredit, StatusApproved,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// Totals aggregates every wallet
func (r *Repository) Totals(ctx context.Context, q storage.Querier) (*SystemStats, error) {
	st := &SystemStats{}
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(balance), 0), COALESCE(SUM(total_deposited), 0), COALESCE(SUM(total_spent), 0)
		FROM user_wallets`,
	).Scan(&st.WalletCount, &st.TotalBalance, &st.TotalDeposited, &st.TotalSpent)
	if err != nil {
		return nil, err
	}

	err = q.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE status = ?",
		StatusPending,
	).Scan(&st.PendingCount, &st.PendingAmount)
	if err != nil {
		return nil, err
	}
	return st, nil
}
