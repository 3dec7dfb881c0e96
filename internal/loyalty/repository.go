package loyalty

import (
	"context"
	"database/sql"

	"vpn-shop-bot/internal/storage"
)

// Repository holds the SQL for user_points and points_history
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(ctx context.Context, fn func(q storage.Querier) error) error {
	return storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(tx)
	})
}

func (r *Repository) DB() storage.Querier {
	return r.db
}

func (r *Repository) Ensure(ctx context.Context, q storage.Querier, userID int64) error {
	_, err := q.ExecContext(ctx, "INSERT OR IGNORE INTO user_points (user_id) VALUES (?)", userID)
	return err
}

func (r *Repository) Get(ctx context.Context, q storage.Querier, userID int64) (*Points, error) {
	p := &Points{}
	err := q.QueryRowContext(ctx, `
		SELECT user_id, total_points, current_points, level, last_daily_login, birthday, last_birthday_bonus
		FROM user_points WHERE user_id = ?`,
		userID,
	).Scan(&p.UserID, &p.TotalPoints, &p.CurrentPoints, &p.Level, &p.LastDailyLogin, &p.Birthday, &p.LastBirthdayBonus)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Add changes both balances by delta and returns the new total
func (r *Repository) Add(ctx context.Context, q storage.Querier, userID int64, delta int) (int, error) {
	_, err := q.ExecContext(ctx, `
		UPDATE user_points
		SET current_points = current_points + ?, total_points = total_points + ?
		WHERE user_id = ?`,
		delta, delta, userID,
	)
	if err != nil {
		return 0, err
	}

	var total int
	err = q.QueryRowContext(ctx, "SELECT total_points FROM user_points WHERE user_id = ?", userID).Scan(&total)
	return total, err
}

func (r *Repository) SetLevel(ctx context.Context, q storage.Querier, userID int64, level string) error {
	_, err := q.ExecContext(ctx, "UPDATE user_points SET level = ? WHERE user_id = ?", level, userID)
	return err
}

// Spend decrements current_points if enough are available
func (r *Repository) Spend(ctx context.Context, q storage.Querier, userID int64, points int) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE user_points SET current_points = current_points - ?
		WHERE user_id = ? AND current_points >= ?`,
		points, userID, points,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkDailyLogin stamps day and reports whether it differed from the stored day
func (r *Repository) MarkDailyLogin(ctx context.Context, q storage.Querier, userID int64, day string) (bool, error) {
	res, err := q.ExecContext(ctx,
		"UPDATE user_points SET last_daily_login = ? WHERE user_id = ? AND last_daily_login <> ?",
		day, userID, day,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkBirthday stamps year if today is the stored birthday and it was not rewarded this year
func (r *Repository) MarkBirthday(ctx context.Context, q storage.Querier, userID int64, monthDay string, year int) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE user_points SET last_birthday_bonus = ?
		WHERE user_id = ? AND birthday = ? AND last_birthday_bonus < ?`,
		year, userID, monthDay, year,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *Repository) SetBirthday(ctx context.Context, q storage.Querier, userID int64, monthDay string) error {
	_, err := q.ExecContext(ctx, "UPDATE user_points SET birthday = ? WHERE user_id = ?", monthDay, userID)
	return err
}

func (r *Repository) AppendHistory(ctx context.Context, q storage.Querier, e *HistoryEntry) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO points_history (user_id, points, action, description, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.Points, e.Action, e.Description, storage.FormatTime(e.CreatedAt),
	)
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (r *Repository) History(ctx context.Context, q storage.Querier, userID int64, limit int) ([]*HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, user_id, points, action, description, created_at
		FROM points_history WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Points, &e.Action, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
