package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "vpn-shop-bot/internal/errors"
)

// UpsertUser records a user seen on /start, refreshing the profile fields
func (s *SQLiteStorage) UpsertUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, first_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name`,
		u.UserID, u.Username, u.FirstName, FormatTime(time.Now()),
	)
	return err
}

func (s *SQLiteStorage) GetUser(ctx context.Context, userID int64) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, username, first_name, created_at FROM users WHERE user_id = ?",
		userID,
	).Scan(&u.UserID, &u.Username, &u.FirstName, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("کاربر یافت نشد")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ListUserIDs returns every known user, used as broadcast recipients
func (s *SQLiteStorage) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM users ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Panels

func (s *SQLiteStorage) AddPanel(ctx context.Context, p *Panel) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO panels (name, panel_type, url, username, password, active)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.PanelType, p.URL, p.Username, p.Password, p.Active,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (s *SQLiteStorage) GetPanel(ctx context.Context, id int64) (*Panel, error) {
	p := &Panel{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, panel_type, url, username, password, active FROM panels WHERE id = ?",
		id,
	).Scan(&p.ID, &p.Name, &p.PanelType, &p.URL, &p.Username, &p.Password, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("پنل یافت نشد")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStorage) ListPanels(ctx context.Context) ([]*Panel, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, panel_type, url, username, password, active FROM panels WHERE active = 1 ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var panels []*Panel
	for rows.Next() {
		p := &Panel{}
		if err := rows.Scan(&p.ID, &p.Name, &p.PanelType, &p.URL, &p.Username, &p.Password, &p.Active); err != nil {
			return nil, err
		}
		panels = append(panels, p)
	}
	return panels, rows.Err()
}

// Plans

const planColumns = "id, name, price, traffic_gb, duration_days, panel_id, inbound_id, active"

func scanPlan(row interface{ Scan(...any) error }) (*Plan, error) {
	p := &Plan{}
	var panelID sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.TrafficGB, &p.DurationDays, &panelID, &p.InboundID, &p.Active); err != nil {
		return nil, err
	}
	p.PanelID = panelID.Int64
	return p, nil
}

func (s *SQLiteStorage) AddPlan(ctx context.Context, p *Plan) (int64, error) {
	var panelID sql.NullInt64
	if p.PanelID != 0 {
		panelID = sql.NullInt64{Int64: p.PanelID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (name, price, traffic_gb, duration_days, panel_id, inbound_id, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Price, p.TrafficGB, p.DurationDays, panelID, p.InboundID, p.Active,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	p.ID = id
	return id, nil
}

func (s *SQLiteStorage) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, "SELECT "+planColumns+" FROM plans WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("پلن یافت نشد")
	}
	return p, err
}

func (s *SQLiteStorage) ListActivePlans(ctx context.Context) ([]*Plan, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+planColumns+" FROM plans WHERE active = 1 ORDER BY price, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Orders

const orderColumns = `id, user_id, plan_id, panel_id, marzban_username, xui_client_id, xui_inbound_id,
	status, expires_at, subscription_url, timestamp`

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	o := &Order{}
	err := row.Scan(&o.ID, &o.UserID, &o.PlanID, &o.PanelID, &o.MarzbanUser, &o.XUIClientID, &o.XUIInboundID,
		&o.Status, &o.ExpiresAt, &o.SubscriptionURL, &o.Timestamp)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func nullTime(t sql.NullTime) any {
	if !t.Valid {
		return nil
	}
	return FormatTime(t.Time)
}

// CreateOrder inserts o and sets its ID
func (s *SQLiteStorage) CreateOrder(ctx context.Context, o *Order) (int64, error) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	if o.Status == "" {
		o.Status = OrderPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (user_id, plan_id, panel_id, marzban_username, xui_client_id, xui_inbound_id,
			status, expires_at, subscription_url, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UserID, o.PlanID, o.PanelID, o.MarzbanUser, o.XUIClientID, o.XUIInboundID,
		o.Status, nullTime(o.ExpiresAt), o.SubscriptionURL, FormatTime(o.Timestamp),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	o.ID = id
	return id, nil
}

func (s *SQLiteStorage) GetOrder(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("سفارش یافت نشد")
	}
	return o, err
}

func (s *SQLiteStorage) listOrders(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListOrdersByUser returns the user's orders, newest first
func (s *SQLiteStorage) ListOrdersByUser(ctx context.Context, userID int64) ([]*Order, error) {
	return s.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY id DESC",
		userID,
	)
}

// ListOrdersExpiringBetween returns active orders with from <= expires_at < to
func (s *SQLiteStorage) ListOrdersExpiringBetween(ctx context.Context, from, to time.Time) ([]*Order, error) {
	return s.listOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = ? AND expires_at >= ? AND expires_at < ? ORDER BY expires_at",
		OrderActive, FormatTime(from), FormatTime(to),
	)
}

// UpdateOrderProvisioning stores the panel identifiers returned after create or renew
func (s *SQLiteStorage) UpdateOrderProvisioning(ctx context.Context, o *Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			panel_id = ?, marzban_username = ?, xui_client_id = ?, xui_inbound_id = ?,
			status = ?, expires_at = ?, subscription_url = ?
		WHERE id = ?`,
		o.PanelID, o.MarzbanUser, o.XUIClientID, o.XUIInboundID,
		o.Status, nullTime(o.ExpiresAt), o.SubscriptionURL, o.ID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res, "سفارش یافت نشد")
}

func (s *SQLiteStorage) SetOrderStatus(ctx context.Context, id int64, status string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE orders SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return err
	}
	return requireOneRow(res, "سفارش یافت نشد")
}

// CountOrders returns order counts keyed by status
func (s *SQLiteStorage) CountOrders(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM orders GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func requireOneRow(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(notFound)
	}
	return nil
}
