package storage

import (
	"context"
	"database/sql"
	"time"
)

// Order statuses
const (
	OrderPending = "pending"
	OrderActive  = "active"
	OrderFailed  = "failed"
	OrderRevoked = "revoked"
)

// User is a bot user seen at least once
type User struct {
	UserID    int64
	Username  string
	FirstName string
	CreatedAt time.Time
}

// Panel is a registered VPN panel backend
type Panel struct {
	ID        int64
	Name      string
	PanelType string
	URL       string
	Username  string
	Password  string
	Active    bool
}

// Plan is a sellable subscription package
type Plan struct {
	ID           int64
	Name         string
	Price        int64
	TrafficGB    int
	DurationDays int
	PanelID      int64
	InboundID    int // XUI inbound to provision on; 0 for Marzban
	Active       bool
}

// Order is a purchased service and its provisioning identifiers
type Order struct {
	ID              int64
	UserID          int64
	PlanID          int64
	PanelID         sql.NullInt64
	MarzbanUser     string // panel-side username, also used as XUI client email
	XUIClientID     string
	XUIInboundID    sql.NullInt64
	Status          string
	ExpiresAt       sql.NullTime
	SubscriptionURL string
	Timestamp       time.Time
}

// DepositState is a top-up in progress: amount entered, receipt pending
type DepositState struct {
	Amount    int64
	Timestamp time.Time
}

// BroadcastState represents state for admin creating broadcast
type BroadcastState struct {
	Message   string
	Timestamp time.Time
}

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// StateStore persists per-chat conversation state between updates
type StateStore interface {
	SetUserState(userID int64, state string) error
	GetUserState(userID int64) (string, error)
	DeleteUserState(userID int64) error

	SetDepositState(userID int64, state *DepositState) error
	GetDepositState(userID int64) (*DepositState, error)
	DeleteDepositState(userID int64) error

	SetBroadcastState(adminID int64, state *BroadcastState) error
	GetBroadcastState(adminID int64) (*BroadcastState, error)
	DeleteBroadcastState(adminID int64) error

	CleanupExpiredStates(maxAge time.Duration) error
}
