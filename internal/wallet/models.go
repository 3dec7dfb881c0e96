package wallet

import (
	"database/sql"
	"time"
)

// Transaction directions
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Transaction statuses. Cancelled is accepted by the schema but no operation sets it.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Payment methods recorded on transactions
const (
	MethodCard     = "card"
	MethodGateway  = "gateway"
	MethodCrypto   = "crypto"
	MethodManual   = "manual"
	MethodPurchase = "purchase"
	MethodRefund   = "refund"
)

// Wallet is the per-user running balance
type Wallet struct {
	UserID         int64
	Balance        int64
	TotalDeposited int64
	TotalSpent     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is one proposed or completed change to a wallet
type Transaction struct {
	ID          int64
	UserID      int64
	Amount      int64
	Direction   string
	Method      string
	Status      string
	Reference   string
	Description string
	AdminID     sql.NullInt64
	CreatedAt   time.Time
	ProcessedAt sql.NullTime
}

// IsPending reports whether the transaction still awaits review
func (t *Transaction) IsPending() bool {
	return t.Status == StatusPending
}

// CreditRequest describes a deposit to record
type CreditRequest struct {
	UserID      int64
	Amount      int64
	Method      string
	Reference   string
	Description string
	AdminID     int64 // 0 when not admin-initiated
	AutoApprove bool
}

// Stats summarises one user's wallet
type Stats struct {
	Balance          int64
	TotalDeposited   int64
	TotalSpent       int64
	TransactionCount int
	RecentDeposits   int   // approved credits in the last 30 days
	RecentAmount     int64 // their sum
	LastDeposit      *Transaction
}

// SystemStats summarises all wallets for the admin panel
type SystemStats struct {
	WalletCount    int
	TotalBalance   int64
	TotalDeposited int64
	TotalSpent     int64
	PendingCount   int
	PendingAmount  int64
	RecentDeposits int
	RecentAmount   int64
}
