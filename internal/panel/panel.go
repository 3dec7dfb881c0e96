package panel

import (
	"context"
	"errors"
	"time"
)

const bytesPerGB = int64(1024 * 1024 * 1024)

// ErrRecreateUnsupported means recreate-on-inbound cannot be used and the caller should renew in place
var ErrRecreateUnsupported = errors.New("recreate on inbound not supported")

// ErrClientNotFound is returned when the panel has no account for the username
var ErrClientNotFound = errors.New("client not found on panel")

// Client is a provisioned VPN account as reported by a panel
type Client struct {
	ID              string // panel-side identifier: XUI client uuid, Marzban username
	UUID            string
	Username        string
	InboundID       int
	SubscriptionURL string
	ExpiresAt       time.Time // zero when unlimited
}

// CreateRequest describes a new account
type CreateRequest struct {
	Username     string
	TrafficGB    int
	DurationDays int
	InboundID    int // XUI only
	TelegramID   int64
}

// RenewRequest adds quota and time to an existing account
type RenewRequest struct {
	Username  string
	AddGB     int
	AddDays   int
	InboundID int // XUI only, used to narrow the lookup
}

// Panel is implemented by every panel family
type Panel interface {
	Kind() Kind
	CreateUser(ctx context.Context, req CreateRequest) (*Client, error)
	RenewUser(ctx context.Context, req RenewRequest) (*Client, error)
	RevokeUser(ctx context.Context, username string) error
}

// InboundRecreator renews by deleting the client and adding it again on the inbound.
// Only the XUI family implements it.
type InboundRecreator interface {
	RecreateOnInbound(ctx context.Context, inboundID int, username string, addGB, addDays int) (*Client, error)
}

// extendExpiry adds days to the later of now and current; zero current stays unlimited
func extendExpiry(current, now time.Time, days int) time.Time {
	if current.IsZero() || days <= 0 {
		return current
	}
	if current.Before(now) {
		current = now
	}
	return current.AddDate(0, 0, days)
}

// extendQuota adds gb to a byte limit; zero limit stays unlimited
func extendQuota(limit int64, gb int) int64 {
	if limit <= 0 || gb <= 0 {
		return limit
	}
	return limit + int64(gb)*bytesPerGB
}

func quotaBytes(gb int) int64 {
	if gb <= 0 {
		return 0
	}
	return int64(gb) * bytesPerGB
}

func expiryFromDays(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.AddDate(0, 0, days)
}
