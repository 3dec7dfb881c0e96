package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/pkg/marzban"
)

// Marzban adapts Marzban and Marzneshin to Panel
type Marzban struct {
	api     *marzban.Client
	baseURL string
	log     *logger.Logger
	now     func() time.Time
}

func NewMarzban(api *marzban.Client, baseURL string, log *logger.Logger) *Marzban {
	return &Marzban{api: api, baseURL: strings.TrimSuffix(baseURL, "/"), log: log, now: time.Now}
}

func (m *Marzban) Kind() Kind { return KindMarzban }

func (m *Marzban) toClient(u *marzban.User) *Client {
	link := u.SubscriptionURL
	if strings.HasPrefix(link, "/") {
		link = m.baseURL + link
	}
	return &Client{
		ID:              u.Username,
		Username:        u.Username,
		SubscriptionURL: link,
		ExpiresAt:       u.ExpiresAt(),
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func (m *Marzban) CreateUser(ctx context.Context, req CreateRequest) (*Client, error) {
	u, err := m.api.CreateUser(ctx, &marzban.User{
		Username:  req.Username,
		Expire:    unixOrZero(expiryFromDays(m.now(), req.DurationDays)),
		DataLimit: quotaBytes(req.TrafficGB),
		Note:      fmt.Sprintf("tg:%d", req.TelegramID),
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	m.log.WithField("username", req.Username).Info("marzban user created")
	return m.toClient(u), nil
}

func (m *Marzban) RenewUser(ctx context.Context, req RenewRequest) (*Client, error) {
	u, err := m.api.GetUser(ctx, req.Username)
	if errors.Is(err, marzban.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, req.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	update := &marzban.User{
		Username:  u.Username,
		Status:    "active",
		Expire:    unixOrZero(extendExpiry(u.ExpiresAt(), m.now(), req.AddDays)),
		DataLimit: extendQuota(u.DataLimit, req.AddGB),
	}
	modified, err := m.api.ModifyUser(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("modify user: %w", err)
	}
	if modified.SubscriptionURL == "" {
		modified.SubscriptionURL = u.SubscriptionURL
	}
	return m.toClient(modified), nil
}

func (m *Marzban) RevokeUser(ctx context.Context, username string) error {
	err := m.api.DeleteUser(ctx, username)
	if errors.Is(err, marzban.ErrUserNotFound) {
		return fmt.Errorf("%w: %s", ErrClientNotFound, username)
	}
	return err
}
