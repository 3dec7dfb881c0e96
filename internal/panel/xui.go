package panel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/pkg/xui"
)

// XUI adapts the x-ui family (x-ui, 3x-ui, tx-ui, alireza) to Panel and InboundRecreator
type XUI struct {
	api *xui.Client
	log *logger.Logger
	now func() time.Time
}

func NewXUI(api *xui.Client, log *logger.Logger) *XUI {
	return &XUI{api: api, log: log, now: time.Now}
}

func (x *XUI) Kind() Kind { return KindXUI }

func newSubID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func (x *XUI) toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// fromMillis converts expiryTime; negative values are a duration counted from first use
func (x *XUI) fromMillis(ms int64) time.Time {
	switch {
	case ms > 0:
		return time.UnixMilli(ms)
	case ms < 0:
		return x.now().Add(time.Duration(-ms) * time.Millisecond)
	default:
		return time.Time{}
	}
}

func (x *XUI) toClient(ctx context.Context, inboundID int, cfg *xui.ClientConfig) *Client {
	c := &Client{
		ID:        cfg.ID,
		UUID:      cfg.ID,
		Username:  cfg.Email,
		InboundID: inboundID,
		ExpiresAt: x.fromMillis(cfg.ExpiryTime),
	}
	link, err := x.api.SubscriptionURL(ctx, cfg.SubID)
	if err != nil {
		x.log.WithField("email", cfg.Email).Warnf("subscription link unavailable: %v", err)
	} else {
		c.SubscriptionURL = link
	}
	return c
}

func (x *XUI) CreateUser(ctx context.Context, req CreateRequest) (*Client, error) {
	if req.InboundID <= 0 {
		return nil, fmt.Errorf("plan has no inbound id for x-ui panel")
	}

	cfg := xui.ClientConfig{
		ID:         uuid.NewString(),
		Email:      req.Username,
		Enable:     true,
		TotalGB:    quotaBytes(req.TrafficGB),
		ExpiryTime: x.toMillis(expiryFromDays(x.now(), req.DurationDays)),
		TgID:       xui.FlexInt(req.TelegramID),
		SubID:      newSubID(),
	}
	if err := x.api.AddClient(ctx, req.InboundID, cfg); err != nil {
		return nil, fmt.Errorf("add client: %w", err)
	}

	x.log.WithFields(map[string]interface{}{
		"email":   cfg.Email,
		"inbound": req.InboundID,
	}).Info("xui client created")

	return x.toClient(ctx, req.InboundID, &cfg), nil
}

// findClient looks up username on inboundID, or on every inbound when inboundID is 0
func (x *XUI) findClient(ctx context.Context, username string, inboundID int) (int, *xui.ClientConfig, error) {
	if inboundID > 0 {
		inbound, err := x.api.GetInbound(ctx, inboundID)
		if err != nil {
			return 0, nil, fmt.Errorf("get inbound %d: %w", inboundID, err)
		}
		cfg, err := inbound.FindClient(username)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrClientNotFound, err)
		}
		return inbound.ID, cfg, nil
	}

	inbounds, err := x.api.GetInbounds(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("list inbounds: %w", err)
	}
	for i := range inbounds {
		if cfg, err := inbounds[i].FindClient(username); err == nil {
			return inbounds[i].ID, cfg, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: %s", ErrClientNotFound, username)
}

// RenewUser extends the client in place through updateClient
func (x *XUI) RenewUser(ctx context.Context, req RenewRequest) (*Client, error) {
	inboundID, cfg, err := x.findClient(ctx, req.Username, req.InboundID)
	if err != nil {
		return nil, err
	}

	cfg.Enable = true
	cfg.TotalGB = extendQuota(cfg.TotalGB, req.AddGB)
	cfg.ExpiryTime = x.toMillis(extendExpiry(x.fromMillis(cfg.ExpiryTime), x.now(), req.AddDays))

	if err := x.api.UpdateClient(ctx, inboundID, *cfg); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	return x.toClient(ctx, inboundID, cfg), nil
}

// RecreateOnInbound deletes the client and adds it back with a new uuid and the extended limits.
// The subId is kept so existing subscription links keep working.
func (x *XUI) RecreateOnInbound(ctx context.Context, inboundID int, username string, addGB, addDays int) (*Client, error) {
	if inboundID <= 0 {
		return nil, ErrRecreateUnsupported
	}

	_, old, err := x.findClient(ctx, username, inboundID)
	if err != nil {
		return nil, err
	}

	renewed := *old
	renewed.ID = uuid.NewString()
	renewed.Enable = true
	renewed.TotalGB = extendQuota(old.TotalGB, addGB)
	renewed.ExpiryTime = x.toMillis(extendExpiry(x.fromMillis(old.ExpiryTime), x.now(), addDays))
	if renewed.SubID == "" {
		renewed.SubID = newSubID()
	}

	if err := x.api.DeleteClient(ctx, inboundID, old.ID); err != nil {
		return nil, fmt.Errorf("delete client: %w", err)
	}

	if err := x.api.AddClient(ctx, inboundID, renewed); err != nil {
		if restoreErr := x.api.AddClient(ctx, inboundID, *old); restoreErr != nil {
			x.log.WithField("email", username).ErrorErr(restoreErr, "failed to restore client after recreate failure")
			return nil, fmt.Errorf("add client: %w", errors.Join(err, restoreErr))
		}
		return nil, fmt.Errorf("add client: %w", err)
	}

	x.log.WithFields(map[string]interface{}{
		"email":    username,
		"inbound":  inboundID,
		"old_uuid": old.ID,
		"new_uuid": renewed.ID,
	}).Info("xui client recreated")

	return x.toClient(ctx, inboundID, &renewed), nil
}

func (x *XUI) RevokeUser(ctx context.Context, username string) error {
	inboundID, cfg, err := x.findClient(ctx, username, 0)
	if err != nil {
		return err
	}
	if err := x.api.DeleteClient(ctx, inboundID, cfg.ID); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return nil
}
