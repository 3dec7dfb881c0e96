package renewal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/panel"
	"vpn-shop-bot/internal/storage"
)

// Renewal strategies
const (
	StrategyRecreate = "recreate_on_inbound"
	StrategyRenew    = "panel_renew"
)

// OrderStore is the part of storage renewal and provisioning need
type OrderStore interface {
	GetOrder(ctx context.Context, id int64) (*storage.Order, error)
	GetPlan(ctx context.Context, id int64) (*storage.Plan, error)
	CreateOrder(ctx context.Context, o *storage.Order) (int64, error)
	UpdateOrderProvisioning(ctx context.Context, o *storage.Order) error
	SetOrderStatus(ctx context.Context, id int64, status string) error
}

// Panels resolves a panel id to its adapter
type Panels interface {
	Get(ctx context.Context, panelID int64) (panel.Panel, error)
}

// Result describes a completed renewal
type Result struct {
	Order    *storage.Order
	Plan     *storage.Plan
	Strategy string
	Client   *panel.Client
}

// Service extends provisioned accounts on whichever panel created them
type Service struct {
	store  OrderStore
	panels Panels
	log    *logger.Logger
}

func NewService(store OrderStore, panels Panels, log *logger.Logger) *Service {
	return &Service{
		store:  store,
		panels: panels,
		log:    log.Component("renewal"),
	}
}

// ProcessRenewalForOrder adds the plan's traffic and days to the order's account.
// XUI-family panels with a recorded inbound are renewed by recreating the client on that
// inbound; everything else, or a panel that cannot recreate, goes through the panel's renew.
// The new client id and expiry are saved on the order.
func (s *Service) ProcessRenewalForOrder(ctx context.Context, orderID, planID int64) (*Result, error) {
	log := s.log.WithFields(map[string]interface{}{
		"order_id": orderID,
		"plan_id":  planID,
	})

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		log.Warnf("renewal rejected: %v", err)
		return nil, inputErr(err, "سفارش یافت نشد")
	}
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		log.Warnf("renewal rejected: %v", err)
		return nil, inputErr(err, "پلن یافت نشد")
	}
	if !order.PanelID.Valid || order.PanelID.Int64 == 0 {
		log.Warn("renewal rejected: order has no panel")
		return nil, apperrors.InvalidInput("این سفارش به هیچ پنلی متصل نیست")
	}
	if order.MarzbanUser == "" {
		log.Warn("renewal rejected: order has no panel username")
		return nil, apperrors.InvalidInput("نام کاربری سرویس برای این سفارش ثبت نشده است")
	}

	p, err := s.panels.Get(ctx, order.PanelID.Int64)
	if err != nil {
		log.ErrorErr(err, "failed to resolve panel")
		return nil, apperrors.Panel(err, "پنل این سرویس در دسترس نیست")
	}

	inboundID := 0
	if order.XUIInboundID.Valid {
		inboundID = int(order.XUIInboundID.Int64)
	}

	var (
		client   *panel.Client
		strategy string
	)
	if recreator, ok := p.(panel.InboundRecreator); ok && inboundID > 0 {
		strategy = StrategyRecreate
		client, err = recreator.RecreateOnInbound(ctx, inboundID, order.MarzbanUser, plan.TrafficGB, plan.DurationDays)
		if errors.Is(err, panel.ErrRecreateUnsupported) {
			log.Info("recreate on inbound unavailable, falling back to panel renew")
			client, err = nil, nil
		}
	}
	if client == nil && err == nil {
		strategy = StrategyRenew
		client, err = p.RenewUser(ctx, panel.RenewRequest{
			Username:  order.MarzbanUser,
			AddGB:     plan.TrafficGB,
			AddDays:   plan.DurationDays,
			InboundID: inboundID,
		})
	}
	if err != nil {
		log.WithField("strategy", strategy).ErrorErr(err, "panel renewal failed")
		return nil, apperrors.Panel(err, fmt.Sprintf("تمدید سرویس در پنل ناموفق بود: %v", err))
	}

	applyClient(order, client)
	order.Status = storage.OrderActive
	if err := s.store.UpdateOrderProvisioning(ctx, order); err != nil {
		log.ErrorErr(err, "failed to persist renewed client")
		return nil, apperrors.Database(err)
	}

	log.WithFields(map[string]interface{}{
		"strategy":  strategy,
		"client_id": order.XUIClientID,
	}).Info("order renewed")

	return &Result{Order: order, Plan: plan, Strategy: strategy, Client: client}, nil
}

// applyClient copies the identifiers a panel returned onto the order
func applyClient(order *storage.Order, client *panel.Client) {
	switch {
	case client.UUID != "":
		order.XUIClientID = client.UUID
	case client.ID != "" && client.ID != client.Username:
		order.XUIClientID = client.ID
	}
	if client.InboundID > 0 {
		order.XUIInboundID = sql.NullInt64{Int64: int64(client.InboundID), Valid: true}
	}
	if !client.ExpiresAt.IsZero() {
		order.ExpiresAt = sql.NullTime{Time: client.ExpiresAt.UTC().Truncate(time.Second), Valid: true}
	}
	if client.SubscriptionURL != "" {
		order.SubscriptionURL = client.SubscriptionURL
	}
}

func inputErr(err error, msg string) error {
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound(msg)
	}
	return apperrors.Database(err)
}
