package renewal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/loyalty"
	"vpn-shop-bot/internal/panel"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/internal/wallet"
)

// Wallet is the ledger the provisioner charges
type Wallet interface {
	DeductBalance(ctx context.Context, userID, amount int64, description, reference string) error
	AddCredit(ctx context.Context, req wallet.CreditRequest) (int64, error)
}

// Loyalty awards points and prices discounts
type Loyalty interface {
	GetPoints(ctx context.Context, userID int64) (*loyalty.Points, error)
	AddPoints(ctx context.Context, userID int64, points int, action, description string) (*loyalty.Points, error)
	PointsForPurchase(price int64) int
}

// LogEntry is what admins see for a purchase or renewal
type LogEntry struct {
	OrderID  int64
	UserID   int64
	PlanName string
	Price    int64
	Method   string
}

// Notifier posts purchase and renewal logs to admins; failures stay inside the notifier
type Notifier interface {
	SendPurchaseLog(ctx context.Context, entry LogEntry)
	SendRenewalLog(ctx context.Context, entry LogEntry)
}

type nopNotifier struct{}

func (nopNotifier) SendPurchaseLog(context.Context, LogEntry) {}
func (nopNotifier) SendRenewalLog(context.Context, LogEntry)  {}

// Purchase is a completed order
type Purchase struct {
	Order  *storage.Order
	Plan   *storage.Plan
	Price  int64
	Client *panel.Client
	Points int
}

// Provisioner pays for plans from the wallet and provisions them on panels
type Provisioner struct {
	store    OrderStore
	panels   Panels
	renewals *Service
	wallet   Wallet
	loyalty  Loyalty
	notifier Notifier
	log      *logger.Logger
}

func NewProvisioner(store OrderStore, panels Panels, renewals *Service, w Wallet, l Loyalty, log *logger.Logger) *Provisioner {
	return &Provisioner{
		store:    store,
		panels:   panels,
		renewals: renewals,
		wallet:   w,
		loyalty:  l,
		notifier: nopNotifier{},
		log:      log.Component("provisioner"),
	}
}

// SetNotifier sets where purchase and renewal logs go
func (p *Provisioner) SetNotifier(n Notifier) {
	p.notifier = n
}

// Quote returns the price userID pays for plan after the loyalty discount
func (p *Provisioner) Quote(ctx context.Context, userID int64, plan *storage.Plan) int64 {
	points, err := p.loyalty.GetPoints(ctx, userID)
	if err != nil {
		p.log.WithField("user_id", userID).Warnf("no loyalty discount applied: %v", err)
		return plan.Price
	}
	return loyalty.ApplyDiscount(plan.Price, points.Level)
}

func newUsername(userID int64) string {
	return fmt.Sprintf("u%d_%s", userID, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Purchase charges the plan price, creates the account and records the order.
// If the panel refuses, the charge is refunded and the order marked failed.
func (p *Provisioner) Purchase(ctx context.Context, userID, planID int64) (*Purchase, error) {
	plan, err := p.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, inputErr(err, "پلن یافت نشد")
	}
	if !plan.Active {
		return nil, apperrors.InvalidInput("این پلن در حال حاضر فعال نیست")
	}
	if plan.PanelID == 0 {
		return nil, apperrors.InvalidInput("برای این پلن پنلی تعریف نشده است")
	}

	price := p.Quote(ctx, userID, plan)
	log := p.log.WithFields(map[string]interface{}{
		"user_id": userID,
		"plan_id": planID,
		"price":   price,
	})

	order := &storage.Order{
		UserID:      userID,
		PlanID:      plan.ID,
		PanelID:     sql.NullInt64{Int64: plan.PanelID, Valid: true},
		MarzbanUser: newUsername(userID),
		Status:      storage.OrderPending,
	}
	if plan.InboundID > 0 {
		order.XUIInboundID = sql.NullInt64{Int64: int64(plan.InboundID), Valid: true}
	}
	if _, err := p.store.CreateOrder(ctx, order); err != nil {
		log.ErrorErr(err, "failed to create order")
		return nil, apperrors.Database(err)
	}
	reference := fmt.Sprintf("order:%d", order.ID)

	if price > 0 {
		if err := p.wallet.DeductBalance(ctx, userID, price, "خرید "+plan.Name, reference); err != nil {
			p.markFailed(ctx, order.ID)
			return nil, err
		}
	}

	client, err := p.createOnPanel(ctx, userID, plan, order)
	if err != nil {
		log.ErrorErr(err, "provisioning failed")
		p.refund(ctx, userID, price, reference, plan.Name)
		p.markFailed(ctx, order.ID)
		return nil, apperrors.Panel(err, "ساخت سرویس در پنل ناموفق بود. مبلغ به کیف پول شما بازگردانده شد")
	}

	applyClient(order, client)
	order.Status = storage.OrderActive
	if err := p.store.UpdateOrderProvisioning(ctx, order); err != nil {
		// charged and provisioned but not recorded; needs manual attention
		log.WithFields(map[string]interface{}{
			"order_id":  order.ID,
			"reference": reference,
			"username":  order.MarzbanUser,
			"client_id": order.XUIClientID,
		}).ErrorErr(err, "failed to persist provisioned client")
		return nil, apperrors.Database(err)
	}

	earned := p.award(ctx, userID, price, loyalty.ActionPurchase, "خرید "+plan.Name)

	log.WithField("order_id", order.ID).Info("purchase completed")
	p.notifier.SendPurchaseLog(ctx, LogEntry{
		OrderID:  order.ID,
		UserID:   userID,
		PlanName: plan.Name,
		Price:    price,
		Method:   wallet.MethodPurchase,
	})

	return &Purchase{Order: order, Plan: plan, Price: price, Client: client, Points: earned}, nil
}

func (p *Provisioner) createOnPanel(ctx context.Context, userID int64, plan *storage.Plan, order *storage.Order) (*panel.Client, error) {
	adapter, err := p.panels.Get(ctx, plan.PanelID)
	if err != nil {
		return nil, err
	}
	return adapter.CreateUser(ctx, panel.CreateRequest{
		Username:     order.MarzbanUser,
		TrafficGB:    plan.TrafficGB,
		DurationDays: plan.DurationDays,
		InboundID:    plan.InboundID,
		TelegramID:   userID,
	})
}

// Renew charges the plan price and renews orderID. The charge is refunded if the panel fails.
func (p *Provisioner) Renew(ctx context.Context, userID, orderID, planID int64) (*Result, int64, error) {
	order, err := p.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, 0, inputErr(err, "سفارش یافت نشد")
	}
	if order.UserID != userID {
		return nil, 0, apperrors.NotFound("سفارش یافت نشد")
	}
	if order.Status == storage.OrderRevoked || order.Status == storage.OrderFailed {
		return nil, 0, apperrors.InvalidInput("این سرویس قابل تمدید نیست")
	}

	plan, err := p.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, 0, inputErr(err, "پلن یافت نشد")
	}
	if !plan.Active {
		return nil, 0, apperrors.InvalidInput("این پلن در حال حاضر فعال نیست")
	}
	if !order.PanelID.Valid || plan.PanelID != order.PanelID.Int64 {
		return nil, 0, apperrors.InvalidInput("این پلن برای تمدید این سرویس قابل استفاده نیست")
	}

	price := p.Quote(ctx, userID, plan)
	reference := fmt.Sprintf("renew:%d", orderID)

	if price > 0 {
		if err := p.wallet.DeductBalance(ctx, userID, price, "تمدید "+plan.Name, reference); err != nil {
			return nil, 0, err
		}
	}

	result, err := p.renewals.ProcessRenewalForOrder(ctx, orderID, planID)
	if err != nil {
		p.refund(ctx, userID, price, reference, plan.Name)
		return nil, 0, err
	}

	p.award(ctx, userID, price, loyalty.ActionRenewal, "تمدید "+plan.Name)
	p.notifier.SendRenewalLog(ctx, LogEntry{
		OrderID:  orderID,
		UserID:   userID,
		PlanName: plan.Name,
		Price:    price,
		Method:   wallet.MethodPurchase,
	})

	return result, price, nil
}

// Revoke removes the account from its panel and marks the order revoked
func (p *Provisioner) Revoke(ctx context.Context, orderID int64) error {
	order, err := p.store.GetOrder(ctx, orderID)
	if err != nil {
		return inputErr(err, "سفارش یافت نشد")
	}
	if !order.PanelID.Valid || order.MarzbanUser == "" {
		return apperrors.InvalidInput("این سفارش سرویس فعالی ندارد")
	}

	adapter, err := p.panels.Get(ctx, order.PanelID.Int64)
	if err != nil {
		return apperrors.Panel(err, "پنل این سرویس در دسترس نیست")
	}
	if err := adapter.RevokeUser(ctx, order.MarzbanUser); err != nil {
		p.log.WithField("order_id", orderID).ErrorErr(err, "revoke failed")
		return apperrors.Panel(err, fmt.Sprintf("حذف سرویس از پنل ناموفق بود: %v", err))
	}

	if err := p.store.SetOrderStatus(ctx, orderID, storage.OrderRevoked); err != nil {
		return apperrors.Database(err)
	}
	p.log.WithField("order_id", orderID).Info("order revoked")
	return nil
}

func (p *Provisioner) refund(ctx context.Context, userID, amount int64, reference, planName string) {
	if amount <= 0 {
		return
	}
	_, err := p.wallet.AddCredit(ctx, wallet.CreditRequest{
		UserID:      userID,
		Amount:      amount,
		Method:      wallet.MethodRefund,
		Reference:   reference,
		Description: "بازگشت وجه " + planName,
		AutoApprove: true,
	})
	if err != nil {
		// the user was charged without a service; this needs manual attention
		p.log.WithFields(map[string]interface{}{
			"user_id":   userID,
			"amount":    amount,
			"reference": reference,
		}).ErrorErr(err, "refund failed")
	}
}

func (p *Provisioner) markFailed(ctx context.Context, orderID int64) {
	if err := p.store.SetOrderStatus(ctx, orderID, storage.OrderFailed); err != nil {
		p.log.WithField("order_id", orderID).ErrorErr(err, "failed to mark order failed")
	}
}

func (p *Provisioner) award(ctx context.Context, userID, price int64, action, description string) int {
	points := p.loyalty.PointsForPurchase(price)
	if points <= 0 {
		return 0
	}
	if _, err := p.loyalty.AddPoints(ctx, userID, points, action, description); err != nil {
		p.log.WithField("user_id", userID).ErrorErr(err, "failed to award points")
		return 0
	}
	return points
}
