package bot

import (
	"context"
	"fmt"
	"html"

	"vpn-shop-bot/internal/bot/constants"
	kbd "vpn-shop-bot/internal/bot/keyboard"
	"vpn-shop-bot/internal/bot/services"
	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/renewal"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/pkg/xui"
)

// handlePlans lists plans for sale
func (b *Bot) handlePlans(ctx context.Context, chatID int64) {
	plans, err := b.store.ListActivePlans(ctx)
	if err != nil {
		b.logger.ErrorErr(err, "Failed to list plans")
		b.sendError(ctx, chatID, apperrors.Database(err))
		return
	}
	if len(plans) == 0 {
		b.sendMessage(ctx, chatID, "😔 در حال حاضر پلنی برای فروش موجود نیست.")
		return
	}

	b.sendMessageWithInlineKeyboard(ctx, chatID, "🛒 <b>پلن مورد نظر را انتخاب کنید:</b>",
		kbd.BuildPlansKeyboard(plans, constants.CbPlanPrefix, planLabel))
}

// handlePlanSelected shows the discounted price and asks for confirmation
func (b *Bot) handlePlanSelected(ctx context.Context, chatID, userID int64, messageID int, data string) {
	planID, err := parseID(data, constants.CbPlanPrefix)
	if err != nil {
		return
	}
	plan, err := b.store.GetPlan(ctx, planID)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}

	price := b.shop.Quote(ctx, userID, plan)
	balance, err := b.wallet.GetBalance(ctx, userID)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}

	msg := formatPlan(plan)
	if price != plan.Price {
		msg += fmt.Sprintf("\n🎁 قیمت با تخفیف وفاداری: <b>%s</b>", services.FormatPrice(price))
	}
	msg += fmt.Sprintf("\n\n💵 موجودی کیف پول: %s", services.FormatPrice(balance))
	if balance < price {
		msg += fmt.Sprintf("\n⚠️ برای خرید %s دیگر لازم است.", services.FormatPrice(price-balance))
	}

	b.editMessage(ctx, chatID, messageID, msg, kbd.BuildConfirmBuyKeyboard(plan.ID))
}

// handleBuy charges the wallet and provisions the plan
func (b *Bot) handleBuy(ctx context.Context, chatID, userID int64, messageID int, data string) {
	planID, err := parseID(data, constants.CbBuyPrefix)
	if err != nil {
		return
	}

	b.editMessageText(ctx, chatID, messageID, "⏳ در حال ساخت سرویس...")

	purchase, err := b.shop.Purchase(ctx, userID, planID)
	if err != nil {
		b.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"plan_id": planID,
		}).Warnf("Purchase failed: %v", err)
		b.editMessageText(ctx, chatID, messageID, "❌ "+apperrors.UserMessage(err))
		return
	}

	msg := fmt.Sprintf("✅ <b>خرید با موفقیت انجام شد</b>\n\n%s\n\n💰 مبلغ پرداختی: %s",
		b.subscriptionService.FormatOrderInfo(purchase.Order, purchase.Plan), services.FormatPrice(purchase.Price))
	if purchase.Points > 0 {
		msg += fmt.Sprintf("\n⭐ %d امتیاز دریافت کردید", purchase.Points)
	}
	b.editMessageText(ctx, chatID, messageID, msg)
	b.sendSubscriptionQR(ctx, chatID, purchase.Order)
}

// handleServices lists the user's orders; messageID > 0 edits in place
func (b *Bot) handleServices(ctx context.Context, chatID, userID int64, messageID int) {
	orders, err := b.store.ListOrdersByUser(ctx, userID)
	if err != nil {
		b.logger.ErrorErr(err, "Failed to list orders")
		b.sendError(ctx, chatID, apperrors.Database(err))
		return
	}

	visible := orders[:0]
	for _, o := range orders {
		if o.Status != storage.OrderFailed {
			visible = append(visible, o)
		}
	}
	if len(visible) == 0 {
		b.sendMessage(ctx, chatID, "📱 هنوز سرویسی خریداری نکرده‌اید. از «خرید سرویس» شروع کنید.")
		return
	}

	text := "📱 <b>سرویس‌های شما:</b>"
	keyboard := kbd.BuildOrdersKeyboard(visible, b.subscriptionService.OrderLabel)
	if messageID > 0 {
		b.editMessage(ctx, chatID, messageID, text, keyboard)
		return
	}
	b.sendMessageWithInlineKeyboard(ctx, chatID, text, keyboard)
}

// userOrder loads an order and checks it belongs to userID
func (b *Bot) userOrder(ctx context.Context, userID, orderID int64) (*storage.Order, error) {
	order, err := b.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID && !b.authMiddleware.IsAdmin(userID) {
		return nil, apperrors.NotFound("سفارش یافت نشد")
	}
	return order, nil
}

// handleOrder shows one service
func (b *Bot) handleOrder(ctx context.Context, chatID, userID int64, messageID int, data string) {
	orderID, err := parseID(data, constants.CbOrderPrefix)
	if err != nil {
		return
	}
	order, err := b.userOrder(ctx, userID, orderID)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}

	plan, err := b.store.GetPlan(ctx, order.PlanID)
	if err != nil {
		plan = nil
	}

	b.editMessage(ctx, chatID, messageID,
		b.subscriptionService.FormatOrderInfo(order, plan),
		kbd.BuildOrderKeyboard(order.ID, b.subscriptionService.IsRenewable(order)))
}

// handleOrderQR sends the subscription link as a QR code
func (b *Bot) handleOrderQR(ctx context.Context, chatID, userID int64, data string) {
	orderID, err := parseID(data, constants.CbQRPrefix)
	if err != nil {
		return
	}
	order, err := b.userOrder(ctx, userID, orderID)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	if order.SubscriptionURL == "" {
		b.sendMessage(ctx, chatID, "❌ برای این سرویس لینک اشتراکی ثبت نشده است.")
		return
	}
	b.sendSubscriptionQR(ctx, chatID, order)
}

func (b *Bot) sendSubscriptionQR(ctx context.Context, chatID int64, order *storage.Order) {
	if order.SubscriptionURL == "" {
		return
	}
	png, err := xui.QRCode(order.SubscriptionURL)
	if err != nil {
		b.logger.WithField("order_id", order.ID).ErrorErr(err, "Failed to render QR code")
		return
	}
	b.sendPhoto(ctx, chatID, png, fmt.Sprintf("order_%d.png", order.ID),
		fmt.Sprintf("🔗 <code>%s</code>", html.EscapeString(order.SubscriptionURL)))
}

// handleRenewStart lists plans usable to renew an order
func (b *Bot) handleRenewStart(ctx context.Context, chatID, userID int64, messageID int, data string) {
	orderID, err := parseID(data, constants.CbRenewPrefix)
	if err != nil {
		return
	}
	order, err := b.userOrder(ctx, userID, orderID)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	if !b.subscriptionService.IsRenewable(order) {
		b.sendMessage(ctx, chatID, "❌ این سرویس قابل تمدید نیست.")
		return
	}

	plans, err := b.store.ListActivePlans(ctx)
	if err != nil {
		b.sendError(ctx, chatID, apperrors.Database(err))
		return
	}
	var same []*storage.Plan
	for _, p := range plans {
		if p.PanelID == order.PanelID.Int64 {
			same = append(same, p)
		}
	}
	if len(same) == 0 {
		b.sendMessage(ctx, chatID, "😔 پلنی برای تمدید این سرویس موجود نیست.")
		return
	}

	text := fmt.Sprintf("🔄 <b>تمدید سرویس #%d</b>\n\nپلن تمدید را انتخاب کنید. حجم و روزهای پلن به سرویس فعلی اضافه می‌شود.", order.ID)
	keyboard := kbd.BuildRenewPlansKeyboard(order.ID, same, planLabel)
	if messageID > 0 {
		b.editMessage(ctx, chatID, messageID, text, keyboard)
		return
	}
	b.sendMessageWithInlineKeyboard(ctx, chatID, text, keyboard)
}

var strategyLabels = map[string]string{
	renewal.StrategyRecreate: "ساخت مجدد روی اینباند",
	renewal.StrategyRenew:    "تمدید در پنل",
}

// handleRenewPlan charges the wallet and renews the order
func (b *Bot) handleRenewPlan(ctx context.Context, chatID, userID int64, messageID int, data string) {
	orderID, planID, err := parseIDPair(data, constants.CbRenewPlan)
	if err != nil {
		return
	}

	b.editMessageText(ctx, chatID, messageID, "⏳ در حال تمدید سرویس...")

	result, price, err := b.shop.Renew(ctx, userID, orderID, planID)
	if err != nil {
		b.logger.WithFields(map[string]interface{}{
			"user_id":  userID,
			"order_id": orderID,
			"plan_id":  planID,
		}).Warnf("Renewal failed: %v", err)
		b.editMessageText(ctx, chatID, messageID, "❌ "+apperrors.UserMessage(err))
		return
	}

	msg := fmt.Sprintf("✅ <b>سرویس تمدید شد</b>\n\n%s\n\n💰 مبلغ پرداختی: %s\n⚙️ روش: %s",
		b.subscriptionService.FormatOrderInfo(result.Order, result.Plan),
		services.FormatPrice(price),
		strategyLabels[result.Strategy])
	if points := b.loyalty.PointsForPurchase(price); points > 0 {
		msg += fmt.Sprintf("\n⭐ %d امتیاز دریافت کردید", points)
	}
	b.editMessageText(ctx, chatID, messageID, msg)
}
