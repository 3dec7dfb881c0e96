package bot

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"vpn-shop-bot/internal/bot/constants"
	kbd "vpn-shop-bot/internal/bot/keyboard"
	"vpn-shop-bot/internal/bot/services"
	apperrors "vpn-shop-bot/internal/errors"
	"vpn-shop-bot/internal/panel"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/internal/wallet"
)

// Admin handlers: deposit review, manual credit, catalog management, stats and backups

// handlePending lists transactions waiting for review, each with its own buttons
func (b *Bot) handlePending(ctx context.Context, chatID int64) {
	txs, err := b.wallet.GetPendingTransactions(ctx, 20)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	if len(txs) == 0 {
		b.sendMessage(ctx, chatID, "✅ تراکنش در انتظاری وجود ندارد.")
		return
	}

	for _, tx := range txs {
		msg := fmt.Sprintf("🧾 <b>تراکنش #%d</b>\n\n👤 کاربر: %s\n💰 مبلغ: %s\n💳 روش: %s\n🔖 پیگیری: <code>%s</code>\n🕐 %s",
			tx.ID, userLink(tx.UserID, ""), services.FormatPrice(tx.Amount), tx.Method,
			html.EscapeString(tx.Reference), tx.CreatedAt.Format("2006-01-02 15:04"))
		b.sendMessageWithInlineKeyboard(ctx, chatID, msg, kbd.BuildReviewKeyboard(tx.ID))
	}
}

// handleReview approves or rejects a pending deposit from its inline buttons
func (b *Bot) handleReview(ctx context.Context, query telego.CallbackQuery, approve bool) {
	chatID := query.Message.GetChat().ID
	messageID := query.Message.GetMessageID()
	adminID := query.From.ID

	prefix := constants.CbRejectTx
	if approve {
		prefix = constants.CbApproveTx
	}
	txID, err := parseID(query.Data, prefix)
	if err != nil {
		b.answerCallback(ctx, query.ID, "❌ درخواست نامعتبر", false)
		return
	}

	if approve {
		err = b.wallet.ApproveTransaction(ctx, txID, adminID)
	} else {
		err = b.wallet.RejectTransaction(ctx, txID, adminID)
	}
	if err != nil {
		b.answerCallback(ctx, query.ID, apperrors.UserMessage(err), true)
		if apperrors.Is(err, apperrors.ErrAlreadyProcessed) {
			b.clearInlineKeyboard(ctx, chatID, messageID)
		}
		return
	}

	b.clearInlineKeyboard(ctx, chatID, messageID)

	tx, err := b.wallet.GetTransaction(ctx, txID)
	if err != nil {
		b.answerCallback(ctx, query.ID, "✅ انجام شد", false)
		return
	}

	if approve {
		b.answerCallback(ctx, query.ID, "✅ تایید شد", false)
		b.sendMessage(ctx, chatID, fmt.Sprintf("✅ تراکنش #%d (%s) توسط %s تایید شد.",
			tx.ID, services.FormatPrice(tx.Amount), userLink(adminID, query.From.FirstName)))

		balance, err := b.wallet.GetBalance(ctx, tx.UserID)
		if err != nil {
			b.logger.ErrorErr(err, "Failed to read balance after approval")
		}
		b.sendMessage(ctx, tx.UserID, fmt.Sprintf("✅ واریز شما به مبلغ %s تایید شد.\n💵 موجودی فعلی: %s",
			services.FormatPrice(tx.Amount), services.FormatPrice(balance)))
		return
	}

	b.answerCallback(ctx, query.ID, "❌ رد شد", false)
	b.sendMessage(ctx, chatID, fmt.Sprintf("❌ تراکنش #%d (%s) توسط %s رد شد.",
		tx.ID, services.FormatPrice(tx.Amount), userLink(adminID, query.From.FirstName)))
	b.sendMessage(ctx, tx.UserID, fmt.Sprintf("❌ درخواست واریز %s رد شد. در صورت نیاز با پشتیبانی تماس بگیرید.\n🔖 پیگیری: <code>%s</code>",
		services.FormatPrice(tx.Amount), html.EscapeString(tx.Reference)))
}

// handleCredit handles /credit <user_id> <amount> [description]
func (b *Bot) handleCredit(ctx context.Context, chatID, adminID int64, args []string) {
	if len(args) < 2 {
		b.sendMessage(ctx, chatID, "❌ استفاده: /credit &lt;user_id&gt; &lt;amount&gt; [توضیح]")
		return
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendMessage(ctx, chatID, "❌ شناسه کاربر نامعتبر است")
		return
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		b.sendMessage(ctx, chatID, "❌ مبلغ نامعتبر است")
		return
	}
	description := "شارژ توسط مدیر"
	if len(args) > 2 {
		description = strings.Join(args[2:], " ")
	}

	txID, err := b.wallet.AddCredit(ctx, wallet.CreditRequest{
		UserID:      userID,
		Amount:      amount,
		Method:      wallet.MethodManual,
		Reference:   fmt.Sprintf("admin:%d", adminID),
		Description: description,
		AdminID:     adminID,
		AutoApprove: true,
	})
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}

	balance, err := b.wallet.GetBalance(ctx, userID)
	if err != nil {
		b.logger.ErrorErr(err, "Failed to read balance after manual credit")
	}
	b.sendMessage(ctx, chatID, fmt.Sprintf("✅ %s به کیف پول کاربر <code>%d</code> اضافه شد (تراکنش #%d).\n💵 موجودی جدید: %s",
		services.FormatPrice(amount), userID, txID, services.FormatPrice(balance)))
	b.sendMessage(ctx, userID, fmt.Sprintf("🎁 %s توسط مدیر به کیف پول شما اضافه شد.\n📝 %s\n💵 موجودی فعلی: %s",
		services.FormatPrice(amount), html.EscapeString(description), services.FormatPrice(balance)))
}

// handleStats shows wallet and order totals
func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	stats, err := b.wallet.GetSystemStats(ctx)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	orders, err := b.store.CountOrders(ctx)
	if err != nil {
		b.logger.ErrorErr(err, "Failed to count orders")
		orders = map[string]int{}
	}

	msg := fmt.Sprintf(
		"📊 <b>آمار</b>\n\n"+
			"👛 کیف پول‌ها: %d\n💵 مجموع موجودی: %s\n📥 مجموع واریز: %s\n📤 مجموع خرید: %s\n"+
			"⏳ در انتظار بررسی: %d (%s)\n📅 واریز ۳۰ روز اخیر: %d (%s)\n\n"+
			"🧾 سفارش‌ها\n✅ فعال: %d\n⏳ در حال ساخت: %d\n❌ ناموفق: %d\n🚫 لغو شده: %d",
		stats.WalletCount, services.FormatPrice(stats.TotalBalance),
		services.FormatPrice(stats.TotalDeposited), services.FormatPrice(stats.TotalSpent),
		stats.PendingCount, services.FormatPrice(stats.PendingAmount),
		stats.RecentDeposits, services.FormatPrice(stats.RecentAmount),
		orders[storage.OrderActive], orders[storage.OrderPending], orders[storage.OrderFailed], orders[storage.OrderRevoked],
	)
	b.sendMessage(ctx, chatID, msg)
}

// handleAddPanel handles /addpanel <name> <type> <url> <username> <password>
func (b *Bot) handleAddPanel(ctx context.Context, chatID int64, args []string) {
	if len(args) != 5 {
		b.sendMessage(ctx, chatID, "❌ استفاده: /addpanel &lt;name&gt; &lt;marzban|xui&gt; &lt;url&gt; &lt;username&gt; &lt;password&gt;")
		return
	}
	kind, err := panel.ParseKind(args[1])
	if err != nil {
		b.sendMessage(ctx, chatID, "❌ نوع پنل پشتیبانی نمی‌شود. marzban یا xui (3x-ui, sanaei, alireza) وارد کنید.")
		return
	}
	u, err := url.Parse(args[2])
	if err != nil || u.Scheme == "" || u.Host == "" {
		b.sendMessage(ctx, chatID, "❌ آدرس پنل نامعتبر است")
		return
	}

	id, err := b.panels.Register(ctx, &storage.Panel{
		Name:      args[0],
		PanelType: args[1],
		URL:       strings.TrimRight(args[2], "/"),
		Username:  args[3],
		Password:  args[4],
		Active:    true,
	})
	if err != nil {
		b.logger.ErrorErr(err, "Failed to register panel")
		b.sendError(ctx, chatID, apperrors.Database(err))
		return
	}
	b.sendMessage(ctx, chatID, fmt.Sprintf("✅ پنل %s (%s) با شناسه <code>%d</code> ثبت شد.",
		html.EscapeString(args[0]), kind.Label(), id))
}

// handleAddPlan handles /addplan <panel_id> <inbound_id> <price> <traffic_gb> <days> <name...>
func (b *Bot) handleAddPlan(ctx context.Context, chatID int64, args []string) {
	if len(args) < 6 {
		b.sendMessage(ctx, chatID, "❌ استفاده: /addplan &lt;panel_id&gt; &lt;inbound_id&gt; &lt;price&gt; &lt;traffic_gb&gt; &lt;days&gt; &lt;name&gt;")
		return
	}

	nums := make([]int64, 5)
	for i := range nums {
		n, err := parseAmount(args[i])
		if err != nil || n < 0 {
			b.sendMessage(ctx, chatID, fmt.Sprintf("❌ مقدار نامعتبر: %s", html.EscapeString(args[i])))
			return
		}
		nums[i] = n
	}
	panelID, inboundID, price, trafficGB, days := nums[0], nums[1], nums[2], nums[3], nums[4]
	if days == 0 {
		b.sendMessage(ctx, chatID, "❌ مدت پلن باید بیشتر از صفر باشد")
		return
	}

	p, err := b.store.GetPanel(ctx, panelID)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	if kind, err := panel.ParseKind(p.PanelType); err == nil && kind == panel.KindXUI && inboundID == 0 {
		b.sendMessage(ctx, chatID, "❌ برای پنل‌های XUI شناسه اینباند الزامی است")
		return
	}

	plan := &storage.Plan{
		Name:         strings.Join(args[5:], " "),
		Price:        price,
		TrafficGB:    int(trafficGB),
		DurationDays: int(days),
		PanelID:      panelID,
		InboundID:    int(inboundID),
		Active:       true,
	}
	id, err := b.store.AddPlan(ctx, plan)
	if err != nil {
		b.logger.ErrorErr(err, "Failed to add plan")
		b.sendError(ctx, chatID, apperrors.Database(err))
		return
	}
	plan.ID = id
	b.sendMessage(ctx, chatID, fmt.Sprintf("✅ پلن با شناسه <code>%d</code> ثبت شد.\n\n%s", id, formatPlan(plan)))
}

// handlePanels lists registered panels
func (b *Bot) handlePanels(ctx context.Context, chatID int64) {
	panels, err := b.store.ListPanels(ctx)
	if err != nil {
		b.sendError(ctx, chatID, apperrors.Database(err))
		return
	}
	if len(panels) == 0 {
		b.sendMessage(ctx, chatID, "🖥 هنوز پنلی ثبت نشده است. از /addpanel استفاده کنید.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🖥 <b>پنل‌ها</b>\n\n")
	for _, p := range panels {
		label := p.PanelType
		if kind, err := panel.ParseKind(p.PanelType); err == nil {
			label = kind.Label()
		}
		fmt.Fprintf(&sb, "#%d %s | %s\n%s\n\n", p.ID, html.EscapeString(p.Name), label, html.EscapeString(p.URL))
	}
	b.sendMessage(ctx, chatID, strings.TrimSpace(sb.String()))
}

// handleRevoke handles /revoke <order_id>
func (b *Bot) handleRevoke(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.sendMessage(ctx, chatID, "❌ استفاده: /revoke &lt;order_id&gt;")
		return
	}
	orderID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendMessage(ctx, chatID, "❌ شناسه سفارش نامعتبر است")
		return
	}

	order, err := b.store.GetOrder(ctx, orderID)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	if err := b.shop.Revoke(ctx, orderID); err != nil {
		b.sendError(ctx, chatID, err)
		return
	}

	b.sendMessage(ctx, chatID, fmt.Sprintf("🚫 سفارش #%d لغو و از پنل حذف شد.", orderID))
	b.sendMessage(ctx, order.UserID, fmt.Sprintf("🚫 سرویس #%d شما توسط مدیر غیرفعال شد.", orderID))
}

// handleBackup snapshots the database and sends it to admins
func (b *Bot) handleBackup(ctx context.Context, chatID int64) {
	b.sendMessage(ctx, chatID, "⏳ در حال تهیه نسخه پشتیبان...")
	if _, err := b.backupService.PerformBackup(ctx); err != nil {
		b.logger.ErrorErr(err, "Backup failed")
		b.sendMessage(ctx, chatID, fmt.Sprintf("❌ پشتیبان‌گیری ناموفق بود: %s", html.EscapeString(err.Error())))
	}
}
