package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"vpn-shop-bot/internal/bot/constants"
	kbd "vpn-shop-bot/internal/bot/keyboard"
	"vpn-shop-bot/internal/bot/services"
	"vpn-shop-bot/internal/wallet"
)

// handleWallet shows the balance and wallet actions
func (b *Bot) handleWallet(ctx context.Context, chatID, userID int64) {
	stats, err := b.wallet.GetWalletStats(ctx, userID)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}

	msg := fmt.Sprintf(
		"💰 <b>کیف پول</b>\n\n💵 موجودی: <b>%s</b>\n📥 مجموع واریز: %s\n📤 مجموع خرید: %s\n🔢 تعداد تراکنش: %d",
		services.FormatPrice(stats.Balance),
		services.FormatPrice(stats.TotalDeposited),
		services.FormatPrice(stats.TotalSpent),
		stats.TransactionCount,
	)
	if stats.LastDeposit != nil {
		msg += fmt.Sprintf("\n🕐 آخرین واریز: %s (%s)",
			services.FormatPrice(stats.LastDeposit.Amount), stats.LastDeposit.CreatedAt.Format("2006-01-02"))
	}

	b.sendMessageWithInlineKeyboard(ctx, chatID, msg, kbd.BuildWalletKeyboard())
}

var statusLabels = map[string]string{
	wallet.StatusPending:   "⏳ در انتظار",
	wallet.StatusApproved:  "✅ تایید شده",
	wallet.StatusRejected:  "❌ رد شده",
	wallet.StatusCancelled: "🚫 لغو شده",
}

func formatTransaction(tx *wallet.Transaction) string {
	sign := "+"
	if tx.Direction == wallet.DirectionDebit {
		sign = "-"
	}
	line := fmt.Sprintf("%s%s | %s | %s", sign, services.FormatPrice(tx.Amount), statusLabels[tx.Status], tx.CreatedAt.Format("2006-01-02 15:04"))
	if tx.Description != "" {
		line += "\n   " + html.EscapeString(tx.Description)
	}
	return line
}

// handleWalletHistory lists the latest transactions
func (b *Bot) handleWalletHistory(ctx context.Context, chatID, userID int64) {
	txs, err := b.wallet.GetTransactions(ctx, userID, 10)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	if len(txs) == 0 {
		b.sendMessage(ctx, chatID, "📜 هنوز تراکنشی ثبت نشده است.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 <b>آخرین تراکنش‌ها</b>\n\n")
	for _, tx := range txs {
		sb.WriteString(formatTransaction(tx))
		sb.WriteString("\n\n")
	}
	b.sendMessage(ctx, chatID, strings.TrimSpace(sb.String()))
}

// handleTopUpStart asks for the deposit amount
func (b *Bot) handleTopUpStart(ctx context.Context, chatID, userID int64) {
	if err := b.setUserState(userID, constants.StateAwaitingDepositAmount); err != nil {
		b.logger.ErrorErr(err, "Failed to save state")
		b.sendMessage(ctx, chatID, "❌ خطا در ذخیره وضعیت، دوباره تلاش کنید")
		return
	}

	msg := fmt.Sprintf("💳 مبلغ واریزی را به تومان وارد کنید.\n\nحداقل: %s", services.FormatPrice(b.config.Wallet.MinDeposit))
	if b.config.Wallet.MaxDeposit > 0 {
		msg += fmt.Sprintf("\nحداکثر: %s", services.FormatPrice(b.config.Wallet.MaxDeposit))
	}
	b.sendMessageWithKeyboard(ctx, chatID, msg, kbd.BuildCancelKeyboard())
}

// handleDepositAmount validates the typed amount and shows payment details
func (b *Bot) handleDepositAmount(ctx context.Context, chatID, userID int64, text string) {
	amount, err := parseAmount(text)
	if err != nil || amount <= 0 {
		b.sendMessage(ctx, chatID, "❌ مبلغ نامعتبر است. فقط عدد وارد کنید.")
		return
	}
	if amount < b.config.Wallet.MinDeposit {
		b.sendMessage(ctx, chatID, fmt.Sprintf("❌ حداقل مبلغ واریز %s است.", services.FormatPrice(b.config.Wallet.MinDeposit)))
		return
	}
	if b.config.Wallet.MaxDeposit > 0 && amount > b.config.Wallet.MaxDeposit {
		b.sendMessage(ctx, chatID, fmt.Sprintf("❌ حداکثر مبلغ واریز %s است.", services.FormatPrice(b.config.Wallet.MaxDeposit)))
		return
	}

	if err := b.setDepositState(userID, amount); err != nil {
		b.logger.ErrorErr(err, "Failed to save deposit state")
		b.sendMessage(ctx, chatID, "❌ خطا در ذخیره وضعیت، دوباره تلاش کنید")
		return
	}
	if err := b.setUserState(userID, constants.StateAwaitingReceipt); err != nil {
		b.logger.ErrorErr(err, "Failed to save state")
	}

	msg := fmt.Sprintf(
		"💳 لطفا مبلغ <b>%s</b> را به کارت زیر واریز کنید:\n\n<code>%s</code>\nبه نام: %s\n\nسپس تصویر رسید را همینجا ارسال کنید.",
		services.FormatPrice(amount),
		html.EscapeString(b.config.Wallet.CardNumber),
		html.EscapeString(b.config.Wallet.CardHolder),
	)
	b.sendMessage(ctx, chatID, msg)
}

// handleReceipt records a pending credit and forwards the receipt to admins for review
func (b *Bot) handleReceipt(ctx context.Context, chatID int64, message telego.Message) {
	userID := message.From.ID

	deposit, ok := b.getDepositState(userID)
	if !ok {
		b.clearStates(userID)
		b.sendMessage(ctx, chatID, "❌ درخواست واریز منقضی شده است. دوباره از کیف پول شروع کنید.")
		return
	}

	var fileID string
	switch {
	case len(message.Photo) > 0:
		fileID = message.Photo[len(message.Photo)-1].FileID
	case message.Document != nil:
		fileID = message.Document.FileID
	}

	reference := "dep-" + uuid.NewString()[:8]
	txID, err := b.wallet.AddCredit(ctx, wallet.CreditRequest{
		UserID:      userID,
		Amount:      deposit.Amount,
		Method:      wallet.MethodCard,
		Reference:   reference,
		Description: "واریز کارت به کارت",
	})
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	b.clearStates(userID)

	b.sendMessageWithKeyboard(ctx, chatID, fmt.Sprintf(
		"✅ رسید شما ثبت شد و پس از بررسی به موجودی اضافه می‌شود.\n\n🧾 شماره پیگیری: <code>%s</code>", reference,
	), b.mainKeyboard(userID))

	caption := fmt.Sprintf(
		"🧾 <b>درخواست شارژ کیف پول</b>\n\n👤 کاربر: %s (<code>%d</code>)\n💰 مبلغ: %s\n🔖 پیگیری: <code>%s</code>\n#tx%d",
		userLink(userID, message.From.FirstName), userID, services.FormatPrice(deposit.Amount), reference, txID,
	)
	review := kbd.BuildReviewKeyboard(txID)
	for _, adminID := range b.config.Telegram.AdminIDs {
		if len(message.Photo) > 0 {
			_, err = b.bot.SendPhoto(ctx, tu.Photo(tu.ID(adminID), tu.FileFromID(fileID)).
				WithCaption(caption).
				WithParseMode("HTML").
				WithReplyMarkup(review))
		} else {
			_, err = b.bot.SendDocument(ctx, tu.Document(tu.ID(adminID), tu.FileFromID(fileID)).
				WithCaption(caption).
				WithParseMode("HTML").
				WithReplyMarkup(review))
		}
		if err != nil {
			b.logger.WithField("admin_id", adminID).ErrorErr(err, "Failed to forward receipt")
		}
	}
}
