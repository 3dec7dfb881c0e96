package bot

import (
	"context"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"vpn-shop-bot/internal/bot/constants"
)

// handleCommand handles incoming commands
func (b *Bot) handleCommand(ctx *th.Context, message telego.Message) error {
	return b.dispatchCommand(ctx, message)
}

// handleTextMessage handles text messages from keyboard buttons, flow input and receipts
func (b *Bot) handleTextMessage(ctx *th.Context, message telego.Message) error {
	return b.dispatchText(ctx, message)
}

// handleCallback handles inline button presses
func (b *Bot) handleCallback(ctx *th.Context, query telego.CallbackQuery) error {
	return b.dispatchCallback(ctx, query)
}

// allow applies the rate limit; admins bypass it
func (b *Bot) allow(userID int64, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	if err := b.rateLimiter.Check(userID); err != nil {
		b.logger.Warnf("Rate limit exceeded for user ID: %d", userID)
		return false
	}
	return true
}

func (b *Bot) dispatchCommand(ctx context.Context, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	chatID := message.Chat.ID
	userID := message.From.ID
	isAdmin := b.authMiddleware.IsAdmin(userID)

	command, _, args := tu.ParseCommand(message.Text)

	b.logger.Infof("Command /%s from user ID: %d", command, userID)

	if !b.allow(userID, isAdmin) {
		return nil // Silently ignore
	}

	switch command {
	case constants.CmdStart:
		b.handleStart(ctx, chatID, message.From)
		return nil
	case constants.CmdHelp:
		b.handleHelp(ctx, chatID, isAdmin)
		return nil
	case constants.CmdID:
		b.handleID(ctx, chatID, userID)
		return nil
	case constants.CmdCancel:
		b.handleCancel(ctx, chatID, userID)
		return nil
	case constants.CmdWallet:
		b.handleWallet(ctx, chatID, userID)
		return nil
	case constants.CmdBuy:
		b.handlePlans(ctx, chatID)
		return nil
	case constants.CmdServices:
		b.handleServices(ctx, chatID, userID, 0)
		return nil
	case constants.CmdPoints:
		b.handleLoyalty(ctx, chatID, userID)
		return nil
	case constants.CmdBirthday:
		b.handleBirthday(ctx, chatID, userID, args)
		return nil
	}

	if !isAdmin {
		b.sendMessage(ctx, chatID, "❌ دستور ناشناخته است. برای راهنما /help را بزنید.")
		return nil
	}

	switch command {
	case constants.CmdPending:
		b.handlePending(ctx, chatID)
	case constants.CmdCredit:
		b.handleCredit(ctx, chatID, userID, args)
	case constants.CmdStats:
		b.handleStats(ctx, chatID)
	case constants.CmdAddPanel:
		b.handleAddPanel(ctx, chatID, args)
	case constants.CmdAddPlan:
		b.handleAddPlan(ctx, chatID, args)
	case constants.CmdPanels:
		b.handlePanels(ctx, chatID)
	case constants.CmdRevoke:
		b.handleRevoke(ctx, chatID, args)
	case constants.CmdBackup:
		b.handleBackup(ctx, chatID)
	default:
		b.sendMessage(ctx, chatID, "❌ دستور ناشناخته است. برای راهنما /help را بزنید.")
	}
	return nil
}

func (b *Bot) dispatchText(ctx context.Context, message telego.Message) error {
	if message.From == nil {
		return nil
	}
	// Skip if it's a command
	if strings.HasPrefix(message.Text, "/") {
		return nil
	}

	chatID := message.Chat.ID
	userID := message.From.ID
	isAdmin := b.authMiddleware.IsAdmin(userID)

	if !b.allow(userID, isAdmin) {
		return nil
	}

	if len(message.Photo) > 0 || message.Document != nil {
		return b.handleMediaMessage(ctx, message)
	}

	text := strings.TrimSpace(message.Text)
	if text == constants.BtnCancel {
		b.handleCancel(ctx, chatID, userID)
		return nil
	}

	// Multi-step flows take precedence over menu buttons
	if state, ok := b.getUserState(userID); ok {
		switch state {
		case constants.StateAwaitingDepositAmount:
			b.handleDepositAmount(ctx, chatID, userID, text)
			return nil
		case constants.StateAwaitingReceipt:
			b.sendMessage(ctx, chatID, "📸 لطفا تصویر رسید واریز را ارسال کنید یا «انصراف» را بزنید.")
			return nil
		case constants.StateAwaitingBroadcastMessage:
			if isAdmin {
				b.handleBroadcastMessage(ctx, chatID, message.Text)
				return nil
			}
		}
	}

	switch text {
	case constants.BtnBuy:
		b.handlePlans(ctx, chatID)
	case constants.BtnServices:
		b.handleServices(ctx, chatID, userID, 0)
	case constants.BtnWallet:
		b.handleWallet(ctx, chatID, userID)
	case constants.BtnLoyalty:
		b.handleLoyalty(ctx, chatID, userID)
	case constants.BtnHelp:
		b.handleHelp(ctx, chatID, isAdmin)
	case constants.BtnPending:
		if isAdmin {
			b.handlePending(ctx, chatID)
		}
	case constants.BtnStats:
		if isAdmin {
			b.handleStats(ctx, chatID)
		}
	case constants.BtnBroadcast:
		if isAdmin {
			b.handleBroadcastStart(ctx, chatID)
		}
	case constants.BtnBackupDB:
		if isAdmin {
			b.handleBackup(ctx, chatID)
		}
	default:
		b.sendMessageWithKeyboard(ctx, chatID, "از منوی زیر استفاده کنید 👇", b.mainKeyboard(userID))
	}
	return nil
}

// handleMediaMessage handles photos and documents; only deposit receipts are expected
func (b *Bot) handleMediaMessage(ctx context.Context, message telego.Message) error {
	chatID := message.Chat.ID
	userID := message.From.ID

	b.logger.Infof("Media message from user ID: %d", userID)

	if state, ok := b.getUserState(userID); ok && state == constants.StateAwaitingReceipt {
		b.handleReceipt(ctx, chatID, message)
		return nil
	}

	b.sendMessage(ctx, chatID, "ℹ️ برای ارسال رسید ابتدا از بخش کیف پول مبلغ واریزی را وارد کنید.")
	return nil
}

func (b *Bot) dispatchCallback(ctx context.Context, query telego.CallbackQuery) error {
	if query.Message == nil {
		return nil
	}
	data := query.Data
	userID := query.From.ID
	chatID := query.Message.GetChat().ID
	messageID := query.Message.GetMessageID()
	isAdmin := b.authMiddleware.IsAdmin(userID)

	b.logger.Infof("Callback from user %d: %s", userID, data)

	if !b.allow(userID, isAdmin) {
		b.answerCallback(ctx, query.ID, "⏳ لطفا کمی صبر کنید", false)
		return nil
	}

	switch {
	case data == constants.CbWalletTopUp:
		b.answerCallback(ctx, query.ID, "", false)
		b.handleTopUpStart(ctx, chatID, userID)
	case data == constants.CbWalletHistory:
		b.answerCallback(ctx, query.ID, "", false)
		b.handleWalletHistory(ctx, chatID, userID)
	case data == constants.CbCancelBuy:
		b.answerCallback(ctx, query.ID, "", false)
		b.editMessageText(ctx, chatID, messageID, "❌ خرید لغو شد")
	case data == constants.CbBackToOrders:
		b.answerCallback(ctx, query.ID, "", false)
		b.handleServices(ctx, chatID, userID, messageID)
	case data == constants.CbLoyaltyRecent:
		b.answerCallback(ctx, query.ID, "", false)
		b.handleLoyaltyHistory(ctx, chatID, userID)
	case strings.HasPrefix(data, constants.CbPlanPrefix):
		b.answerCallback(ctx, query.ID, "", false)
		b.handlePlanSelected(ctx, chatID, userID, messageID, data)
	case strings.HasPrefix(data, constants.CbBuyPrefix):
		b.answerCallback(ctx, query.ID, "⏳ در حال پردازش...", false)
		b.handleBuy(ctx, chatID, userID, messageID, data)
	case strings.HasPrefix(data, constants.CbOrderPrefix):
		b.answerCallback(ctx, query.ID, "", false)
		b.handleOrder(ctx, chatID, userID, messageID, data)
	case strings.HasPrefix(data, constants.CbQRPrefix):
		b.answerCallback(ctx, query.ID, "", false)
		b.handleOrderQR(ctx, chatID, userID, data)
	case strings.HasPrefix(data, constants.CbRenewPlan):
		b.answerCallback(ctx, query.ID, "⏳ در حال تمدید...", false)
		b.handleRenewPlan(ctx, chatID, userID, messageID, data)
	case strings.HasPrefix(data, constants.CbRenewPrefix):
		b.answerCallback(ctx, query.ID, "", false)
		b.handleRenewStart(ctx, chatID, userID, messageID, data)
	case isAdmin && strings.HasPrefix(data, constants.CbApproveTx):
		b.handleReview(ctx, query, true)
	case isAdmin && strings.HasPrefix(data, constants.CbRejectTx):
		b.handleReview(ctx, query, false)
	case isAdmin && data == constants.CbBroadcastConfirm:
		b.answerCallback(ctx, query.ID, "", false)
		b.handleBroadcastConfirm(ctx, chatID, messageID)
	case isAdmin && data == constants.CbBroadcastCancel:
		b.answerCallback(ctx, query.ID, "", false)
		b.handleBroadcastCancel(ctx, chatID, messageID)
	default:
		b.answerCallback(ctx, query.ID, "❌ درخواست نامعتبر", false)
	}
	return nil
}
