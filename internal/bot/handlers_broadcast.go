package bot

import (
	"context"
	"fmt"
	"time"

	"vpn-shop-bot/internal/bot/constants"
	kbd "vpn-shop-bot/internal/bot/keyboard"
	"vpn-shop-bot/internal/storage"
)

// Broadcast handlers for admin announcements

// handleBroadcastStart initiates broadcast message creation
func (b *Bot) handleBroadcastStart(ctx context.Context, chatID int64) {
	b.logger.Infof("Admin %d started broadcast creation", chatID)

	if err := b.setUserState(chatID, constants.StateAwaitingBroadcastMessage); err != nil {
		b.sendMessage(ctx, chatID, "❌ خطا در ذخیره وضعیت")
		return
	}
	if err := b.setBroadcastState(chatID, &storage.BroadcastState{
		Timestamp: time.Now(),
	}); err != nil {
		b.sendMessage(ctx, chatID, "❌ خطا در ذخیره وضعیت")
		return
	}

	msg := "📢 <b>ایجاد پیام همگانی</b>\n\n" +
		"متن پیامی را که باید برای همه کاربران ارسال شود بفرستید.\n\n" +
		"<i>می‌توانید از قالب‌بندی HTML استفاده کنید: &lt;b&gt;پررنگ&lt;/b&gt;، &lt;i&gt;کج&lt;/i&gt;</i>"

	b.sendMessageWithKeyboard(ctx, chatID, msg, kbd.BuildCancelKeyboard())
}

// handleBroadcastMessage handles broadcast message text input
func (b *Bot) handleBroadcastMessage(ctx context.Context, chatID int64, message string) {
	state, exists := b.getBroadcastState(chatID)
	if !exists {
		b.clearStates(chatID)
		b.sendMessage(ctx, chatID, "❌ وضعیت پیام همگانی یافت نشد، دوباره شروع کنید")
		return
	}

	state.Message = message
	if err := b.setBroadcastState(chatID, state); err != nil {
		b.sendMessage(ctx, chatID, "❌ خطا در ذخیره وضعیت")
		return
	}

	// Show confirmation with preview
	msg := fmt.Sprintf(
		"📢 <b>تایید ارسال</b>\n\n"+
			"<b>پیش‌نمایش:</b>\n"+
			"──────────────\n"+
			"%s\n"+
			"──────────────\n\n"+
			"این پیام برای همه کاربران ارسال شود؟",
		message,
	)

	b.sendMessageWithInlineKeyboard(ctx, chatID, msg, kbd.BuildBroadcastConfirmKeyboard())
}

// handleBroadcastConfirm sends broadcast to all users
func (b *Bot) handleBroadcastConfirm(ctx context.Context, chatID int64, messageID int) {
	state, exists := b.getBroadcastState(chatID)
	b.clearStates(chatID)
	if !exists || state.Message == "" {
		b.editMessageText(ctx, chatID, messageID, "❌ وضعیت پیام همگانی یافت نشد")
		return
	}

	b.editMessageText(ctx, chatID, messageID, "⏳ در حال ارسال پیام همگانی...")

	sent, failed, err := b.broadcastService.SendBroadcast(ctx, state.Message)
	if err != nil {
		b.logger.Errorf("Broadcast failed: %v", err)
		b.editMessageText(ctx, chatID, messageID, "❌ خطا در ارسال پیام همگانی")
		return
	}

	b.editMessageText(ctx, chatID, messageID, fmt.Sprintf(
		"✅ <b>پیام همگانی ارسال شد</b>\n\n📤 موفق: %d\n❌ ناموفق: %d", sent, failed,
	))
	b.sendMessageWithKeyboard(ctx, chatID, "از منوی زیر استفاده کنید 👇", b.mainKeyboard(chatID))
	b.logger.Infof("Broadcast by admin %d: sent=%d failed=%d", chatID, sent, failed)
}

// handleBroadcastCancel cancels broadcast
func (b *Bot) handleBroadcastCancel(ctx context.Context, chatID int64, messageID int) {
	b.clearStates(chatID)
	b.editMessageText(ctx, chatID, messageID, "❌ ارسال پیام همگانی لغو شد")
	b.logger.Infof("Broadcast cancelled by admin %d", chatID)
}
