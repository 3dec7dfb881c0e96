package bot

import (
	"context"
	"fmt"
	"html"

	"github.com/mymmrac/telego"

	"vpn-shop-bot/internal/storage"
)

// handleStart registers the user, grants daily and birthday rewards and shows the menu
func (b *Bot) handleStart(ctx context.Context, chatID int64, from *telego.User) {
	b.logger.Infof("User %s (ID: %d) started bot", from.FirstName, from.ID)

	if err := b.store.UpsertUser(ctx, &storage.User{
		UserID:    from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
	}); err != nil {
		b.logger.WithField("user_id", from.ID).ErrorErr(err, "Failed to save user")
	}
	b.clearStates(from.ID)

	msg := fmt.Sprintf("👋 سلام %s!\n\nبه فروشگاه VPN خوش آمدید.\n", html.EscapeString(from.FirstName))
	if b.authMiddleware.IsAdmin(from.ID) {
		msg += "\n✅ شما به عنوان مدیر وارد شده‌اید."
	}

	if granted, err := b.loyalty.CheckDailyLogin(ctx, from.ID); err != nil {
		b.logger.WithField("user_id", from.ID).ErrorErr(err, "Daily login check failed")
	} else if granted {
		msg += fmt.Sprintf("\n🎁 %d امتیاز ورود روزانه دریافت کردید!", b.config.Loyalty.DailyLoginPoints)
	}

	if granted, err := b.loyalty.CheckBirthday(ctx, from.ID); err != nil {
		b.logger.WithField("user_id", from.ID).ErrorErr(err, "Birthday check failed")
	} else if granted {
		msg += fmt.Sprintf("\n🎂 تولدتان مبارک! %d امتیاز هدیه گرفتید.", b.config.Loyalty.BirthdayPoints)
	}

	msg += "\n\nاز منوی زیر استفاده کنید 👇"
	b.sendMessageWithKeyboard(ctx, chatID, msg, b.mainKeyboard(from.ID))
}

// handleHelp handles the /help command
func (b *Bot) handleHelp(ctx context.Context, chatID int64, isAdmin bool) {
	msg := `📋 <b>راهنما</b>

🏠 /start - منوی اصلی
🛒 /buy - خرید سرویس
📱 /services - سرویس‌های من
💰 /wallet - کیف پول و افزایش موجودی
⭐ /points - امتیازها و سطح وفاداری
🎂 /birthday MM-DD - ثبت تاریخ تولد
🆔 /id - شناسه تلگرام شما
❌ /cancel - لغو عملیات جاری`

	if isAdmin {
		msg += `

👑 <b>دستورات مدیر</b>
🧾 /pending - تراکنش‌های در انتظار
💳 /credit &lt;user_id&gt; &lt;amount&gt; [توضیح] - شارژ دستی
📊 /stats - آمار
🖥 /panels - فهرست پنل‌ها
➕ /addpanel &lt;name&gt; &lt;marzban|xui&gt; &lt;url&gt; &lt;user&gt; &lt;pass&gt;
➕ /addplan &lt;panel_id&gt; &lt;inbound_id&gt; &lt;price&gt; &lt;gb&gt; &lt;days&gt; &lt;name&gt;
🚫 /revoke &lt;order_id&gt; - حذف سرویس
💾 /backup - پشتیبان‌گیری`
	}

	b.sendMessage(ctx, chatID, msg)
}

// handleID handles the /id command
func (b *Bot) handleID(ctx context.Context, chatID, userID int64) {
	b.logger.Infof("ID request from user ID: %d", userID)
	b.sendMessage(ctx, chatID, fmt.Sprintf("🆔 شناسه تلگرام شما: <code>%d</code>", userID))
}

// handleCancel abandons any multi-step flow
func (b *Bot) handleCancel(ctx context.Context, chatID, userID int64) {
	b.clearStates(userID)
	b.sendMessageWithKeyboard(ctx, chatID, "❌ عملیات لغو شد", b.mainKeyboard(userID))
}
