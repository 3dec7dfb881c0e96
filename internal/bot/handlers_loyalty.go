package bot

import (
	"context"
	"fmt"
	"html"
	"strings"

	"vpn-shop-bot/internal/bot/constants"
	kbd "vpn-shop-bot/internal/bot/keyboard"
	"vpn-shop-bot/internal/loyalty"
)

var actionLabels = map[string]string{
	loyalty.ActionPurchase:   "🛒 خرید",
	loyalty.ActionRenewal:    "🔄 تمدید",
	loyalty.ActionDailyLogin: "📅 ورود روزانه",
	loyalty.ActionBirthday:   "🎂 تولد",
	loyalty.ActionRedeem:     "🎁 استفاده",
	loyalty.ActionAdmin:      "👑 مدیر",
}

// discountLine describes the user's current loyalty discount
func discountLine(level string) string {
	if pct := loyalty.DiscountPercent(level); pct > 0 {
		return fmt.Sprintf("🎁 تخفیف خرید: %d%%", pct)
	}
	return "🎁 تخفیف خرید: ندارد"
}

// handleLoyalty shows points, level and progress
func (b *Bot) handleLoyalty(ctx context.Context, chatID, userID int64) {
	points, err := b.loyalty.GetPoints(ctx, userID)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}

	msg := fmt.Sprintf(
		"⭐ <b>باشگاه مشتریان</b>\n\n🏅 سطح: %s\n💎 امتیاز فعلی: %d\n📈 مجموع امتیاز: %d\n%s",
		loyalty.LevelTitle(points.Level), points.CurrentPoints, points.TotalPoints, discountLine(points.Level),
	)
	if next, need := loyalty.NextLevel(points.TotalPoints); next != "" {
		msg += fmt.Sprintf("\n\n⬆️ %d امتیاز تا سطح %s", need, loyalty.LevelTitle(next))
	}
	if points.Birthday == "" {
		msg += fmt.Sprintf("\n\n🎂 با ثبت تاریخ تولد (/%s MM-DD) هر سال هدیه بگیرید.", constants.CmdBirthday)
	} else {
		msg += fmt.Sprintf("\n\n🎂 تاریخ تولد: %s", points.Birthday)
	}

	b.sendMessageWithInlineKeyboard(ctx, chatID, msg, kbd.BuildLoyaltyKeyboard())
}

// handleLoyaltyHistory lists recent point changes
func (b *Bot) handleLoyaltyHistory(ctx context.Context, chatID, userID int64) {
	history, err := b.loyalty.GetHistory(ctx, userID, 10)
	if err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	if len(history) == 0 {
		b.sendMessage(ctx, chatID, "📜 هنوز امتیازی ثبت نشده است.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 <b>تاریخچه امتیاز</b>\n\n")
	for _, h := range history {
		label := actionLabels[h.Action]
		if label == "" {
			label = h.Action
		}
		fmt.Fprintf(&sb, "%+d | %s | %s\n", h.Points, label, h.CreatedAt.Format("2006-01-02"))
		if h.Description != "" {
			fmt.Fprintf(&sb, "   %s\n", html.EscapeString(h.Description))
		}
	}
	b.sendMessage(ctx, chatID, strings.TrimSpace(sb.String()))
}

// handleBirthday handles /birthday MM-DD
func (b *Bot) handleBirthday(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) != 1 {
		b.sendMessage(ctx, chatID, "❌ استفاده: /birthday MM-DD\nمثال: /birthday 03-21")
		return
	}
	if err := b.loyalty.SetBirthday(ctx, userID, digitReplacer.Replace(args[0])); err != nil {
		b.sendError(ctx, chatID, err)
		return
	}
	b.sendMessage(ctx, chatID, "🎂 تاریخ تولد شما ثبت شد.")

	if granted, err := b.loyalty.CheckBirthday(ctx, userID); err == nil && granted {
		b.sendMessage(ctx, chatID, fmt.Sprintf("🎉 تولدتان مبارک! %d امتیاز هدیه گرفتید.", b.config.Loyalty.BirthdayPoints))
	}
}
