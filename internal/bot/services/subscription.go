package services

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"vpn-shop-bot/internal/storage"
)

// SubscriptionService formats services for display
type SubscriptionService struct {
	now func() time.Time
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService() *SubscriptionService {
	return &SubscriptionService{now: time.Now}
}

// CalculateTimeRemaining calculates days and hours remaining until expiry
func (s *SubscriptionService) CalculateTimeRemaining(expiresAt time.Time) (days int, hours int) {
	remaining := expiresAt.Sub(s.now())
	if remaining <= 0 {
		return 0, 0
	}
	days = int(remaining / (24 * time.Hour))
	hours = int((remaining % (24 * time.Hour)) / time.Hour)
	return days, hours
}

// GetSubscriptionStatus returns status icon and text for an order
func (s *SubscriptionService) GetSubscriptionStatus(o *storage.Order) (icon string, text string) {
	switch o.Status {
	case storage.OrderPending:
		return "⏳", "در حال ساخت"
	case storage.OrderFailed:
		return "❌", "ناموفق"
	case storage.OrderRevoked:
		return "🚫", "لغو شده"
	}

	if !o.ExpiresAt.Valid {
		return "♾️", "نامحدود"
	}

	days, hours := s.CalculateTimeRemaining(o.ExpiresAt.Time)
	switch {
	case days <= 0 && hours <= 0:
		return "⛔", "منقضی شده"
	case days <= 3:
		return "🔴", fmt.Sprintf("%d روز و %d ساعت (رو به پایان)", days, hours)
	case days <= 7:
		return "⚠️", fmt.Sprintf("%d روز و %d ساعت", days, hours)
	}
	return "✅", fmt.Sprintf("%d روز و %d ساعت", days, hours)
}

// IsRenewable reports whether the order can be renewed from the bot
func (s *SubscriptionService) IsRenewable(o *storage.Order) bool {
	return o.Status == storage.OrderActive && o.PanelID.Valid && o.MarzbanUser != ""
}

// FormatOrderInfo formats one service for display; plan may be nil if it was removed
func (s *SubscriptionService) FormatOrderInfo(o *storage.Order, plan *storage.Plan) string {
	icon, status := s.GetSubscriptionStatus(o)

	var sb strings.Builder
	fmt.Fprintf(&sb, "📱 <b>سرویس #%d</b>\n\n", o.ID)
	if plan != nil {
		fmt.Fprintf(&sb, "📦 پلن: %s\n", html.EscapeString(plan.Name))
	}
	fmt.Fprintf(&sb, "👤 نام کاربری: <code>%s</code>\n", html.EscapeString(o.MarzbanUser))
	fmt.Fprintf(&sb, "%s وضعیت: %s\n", icon, status)
	if o.ExpiresAt.Valid {
		fmt.Fprintf(&sb, "⏰ تاریخ پایان: %s\n", o.ExpiresAt.Time.Format("2006-01-02 15:04"))
	}
	if o.SubscriptionURL != "" {
		fmt.Fprintf(&sb, "\n🔗 لینک اشتراک:\n<code>%s</code>", html.EscapeString(o.SubscriptionURL))
	}
	return sb.String()
}

// OrderLabel is the short button text for an order
func (s *SubscriptionService) OrderLabel(o *storage.Order) string {
	icon, _ := s.GetSubscriptionStatus(o)
	return fmt.Sprintf("%s #%d %s", icon, o.ID, o.MarzbanUser)
}

// FormatPrice renders an amount in Toman with thousands separators
func FormatPrice(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var sb strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	return sign + sb.String() + " تومان"
}
