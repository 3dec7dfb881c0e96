package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"vpn-shop-bot/internal/bot/constants"
	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/storage"
)

// ExpiringOrders finds active orders by expiry
type ExpiringOrders interface {
	ListOrdersExpiringBetween(ctx context.Context, from, to time.Time) ([]*storage.Order, error)
}

// ExpiryNotifierService warns users before their services expire.
// Each run covers the slice [now+d, now+d+window) for every warning day d, so with
// window equal to the run interval every order is warned once per threshold.
type ExpiryNotifierService struct {
	store       ExpiringOrders
	bot         Messenger
	logger      *logger.Logger
	warningDays []int
	window      time.Duration
	now         func() time.Time
}

// NewExpiryNotifierService creates a new expiry notifier service
func NewExpiryNotifierService(store ExpiringOrders, bot Messenger, log *logger.Logger, warningDays []int, window time.Duration) *ExpiryNotifierService {
	if window <= 0 {
		window = time.Hour
	}
	return &ExpiryNotifierService{
		store:       store,
		bot:         bot,
		logger:      log,
		warningDays: warningDays,
		window:      window,
		now:         time.Now,
	}
}

// CheckAndNotify sends warnings for orders entering a warning window and returns how many were sent
func (s *ExpiryNotifierService) CheckAndNotify(ctx context.Context) (int, error) {
	s.logger.Debug("Checking for expiring subscriptions")

	now := s.now().UTC()
	sent := 0
	for _, days := range s.warningDays {
		from := now.Add(time.Duration(days) * 24 * time.Hour)
		orders, err := s.store.ListOrdersExpiringBetween(ctx, from, from.Add(s.window))
		if err != nil {
			return sent, fmt.Errorf("failed to list orders expiring in %d days: %w", days, err)
		}

		for _, o := range orders {
			if err := s.sendExpiryWarning(ctx, o, days); err != nil {
				s.logger.WithFields(map[string]interface{}{
					"order_id": o.ID,
					"user_id":  o.UserID,
					"error":    err.Error(),
				}).Warn("Failed to send expiry warning")
				continue
			}
			sent++
			s.logger.Infof("Sent %d-day expiry warning to user %d (order %d)", days, o.UserID, o.ID)
		}
	}
	return sent, nil
}

func (s *ExpiryNotifierService) sendExpiryWarning(ctx context.Context, o *storage.Order, days int) error {
	var header string
	switch {
	case days <= 1:
		header = "🔴 <b>فوری! سرویس شما فردا به پایان می‌رسد</b>"
	case days <= 3:
		header = "⚠️ <b>سرویس شما به زودی به پایان می‌رسد</b>"
	default:
		header = "📅 <b>یادآوری تمدید سرویس</b>"
	}

	message := fmt.Sprintf(
		"%s\n\n👤 سرویس: <code>%s</code>\n⏰ پایان: %s\n📅 باقیمانده: %d روز\n\nبرای تمدید روی دکمه زیر بزنید.",
		header, o.MarzbanUser, o.ExpiresAt.Time.Format("2006-01-02 15:04"), days,
	)

	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🔄 تمدید سرویس").WithCallbackData(fmt.Sprintf("%s%d", constants.CbRenewPrefix, o.ID)),
		),
	)

	_, err := s.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:      tu.ID(o.UserID),
		Text:        message,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	return err
}
