package services

import (
	"context"
	"fmt"
	"html"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/renewal"
)

// LogNotifier posts purchase and renewal logs to the admin log chats.
// Delivery failures are logged and never reach the caller.
type LogNotifier struct {
	bot    Messenger
	chats  []int64
	logger *logger.Logger
}

func NewLogNotifier(bot Messenger, chats []int64, log *logger.Logger) *LogNotifier {
	return &LogNotifier{bot: bot, chats: chats, logger: log}
}

func (n *LogNotifier) SendPurchaseLog(ctx context.Context, entry renewal.LogEntry) {
	n.send(ctx, "🛒 <b>خرید جدید</b>", entry)
}

func (n *LogNotifier) SendRenewalLog(ctx context.Context, entry renewal.LogEntry) {
	n.send(ctx, "🔄 <b>تمدید سرویس</b>", entry)
}

func (n *LogNotifier) send(ctx context.Context, title string, entry renewal.LogEntry) {
	text := fmt.Sprintf(
		"%s\n\n🧾 سفارش: #%d\n👤 کاربر: <a href=\"tg://user?id=%d\">%d</a>\n📦 پلن: %s\n💰 مبلغ: %s\n💳 روش: %s",
		title, entry.OrderID, entry.UserID, entry.UserID, html.EscapeString(entry.PlanName), FormatPrice(entry.Price), entry.Method,
	)

	for _, chatID := range n.chats {
		_, err := n.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID:    tu.ID(chatID),
			Text:      text,
			ParseMode: "HTML",
		})
		if err != nil {
			n.logger.WithFields(map[string]interface{}{
				"chat_id":  chatID,
				"order_id": entry.OrderID,
				"error":    err.Error(),
			}).Warn("Failed to send admin log")
		}
	}
}
