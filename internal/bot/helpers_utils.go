package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	kbd "vpn-shop-bot/internal/bot/keyboard"
	"vpn-shop-bot/internal/bot/services"
	"vpn-shop-bot/internal/storage"
)

var digitReplacer = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	",", "", "٬", "", "،", "", " ", "",
)

// parseAmount reads a Toman amount typed with Latin, Persian or Arabic digits and optional separators
func parseAmount(text string) (int64, error) {
	cleaned := digitReplacer.Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}
	amount, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", text, err)
	}
	return amount, nil
}

// parseID parses the numeric suffix of callback data
func parseID(data, prefix string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
}

// parseIDPair parses "<a>_<b>" after prefix
func parseIDPair(data, prefix string) (int64, int64, error) {
	parts := strings.SplitN(strings.TrimPrefix(data, prefix), "_", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed callback data %q", data)
	}
	a, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	c, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return a, c, nil
}

func planLabel(p *storage.Plan) string {
	return fmt.Sprintf("%s | %dGB | %d روز | %s", p.Name, p.TrafficGB, p.DurationDays, services.FormatPrice(p.Price))
}

func formatPlan(p *storage.Plan) string {
	traffic := fmt.Sprintf("%d گیگابایت", p.TrafficGB)
	if p.TrafficGB <= 0 {
		traffic = "نامحدود"
	}
	return fmt.Sprintf("📦 <b>%s</b>\n📊 حجم: %s\n⏰ مدت: %d روز\n💰 قیمت: %s",
		html.EscapeString(p.Name), traffic, p.DurationDays, services.FormatPrice(p.Price))
}

func userLink(userID int64, name string) string {
	if name == "" {
		name = strconv.FormatInt(userID, 10)
	}
	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", userID, html.EscapeString(name))
}

func (b *Bot) mainKeyboard(userID int64) *telego.ReplyKeyboardMarkup {
	if b.authMiddleware.IsAdmin(userID) {
		return kbd.BuildAdminKeyboard()
	}
	return kbd.BuildUserKeyboard()
}
