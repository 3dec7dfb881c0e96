package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"vpn-shop-bot/internal/logger"
)

// UserLister returns every user who has started the bot
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// BroadcastService handles broadcast messaging
type BroadcastService struct {
	users   UserLister
	bot     Messenger
	logger  *logger.Logger
	limiter *rate.Limiter
}

// NewBroadcastService creates a new broadcast service.
// Sends are paced below Telegram's global limit of about 30 messages per second.
func NewBroadcastService(users UserLister, bot Messenger, log *logger.Logger) *BroadcastService {
	return &BroadcastService{
		users:   users,
		bot:     bot,
		logger:  log,
		limiter: rate.NewLimiter(rate.Every(40*time.Millisecond), 1),
	}
}

// SendBroadcast sends a message to all known users
func (s *BroadcastService) SendBroadcast(ctx context.Context, message string) (sent int, failed int, err error) {
	s.logger.Info("Starting broadcast")

	ids, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list users: %w", err)
	}

	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			return sent, failed, err
		}
		if err := s.SendMessage(ctx, id, message); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"user_id": id,
				"error":   err.Error(),
			}).Warn("Failed to send broadcast message")
			failed++
			continue
		}
		sent++
	}

	s.logger.WithFields(map[string]interface{}{
		"sent":   sent,
		"failed": failed,
	}).Info("Broadcast completed")

	return sent, failed, nil
}

// SendMessage sends a message to a specific user
func (s *BroadcastService) SendMessage(ctx context.Context, chatID int64, message string) error {
	_, err := s.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    tu.ID(chatID),
		Text:      message,
		ParseMode: "HTML",
	})
	return err
}
