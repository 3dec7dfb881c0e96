package bot

import (
	"context"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	apperrors "vpn-shop-bot/internal/errors"
)

// Telegram messaging helpers
// These methods provide convenient wrappers for sending and editing messages

// sendMessage sends a text message
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	_, err := b.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    tu.ID(chatID),
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		b.logger.Errorf("Failed to send message to %d: %v", chatID, err)
	}
}

// sendMessageWithKeyboard sends a message with keyboard
func (b *Bot) sendMessageWithKeyboard(ctx context.Context, chatID int64, text string, keyboard *telego.ReplyKeyboardMarkup) {
	_, err := b.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:      tu.ID(chatID),
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		b.logger.Errorf("Failed to send message with keyboard to %d: %v", chatID, err)
	}
}

// sendMessageWithInlineKeyboard sends a message with inline keyboard
func (b *Bot) sendMessageWithInlineKeyboard(ctx context.Context, chatID int64, text string, keyboard *telego.InlineKeyboardMarkup) {
	_, err := b.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:      tu.ID(chatID),
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		b.logger.Errorf("Failed to send message with inline keyboard to %d: %v", chatID, err)
	}
}

// editMessage edits an existing message
func (b *Bot) editMessage(ctx context.Context, chatID int64, messageID int, text string, keyboard *telego.InlineKeyboardMarkup) {
	_, err := b.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:      tu.ID(chatID),
		MessageID:   messageID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		b.logger.Errorf("Failed to edit message %d in chat %d: %v", messageID, chatID, err)
	}
}

// editMessageText edits a message text without keyboard
func (b *Bot) editMessageText(ctx context.Context, chatID int64, messageID int, text string) {
	if _, err := b.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
		Text:      text,
		ParseMode: "HTML",
	}); err != nil {
		b.logger.Errorf("Failed to edit message %d in chat %d: %v", messageID, chatID, err)
	}
}

// clearInlineKeyboard removes the buttons under a message
func (b *Bot) clearInlineKeyboard(ctx context.Context, chatID int64, messageID int) {
	if _, err := b.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	}); err != nil {
		b.logger.Errorf("Failed to clear keyboard of message %d in chat %d: %v", messageID, chatID, err)
	}
}

// sendPhoto sends an image held in memory
func (b *Bot) sendPhoto(ctx context.Context, chatID int64, data []byte, name, caption string) {
	params := tu.Photo(tu.ID(chatID), tu.FileFromBytes(data, name)).
		WithCaption(caption).
		WithParseMode("HTML")
	if _, err := b.bot.SendPhoto(ctx, params); err != nil {
		b.logger.Errorf("Failed to send photo to %d: %v", chatID, err)
	}
}

// answerCallback acknowledges a callback query, optionally with a toast
func (b *Bot) answerCallback(ctx context.Context, queryID, text string, alert bool) {
	if err := b.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: queryID,
		Text:            text,
		ShowAlert:       alert,
	}); err != nil {
		b.logger.Errorf("Failed to answer callback query: %v", err)
	}
}

// sendError shows err's user-facing message
func (b *Bot) sendError(ctx context.Context, chatID int64, err error) {
	b.sendMessage(ctx, chatID, "❌ "+apperrors.UserMessage(err))
}
