package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the subset of *tgbotapi.BotAPI used to send messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	Bot Sender
}

// NewTelegram returns a sink backed by bot.
func NewTelegram(bot Sender) *Telegram { return &Telegram{Bot: bot} }

// Deliver sends msg to chatID with link previews disabled.
func (t *Telegram) Deliver(ctx context.Context, chatID int64, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := tgbotapi.NewMessage(chatID, msg)
	m.DisableWebPagePreview = true
	if _, err := t.Bot.Send(m); err != nil {
		return fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return nil
}
