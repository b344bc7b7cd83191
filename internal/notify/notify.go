// Package notify delivers pipeline warnings and cycle summaries to an
// operator channel. Delivery is best-effort: a failed send is logged
// and never affects the pipeline.
package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the interface for delivering operator messages.
type Sender interface {
	Send(text string)
}

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends messages to a fixed Telegram chat.
type Telegram struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
}

// NewTelegram creates a Telegram sender for the given bot token and chat.
func NewTelegram(token string, chatID int64, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

// Send delivers text to the configured chat, logging on failure.
func (t *Telegram) Send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("send notification", "error", err)
	}
}

// Nop is a Sender that discards every message, used when no channel is
// configured.
type Nop struct{}

// Send discards the message.
func (Nop) Send(string) {}
