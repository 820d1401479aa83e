package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Notifier delivers a text message to a recipient. The recipient format
// is channel-specific; for Telegram it is a numeric chat id.
type Notifier interface {
	Push(ctx context.Context, recipient, text string) error
}

// TelegramNotifier sends messages through the Bot API. Used for operator
// alerts on confirmations, mismatches and cancellations.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	logger *zerolog.Logger
}

func NewTelegramNotifier(token string, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier initialized")
	return &TelegramNotifier{bot: bot, logger: logger}, nil
}

func (t *TelegramNotifier) Push(_ context.Context, recipient, text string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", recipient, err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// NopNotifier drops messages. Used when notifications are disabled.
type NopNotifier struct{}

func (NopNotifier) Push(context.Context, string, string) error { return nil }
