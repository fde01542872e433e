package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	OpenAppLabel   = "🚀 Open App"
	defaultTimeout = 10 * time.Second
)

var ErrInvalidChat = errors.New("user id is not a telegram chat id")

// Telegram sends messages through the Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram authenticates token against the public Bot API.
func NewTelegram(token string) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, &http.Client{Timeout: defaultTimeout})
}

// NewTelegramWithEndpoint is NewTelegram against a custom endpoint format,
// such as a local Bot API server.
func NewTelegramWithEndpoint(token, endpoint string, client *http.Client) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("bot token is required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", err)
	}
	return &Telegram{bot: bot}, nil
}

func (t *Telegram) Username() string {
	return t.bot.Self.UserName
}

func (t *Telegram) Notify(ctx context.Context, userID, message, actionURL string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidChat, userID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, message)
	if actionURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL(OpenAppLabel, actionURL),
			),
		)
	}
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}
