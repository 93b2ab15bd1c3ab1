package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// TelegramSender delivers messages to a single chat over the Bot API. The
// bot is send-only: no poller runs and Start is never called.
type TelegramSender struct {
	bot  *tele.Bot
	chat *tele.Chat
}

// NewTelegramSender validates the token against the Bot API up front, so a
// bad token fails at startup instead of mid-race.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSender{bot: b, chat: &tele.Chat{ID: chatID}}, nil
}

func (t *TelegramSender) Send(ctx context.Context, text string) error {
	// telebot sends have no context plumbing. Honor cancellation between
	// calls; the bot's own HTTP client bounds the call itself.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, err := t.bot.Send(t.chat, text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
