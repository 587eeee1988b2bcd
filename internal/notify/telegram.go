package notify

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rxtech-lab/indicator-bot/pkg/errors"
)

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	// Token is the bot token. It can also come from TELEGRAM_BOT_TOKEN.
	Token  string `yaml:"token,omitempty" json:"token,omitempty" jsonschema:"title=Bot Token,description=Telegram bot token"`
	ChatID int64  `yaml:"chatID" json:"chatID" jsonschema:"title=Chat ID,description=Chat that receives alerts" validate:"required"`
}

type telegramSender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram sends messages through a Telegram bot.
type Telegram struct {
	bot    telegramSender
	chatID int64
}

// NewTelegram authenticates the bot and returns a notifier for chatID.
func NewTelegram(config TelegramConfig) (*Telegram, error) {
	if config.Token == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "telegram token is required")
	}

	if config.ChatID == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "telegram chat id is required")
	}

	bot, err := tgbot.NewBotAPI(config.Token)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotificationFailed, "failed to create telegram bot", err)
	}

	return newTelegramWithSender(bot, config.ChatID), nil
}

func newTelegramWithSender(bot telegramSender, chatID int64) *Telegram {
	return &Telegram{bot: bot, chatID: chatID}
}

func (t *Telegram) Notify(ctx context.Context, message string) error {
	// the bot API has no context support; honour cancellation before sending
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "telegram notification cancelled", err)
	}

	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, message)); err != nil {
		return errors.Wrap(errors.ErrCodeNotificationFailed, "failed to send telegram message", err)
	}

	return nil
}

var _ Notifier = (*Telegram)(nil)
