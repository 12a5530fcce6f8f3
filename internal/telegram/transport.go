package telegram

import (
	"context"
	"net"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"price-alert-bot/internal/notify"
	"price-alert-bot/lib/translation"
)

// Transport sends alert notifications as plain text.
type Transport struct {
	bot *Bot
}

func NewTransport(b *Bot) *Transport {
	return &Transport{bot: b}
}

// AckKeyboard is the inline control attached to the first message of a
// burst.
func AckKeyboard(control *notify.AckControl) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(translation.Translate("✅ Ack"), control.AckData()),
			tgbotapi.NewInlineKeyboardButtonData(translation.Translate("🔁 Unack"), control.UnackData()),
		),
	)
}

func (t *Transport) Send(ctx context.Context, chatID int64, text string, control *notify.AckControl) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if control != nil {
		msg.ReplyMarkup = AckKeyboard(control)
	}
	_, err := t.bot.Bot.Send(msg)
	return classify(err)
}

// classify maps Telegram failures onto notify.TransportError so the notifier
// can tell rate limits and network trouble from permanent rejections.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.RetryAfter > 0:
			return &notify.TransportError{Err: err, RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return &notify.TransportError{Err: err, Temporary: true}
		}
		return &notify.TransportError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &notify.TransportError{Err: err, Temporary: true}
	}
	return &notify.TransportError{Err: err}
}
