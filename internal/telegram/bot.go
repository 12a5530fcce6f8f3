package telegram

import (
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"price-alert-bot/internal/commands"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	if c.APIEndpoint == "" {
		c.APIEndpoint = tgbotapi.APIEndpoint
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: time.Duration(c.UpdatesTimeout+30) * time.Second}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(c.Token, c.APIEndpoint, c.HTTPClient)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		Bot:    bot,
		Config: c,
	}, nil
}

// GetUpdatesChannel gets new updates updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	updatesConfig.AllowedUpdates = []string{"message", "callback_query"}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// StopUpdates ends long polling and closes the updates channel.
func (b *Bot) StopUpdates() {
	b.Bot.StopReceivingUpdates()
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message: %v", m)
}

// SendPhoto uploads a PNG with a MarkdownV2 caption.
func (b *Bot) SendPhoto(chatID int64, replyTo int, png []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "chart.png",
		Bytes: png,
	})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdownV2
	photo.ReplyToMessageID = replyTo
	_, err := b.Bot.Send(photo)
	return errors.Wrapf(err, "could not send photo to %d", chatID)
}

// SetCommands registers the command menu shown by Telegram clients.
func (b *Bot) SetCommands(menu []commands.Descriptor) error {
	cmds := make([]tgbotapi.BotCommand, len(menu))
	for i, d := range menu {
		cmds[i] = tgbotapi.BotCommand{Command: d.Command, Description: d.Description}
	}
	_, err := b.Bot.Request(tgbotapi.NewSetMyCommands(cmds...))
	return errors.Wrap(err, "could not set bot commands")
}

// answerCallback acknowledges a button press with a short toast.
func (b *Bot) answerCallback(id, text string) error {
	_, err := b.Bot.Request(tgbotapi.NewCallback(id, text))
	return errors.Wrap(err, "could not answer callback")
}

// editMessage replaces the plain text of a message, keeping markup when
// given.
func (b *Bot) editMessage(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = markup
	_, err := b.Bot.Send(edit)
	return errors.Wrap(err, "could not edit message")
}
