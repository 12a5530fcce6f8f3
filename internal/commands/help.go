package commands

import (
	"fmt"
	"strings"

	"price-alert-bot/internal/market"
	"price-alert-bot/lib/helpers"
	"price-alert-bot/lib/translation"
)

// Descriptor names a command in the bot menu.
type Descriptor struct {
	Command     string
	Description string
}

// Menu lists the commands registered with Telegram, in display order.
func Menu() []Descriptor {
	return []Descriptor{
		{"price", translation.Translate("Live price of an asset")},
		{"find", translation.Translate("Compare an asset across markets")},
		{"chart", translation.Translate("Chart an asset across markets")},
		{"add", translation.Translate("Add a price alert")},
		{"list", translation.Translate("List your alerts")},
		{"remove", translation.Translate("Remove an alert")},
		{"removeall", translation.Translate("Remove all alerts")},
		{"ack", translation.Translate("Silence a firing alert")},
		{"unack", translation.Translate("Re-arm an alert")},
		{"id", translation.Translate("Show this chat's id")},
		{"help", translation.Translate("How to use the bot")},
	}
}

func (c *Commands) Start() string {
	return tr("Hi! I watch crypto prices on %s and ping you when they cross your targets.",
		helpers.EscapeMarkdownV2(market.Supported())) + "\n\n" + c.Help()
}

func (c *Commands) Help() string {
	var b strings.Builder
	b.WriteString(helpers.Bold(translation.Translate("Commands")))
	b.WriteString("\n")
	for _, d := range Menu() {
		fmt.Fprintf(&b, "/%s %s\n", d.Command, helpers.EscapeMarkdownV2("- "+d.Description))
	}
	b.WriteString("\n")
	b.WriteString(tr("Examples: %s", examples()))
	b.WriteString("\n")
	b.WriteString(tr("Alert: %s", helpers.Code("/add binance:BTC >= 70000")))
	return b.String()
}

// ID shows the chat id, which operators put in ALLOWED_CHAT_IDS.
func (c *Commands) ID(chatID int64) string {
	return tr("Chat id: %s", helpers.Code(fmt.Sprintf("%d", chatID)))
}

func (c *Commands) Ping() string {
	return helpers.EscapeMarkdownV2("pong")
}

func (c *Commands) Unknown(command string) string {
	return tr("Unknown command %s. Try /help", helpers.Code("/"+command))
}

// NotAllowed is the reply to chats outside the allow-list.
func (c *Commands) NotAllowed(chatID int64) string {
	return tr("This chat (%s) is not allowed to use the bot.", helpers.Code(fmt.Sprintf("%d", chatID)))
}
