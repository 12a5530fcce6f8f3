package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"price-alert-bot/internal/alert"
	"price-alert-bot/internal/types"
	"price-alert-bot/lib/helpers"
	"price-alert-bot/lib/translation"
)

// Add parses "<asset> >=|<= <price>" and stores the rule for chatID.
func (c *Commands) Add(ctx context.Context, chatID int64, argument string) string {
	log.Debugf("processing command /add with argument: %s", argument)

	rule, err := alert.ParseRule(strings.Fields(argument))
	if err != nil {
		return errorText(err)
	}
	a, err := c.alerts.Add(ctx, chatID, rule)
	if err != nil {
		return errorText(err)
	}

	return tr("Alert #%d set: %s %s %s\nCurrent price: %s",
		a.ID,
		helpers.Bold(a.Display),
		helpers.EscapeMarkdownV2(string(a.Operator)),
		helpers.Code(helpers.FormatPrice(a.Threshold)),
		helpers.Code(helpers.FormatPrice(a.LastPrice)),
	)
}

// List shows the chat's rules in insertion order.
func (c *Commands) List(ctx context.Context, chatID int64) string {
	alerts, err := c.alerts.List(ctx, chatID)
	if err != nil {
		return errorText(err)
	}
	if len(alerts) == 0 {
		return tr("You have no alerts. Add one with %s", helpers.Code("/add BTC >= 70000"))
	}

	var b strings.Builder
	b.WriteString(tr("Your alerts:"))
	b.WriteString("\n\n")
	now := c.now()
	for _, a := range alerts {
		fmt.Fprintf(&b, "%s %s %s %s %s\n",
			helpers.Bold(fmt.Sprintf("#%d", a.ID)),
			helpers.EscapeMarkdownV2(a.Display),
			helpers.EscapeMarkdownV2(string(a.Operator)),
			helpers.Code(helpers.FormatPrice(a.Threshold)),
			helpers.EscapeMarkdownV2(stateOf(a)),
		)
		b.WriteString(tr("    last %s, fired %s, added %s",
			helpers.Code(helpers.FormatPrice(a.LastPrice)),
			helpers.EscapeMarkdownV2(helpers.FormatSince(a.LastFiredAt, now)),
			helpers.EscapeMarkdownV2(helpers.FormatDate(a.CreatedAt)),
		))
		b.WriteString("\n")
	}
	return b.String()
}

func stateOf(a types.Alert) string {
	switch {
	case a.Acked:
		return translation.Translate("(acknowledged)")
	case a.Fired:
		return translation.Translate("(firing)")
	default:
		return translation.Translate("(armed)")
	}
}

// Remove deletes one rule by id.
func (c *Commands) Remove(ctx context.Context, chatID int64, argument string) string {
	id, err := alert.ParseID(strings.Fields(argument))
	if err != nil {
		return errorText(err)
	}
	if err := c.alerts.Remove(ctx, chatID, id); err != nil {
		return errorText(err)
	}
	return tr("Alert #%d removed.", id)
}

// RemoveAll deletes every rule of the chat.
func (c *Commands) RemoveAll(ctx context.Context, chatID int64) string {
	n, err := c.alerts.RemoveAll(ctx, chatID)
	if err != nil {
		return errorText(err)
	}
	if n == 0 {
		return tr("You have no alerts.")
	}
	return tr("Removed %d alerts.", n)
}

// Ack silences a rule by id.
func (c *Commands) Ack(ctx context.Context, chatID int64, argument string) string {
	id, err := alert.ParseID(strings.Fields(argument))
	if err != nil {
		return errorText(err)
	}
	text, _ := c.AckByID(ctx, chatID, id)
	return text
}

// AckByID silences a rule. It serves the /ack command and the ack button;
// ok reports whether the rule was found and updated.
func (c *Commands) AckByID(ctx context.Context, chatID int64, id int) (text string, ok bool) {
	a, err := c.alerts.Acknowledge(ctx, chatID, id)
	if err != nil {
		return errorText(err), false
	}
	return tr("Alert #%d acknowledged: %s stays silent until the price retreats and crosses again.",
		a.ID, helpers.Bold(a.Display)), true
}

// Unack re-arms a rule by id.
func (c *Commands) Unack(ctx context.Context, chatID int64, argument string) string {
	id, err := alert.ParseID(strings.Fields(argument))
	if err != nil {
		return errorText(err)
	}
	text, _ := c.UnackByID(ctx, chatID, id)
	return text
}

// UnackByID re-arms a rule. It serves the /unack command and the unack button.
func (c *Commands) UnackByID(ctx context.Context, chatID int64, id int) (text string, ok bool) {
	a, err := c.alerts.Unacknowledge(ctx, chatID, id)
	if err != nil {
		return errorText(err), false
	}
	return tr("Alert #%d re-armed: %s", a.ID, helpers.Bold(a.Display)), true
}

// FormatAlert is the plain text body of a firing notification.
func FormatAlert(a types.Alert, price decimal.Decimal) string {
	return translation.Translate("🚨 Alert #%d: %s %s %s\nPrice now: %s",
		a.ID, a.Display, a.Operator, helpers.FormatPrice(a.Threshold), helpers.FormatPrice(price))
}
