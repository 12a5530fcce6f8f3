// Package commands builds the replies of the bot's chat commands. Replies are
// MarkdownV2 unless stated otherwise.
package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"price-alert-bot/internal/alert"
	"price-alert-bot/internal/market"
	"price-alert-bot/internal/resolver"
	"price-alert-bot/internal/types"
	"price-alert-bot/lib/helpers"
	"price-alert-bot/lib/translation"
)

// Alerts manages the rules of a chat.
type Alerts interface {
	Add(ctx context.Context, chatID int64, rule alert.Rule) (types.Alert, error)
	List(ctx context.Context, chatID int64) ([]types.Alert, error)
	Remove(ctx context.Context, chatID int64, id int) error
	RemoveAll(ctx context.Context, chatID int64) (int, error)
	Acknowledge(ctx context.Context, chatID int64, id int) (types.Alert, error)
	Unacknowledge(ctx context.Context, chatID int64, id int) (types.Alert, error)
}

// Finder resolves asset queries against live markets.
type Finder interface {
	Resolve(ctx context.Context, query string) (resolver.Resolution, error)
	Find(ctx context.Context, query string) ([]resolver.Quote, error)
}

// Reply is either a text message or a photo with a caption.
type Reply struct {
	Text    string
	Photo   []byte
	Caption string
}

type Commands struct {
	alerts    Alerts
	finder    Finder
	reference Reference
	charts    *chartCache
	now       func() time.Time
}

// New creates the command set. reference may be nil.
func New(alerts Alerts, finder Finder, reference Reference) *Commands {
	return &Commands{
		alerts:    alerts,
		finder:    finder,
		reference: reference,
		charts:    newChartCache(time.Now),
		now:       time.Now,
	}
}

// tr translates format, escapes its literal text and substitutes args, which
// must already be valid MarkdownV2. Formats only use %s and %d verbs.
func tr(format string, args ...interface{}) string {
	return fmt.Sprintf(helpers.EscapeMarkdownV2(translation.Translate(format)), args...)
}

func examples() string {
	quoted := make([]string, len(resolver.Examples))
	for i, e := range resolver.Examples {
		quoted[i] = helpers.Code(e)
	}
	return strings.Join(quoted, ", ")
}

// errorText turns a command failure into a user reply. Unexpected errors are
// logged and hidden behind a generic message.
func errorText(err error) string {
	var verr *alert.ValidationError
	switch {
	case errors.Is(err, resolver.ErrEmptyQuery):
		return tr("Please name an asset. Examples: %s", examples())
	case errors.Is(err, resolver.ErrUnsupportedMarket):
		return tr("Unsupported market. Supported markets: %s", helpers.EscapeMarkdownV2(market.Supported()))
	case errors.Is(err, resolver.ErrNotFound):
		var rerr *resolver.ResolutionError
		query := ""
		if errors.As(err, &rerr) {
			query = rerr.Query
		}
		return tr("No market has a live price for %s. Examples: %s", helpers.Code(query), examples())
	case errors.Is(err, alert.ErrAlertNotFound):
		return tr("Alert not found. Use /list to see your alerts.")
	case errors.Is(err, alert.ErrBadID):
		return tr("Please give the alert id, e.g. %s", helpers.Code("/remove 3"))
	case errors.Is(err, alert.ErrSyntax), errors.Is(err, alert.ErrBadOperator), errors.Is(err, alert.ErrBadThreshold):
		msg := tr("Usage: %s", helpers.Code("/add <asset> >=|<= <price>"))
		if errors.As(err, &verr) {
			msg = helpers.EscapeMarkdownV2(verr.Error()) + "\n" + msg
		}
		return msg
	case errors.Is(err, context.DeadlineExceeded):
		return tr("The markets did not answer in time, please try again.")
	}

	log.WithError(err).Error("command failed")
	return tr("Something went wrong, please try again later.")
}
