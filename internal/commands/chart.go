package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"price-alert-bot/internal/chart"
	"price-alert-bot/lib/helpers"
)

const chartTTL = time.Minute

// Chart renders the cross-market comparison of argument as a bar chart.
// When rendering fails the comparison is returned as text instead.
func (c *Commands) Chart(ctx context.Context, argument string) Reply {
	log.Debugf("processing command /chart with argument: %s", argument)

	key := strings.ToUpper(strings.Join(strings.Fields(argument), " "))
	if item, found := c.charts.get(key); found {
		log.Debugf("returning cached chart for %s", key)
		return Reply{Photo: item.ChartData, Caption: item.Caption}
	}

	quotes, err := c.finder.Find(ctx, argument)
	if err != nil {
		return Reply{Text: errorText(err)}
	}

	bars := make([]chart.Bar, len(quotes))
	for i, q := range quotes {
		bars[i] = chart.Bar{
			Label: fmt.Sprintf("%s\n%s", q.Market.DisplayName(), q.Code),
			Value: q.Price.InexactFloat64(),
		}
	}

	base := baseAsset(argument)
	chartData, err := chart.RenderBars(fmt.Sprintf("%s price by market", base), bars, helpers.FormatPriceUS)
	if err != nil {
		log.WithError(err).Error("rendering chart")
		return Reply{Text: c.Find(ctx, argument)}
	}

	caption := tr("%s on %d markets, cheapest %s at %s",
		helpers.Bold(base),
		len(quotes),
		helpers.EscapeMarkdownV2(quotes[0].Market.DisplayName()),
		helpers.Code(helpers.FormatPrice(quotes[0].Price)),
	)
	c.charts.set(key, chartData, caption, chartTTL)
	return Reply{Photo: chartData, Caption: caption}
}
