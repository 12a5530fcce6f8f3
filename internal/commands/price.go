package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"price-alert-bot/internal/resolver"
	"price-alert-bot/internal/symbol"
	"price-alert-bot/lib/helpers"
)

// Price replies with the live price of the first market serving argument.
func (c *Commands) Price(ctx context.Context, argument string) string {
	log.Debugf("processing command /price with argument: %s", argument)

	res, err := c.finder.Resolve(ctx, argument)
	if err != nil {
		return errorText(err)
	}
	return fmt.Sprintf("%s: %s", helpers.Bold(res.Display), helpers.Code(helpers.FormatPrice(res.Price)))
}

// Find compares the asset's price on every market, cheapest first.
func (c *Commands) Find(ctx context.Context, argument string) string {
	log.Debugf("processing command /find with argument: %s", argument)

	quotes, err := c.finder.Find(ctx, argument)
	if err != nil {
		return errorText(err)
	}

	var b strings.Builder
	b.WriteString(tr("%s on %d markets:", helpers.Bold(baseAsset(argument)), len(quotes)))
	b.WriteString("\n\n")
	for _, q := range quotes {
		fmt.Fprintf(&b, "▫️ %s %s\n", helpers.EscapeMarkdownV2(q.Display), helpers.Code(helpers.FormatPrice(q.Price)))
	}
	if len(quotes) > 1 {
		low, high := quotes[0].Price, quotes[len(quotes)-1].Price
		b.WriteString("\n")
		b.WriteString(tr("Spread: %s", helpers.Code(spread(low, high))))
	}

	if ref, ok := c.lookupReference(argument); ok {
		b.WriteString("\n")
		b.WriteString(ref)
	}
	return b.String()
}

// baseAsset strips any market prefix and quote from a query for display.
func baseAsset(argument string) string {
	q, err := resolver.ParseQuery(argument)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(argument))
	}
	base, _, _ := symbol.Split(q.Body)
	return base
}

// spread is the relative difference between the highest and lowest price.
func spread(low, high decimal.Decimal) string {
	if !low.IsPositive() {
		return "0%"
	}
	return high.Sub(low).Div(low).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func (c *Commands) lookupReference(argument string) (string, bool) {
	if c.reference == nil {
		return "", false
	}
	coin, err := c.reference.Lookup(baseAsset(argument))
	if err != nil {
		log.WithError(err).Debug("reference price unavailable")
		return "", false
	}
	link := fmt.Sprintf("[CoinPaprika](%s)", coin.URL())
	return tr("Reference: %s %s on %s 🌶",
		helpers.EscapeMarkdownV2(fmt.Sprintf("%s (%s)", coin.Name, coin.Symbol)),
		helpers.Code("$"+helpers.FormatPriceUS(coin.PriceUSD)),
		link,
	), true
}
