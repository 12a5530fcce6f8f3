package market

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/symbol"
)

type gate struct {
	*conn
}

type gateTicker struct {
	CurrencyPair string `json:"currency_pair"`
	Last         string `json:"last"`
}

func (a *gate) FetchLastPrice(ctx context.Context, code string) (decimal.Decimal, error) {
	code = symbol.Restyle(code, a.market)

	var resp []gateTicker
	if err := a.getJSON(ctx, code, "/api/v4/spot/tickers", url.Values{"currency_pair": {code}}, &resp); err != nil {
		return decimal.Zero, err
	}
	if len(resp) == 0 {
		return decimal.Zero, providerError(a.market, code, ReasonNotFound, nil)
	}
	return a.parsePrice(code, resp[0].Last)
}
