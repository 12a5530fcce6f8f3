package market

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/symbol"
)

// tickerPrice serves the Binance style /api/v3/ticker/price endpoint shared
// by Binance, Binance Alpha and MEXC.
type tickerPrice struct {
	*conn
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (a *tickerPrice) FetchLastPrice(ctx context.Context, code string) (decimal.Decimal, error) {
	code = symbol.Restyle(code, a.market)

	var resp tickerPriceResponse
	if err := a.getJSON(ctx, code, "/api/v3/ticker/price", url.Values{"symbol": {code}}, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Symbol != "" && resp.Symbol != code {
		return decimal.Zero, providerError(a.market, code, ReasonNotFound, nil)
	}
	return a.parsePrice(code, resp.Price)
}
