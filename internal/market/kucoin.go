package market

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/symbol"
)

type kucoin struct {
	*conn
}

type kucoinResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Price string `json:"price"`
	} `json:"data"`
}

func (a *kucoin) FetchLastPrice(ctx context.Context, code string) (decimal.Decimal, error) {
	code = symbol.Restyle(code, a.market)

	var resp kucoinResponse
	if err := a.getJSON(ctx, code, "/api/v1/market/orderbook/level1", url.Values{"symbol": {code}}, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Code != "200000" || resp.Data == nil {
		return decimal.Zero, providerError(a.market, code, ReasonNotFound, fmt.Errorf("code %s", resp.Code))
	}
	return a.parsePrice(code, resp.Data.Price)
}
