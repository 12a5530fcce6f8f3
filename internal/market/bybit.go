package market

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/symbol"
)

type bybit struct {
	*conn
}

type bybitResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	} `json:"result"`
}

func (a *bybit) FetchLastPrice(ctx context.Context, code string) (decimal.Decimal, error) {
	code = symbol.Restyle(code, a.market)

	var resp bybitResponse
	params := url.Values{"category": {"spot"}, "symbol": {code}}
	if err := a.getJSON(ctx, code, "/v5/market/tickers", params, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.RetCode != 0 || len(resp.Result.List) == 0 {
		return decimal.Zero, providerError(a.market, code, ReasonNotFound, fmt.Errorf("retCode %d: %s", resp.RetCode, resp.RetMsg))
	}
	return a.parsePrice(code, resp.Result.List[0].LastPrice)
}
