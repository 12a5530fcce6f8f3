package market

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/symbol"
)

type okx struct {
	*conn
}

type okxResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
	} `json:"data"`
}

func (a *okx) FetchLastPrice(ctx context.Context, code string) (decimal.Decimal, error) {
	code = symbol.Restyle(code, a.market)

	var resp okxResponse
	if err := a.getJSON(ctx, code, "/api/v5/market/ticker", url.Values{"instId": {code}}, &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Code != "0" || len(resp.Data) == 0 {
		return decimal.Zero, providerError(a.market, code, ReasonNotFound, fmt.Errorf("code %s: %s", resp.Code, resp.Msg))
	}
	return a.parsePrice(code, resp.Data[0].Last)
}
