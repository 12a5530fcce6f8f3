package market

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/symbol"
)

type bitget struct {
	*conn
}

type bitgetResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type bitgetTicker struct {
	Symbol string `json:"symbol"`
	InstID string `json:"instId"`
	LastPr string `json:"lastPr"`
	Close  string `json:"close"`
}

func (t *bitgetTicker) matches(code string) bool {
	s := t.Symbol
	if s == "" {
		s = t.InstID
	}
	s = strings.ToUpper(s)
	// v1 symbols carry a product suffix, e.g. BTCUSDT_SPBL.
	return s == code || strings.HasPrefix(s, code+"_")
}

func (t *bitgetTicker) price() string {
	if t.LastPr != "" {
		return t.LastPr
	}
	return t.Close
}

var bitgetEndpoints = []string{
	"/api/v2/spot/market/tickers",
	"/api/spot/v1/market/ticker",
}

// FetchLastPrice tries the v2 tickers endpoint first and falls back to the
// legacy v1 ticker. The data field is a list on v2 and an object on v1.
func (a *bitget) FetchLastPrice(ctx context.Context, code string) (decimal.Decimal, error) {
	code = symbol.Restyle(code, a.market)

	var lastErr error
	for _, path := range bitgetEndpoints {
		var resp bitgetResponse
		if err := a.getJSON(ctx, code, path, url.Values{"symbol": {code}}, &resp); err != nil {
			lastErr = err
			continue
		}

		var tickers []bitgetTicker
		if err := json.Unmarshal(resp.Data, &tickers); err != nil {
			var one bitgetTicker
			if err := json.Unmarshal(resp.Data, &one); err != nil {
				lastErr = providerError(a.market, code, ReasonMalformed, err)
				continue
			}
			tickers = []bitgetTicker{one}
		}
		for i := range tickers {
			if tickers[i].matches(code) {
				return a.parsePrice(code, tickers[i].price())
			}
		}
		lastErr = providerError(a.market, code, ReasonNotFound, nil)
	}
	return decimal.Zero, lastErr
}
