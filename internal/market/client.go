package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"price-alert-bot/internal/types"
)

// Options configures the shared HTTP client used by every adapter.
type Options struct {
	// Timeout bounds each individual request.
	Timeout time.Duration
	// RequestsPerSecond paces requests per adapter.
	RequestsPerSecond float64
	UserAgent         string
	// BaseURLs overrides the public endpoint of a market.
	BaseURLs map[types.Market]string
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 6 * time.Second
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 10
	}
	if o.UserAgent == "" {
		o.UserAgent = "price-alert-bot/1.0"
	}
}

var defaultBaseURLs = map[types.Market]string{
	types.Binance:      "https://api.binance.com",
	types.BinanceAlpha: "https://api1.binance.com",
	types.Bybit:        "https://api.bybit.com",
	types.MEXC:         "https://api.mexc.com",
	types.Bitget:       "https://api.bitget.com",
	types.KuCoin:       "https://api.kucoin.com",
	types.OKX:          "https://www.okx.com",
	types.Gate:         "https://api.gateio.ws",
}

func (o *Options) baseURL(m types.Market) string {
	if u, ok := o.BaseURLs[m]; ok {
		return strings.TrimRight(u, "/")
	}
	return defaultBaseURLs[m]
}

// NewDefaultSet builds adapters for every supported market.
func NewDefaultSet(opts *Options) *Set {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	client := &http.Client{Timeout: opts.Timeout}
	conn := func(m types.Market) *conn {
		return &conn{
			market:    m,
			baseURL:   opts.baseURL(m),
			client:    client,
			limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
			userAgent: opts.UserAgent,
		}
	}

	return NewSet(
		&tickerPrice{conn(types.Binance)},
		&tickerPrice{conn(types.BinanceAlpha)},
		&bybit{conn(types.Bybit)},
		&tickerPrice{conn(types.MEXC)},
		&bitget{conn(types.Bitget)},
		&kucoin{conn(types.KuCoin)},
		&okx{conn(types.OKX)},
		&gate{conn(types.Gate)},
	)
}

// conn is the per-market transport shared by the adapter implementations.
type conn struct {
	market    types.Market
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func (c *conn) Market() types.Market {
	return c.market
}

func (c *conn) getJSON(ctx context.Context, code, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return providerError(c.market, code, ReasonHTTP, err)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return providerError(c.market, code, ReasonHTTP, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return providerError(c.market, code, ReasonHTTP, err)
	}
	defer resp.Body.Close()

	log.WithFields(log.Fields{
		"market":   c.market,
		"code":     code,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("ticker request complete")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return providerError(c.market, code, ReasonHTTP,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return providerError(c.market, code, ReasonMalformed, err)
	}
	return nil
}

// parsePrice rejects absent, non-numeric and non-positive prices.
func (c *conn) parsePrice(code, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, providerError(c.market, code, ReasonBadPrice, fmt.Errorf("price field absent"))
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, providerError(c.market, code, ReasonBadPrice, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, providerError(c.market, code, ReasonBadPrice, fmt.Errorf("non-positive price %s", raw))
	}
	return price, nil
}
