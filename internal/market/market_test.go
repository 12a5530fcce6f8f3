package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alert-bot/internal/types"
)

func newTestSet(t *testing.T, handler http.Handler) *Set {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	urls := make(map[types.Market]string)
	for _, m := range types.Priority {
		urls[m] = srv.URL
	}
	return NewDefaultSet(&Options{
		Timeout:           time.Second,
		RequestsPerSecond: 1000,
		BaseURLs:          urls,
	})
}

func fetch(t *testing.T, s *Set, m types.Market, code string) (string, error) {
	t.Helper()
	a, ok := s.Get(m)
	require.True(t, ok, "adapter for %s", m)
	price, err := a.FetchLastPrice(context.Background(), code)
	if err != nil {
		return "", err
	}
	return price.String(), nil
}

func TestAdaptersParseWireFormats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"70123.45000000"}`))
	})
	mux.HandleFunc("/v5/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "spot", r.URL.Query().Get("category"))
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"BTCUSDT","lastPrice":"70100.1"}]}}`))
	})
	mux.HandleFunc("/api/v1/market/orderbook/level1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC-USDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"code":"200000","data":{"price":"70099.9"}}`))
	})
	mux.HandleFunc("/api/v5/market/ticker", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC-USDT", r.URL.Query().Get("instId"))
		w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"BTC-USDT","last":"70098"}]}`))
	})
	mux.HandleFunc("/api/v4/spot/tickers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC_USDT", r.URL.Query().Get("currency_pair"))
		w.Write([]byte(`[{"currency_pair":"BTC_USDT","last":"70097.5"}]`))
	})
	mux.HandleFunc("/api/v2/spot/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"00000","msg":"success","data":[{"symbol":"BTCUSDT","lastPr":"70096"}]}`))
	})

	s := newTestSet(t, mux)
	want := map[types.Market]string{
		types.Binance:      "70123.45",
		types.BinanceAlpha: "70123.45",
		types.MEXC:         "70123.45",
		types.Bybit:        "70100.1",
		types.KuCoin:       "70099.9",
		types.OKX:          "70098",
		types.Gate:         "70097.5",
		types.Bitget:       "70096",
	}
	for m, price := range want {
		got, err := fetch(t, s, m, "btc-usdt")
		require.NoError(t, err, "market %s", m)
		assert.Equal(t, price, got, "market %s", m)
	}
}

func TestBitgetFallsBackToV1(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/spot/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"40034","msg":"Parameter does not exist"}`, http.StatusBadRequest)
	})
	mux.HandleFunc("/api/spot/v1/market/ticker", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PEPEUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"code":"00000","data":{"symbol":"PEPEUSDT_SPBL","close":"0.0000121"}}`))
	})

	got, err := fetch(t, newTestSet(t, mux), types.Bitget, "pepe-usdt")
	require.NoError(t, err)
	assert.Equal(t, "0.0000121", got)
}

func TestAdaptersKeepUnlistedQuotes(t *testing.T) {
	var mu sync.Mutex
	var requested []string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")
		mu.Lock()
		requested = append(requested, sym)
		mu.Unlock()
		if sym != "BTCEUR" {
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"symbol":"BTCEUR","price":"64000.5"}`))
	})
	mux.HandleFunc("/api/v5/market/ticker", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC-EUR", r.URL.Query().Get("instId"))
		w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"BTC-EUR","last":"64001"}]}`))
	})
	s := newTestSet(t, mux)

	for _, code := range []string{"BTC-EUR", "BTCEUR", "btc/eur"} {
		got, err := fetch(t, s, types.Binance, code)
		require.NoError(t, err, code)
		assert.Equal(t, "64000.5", got)
	}
	got, err := fetch(t, s, types.OKX, "BTCEUR")
	require.NoError(t, err)
	assert.Equal(t, "64001", got)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"BTCEUR", "BTCEUR", "BTCEUR"}, requested)
}

func TestAdapterFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "ZEROUSDT":
			w.Write([]byte(`{"symbol":"ZEROUSDT","price":"0.00000000"}`))
		case "JUNKUSDT":
			w.Write([]byte(`{"symbol":"JUNKUSDT","price":"n/a"}`))
		case "TEXTUSDT":
			w.Write([]byte(`<html>maintenance</html>`))
		default:
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/v5/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10001,"retMsg":"Not supported symbols","result":{}}`))
	})
	mux.HandleFunc("/api/v1/market/orderbook/level1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"200000","data":null}`))
	})
	mux.HandleFunc("/api/v4/spot/tickers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	s := newTestSet(t, mux)

	tests := []struct {
		market types.Market
		code   string
		reason string
	}{
		{types.Binance, "ZEROUSDT", ReasonBadPrice},
		{types.Binance, "JUNKUSDT", ReasonBadPrice},
		{types.Binance, "TEXTUSDT", ReasonMalformed},
		{types.Binance, "NOPEUSDT", ReasonHTTP},
		{types.Bybit, "NOPEUSDT", ReasonNotFound},
		{types.KuCoin, "NOPE-USDT", ReasonNotFound},
		{types.Gate, "NOPE_USDT", ReasonNotFound},
	}
	for _, tt := range tests {
		_, err := fetch(t, s, tt.market, tt.code)
		var perr *ProviderError
		require.True(t, errors.As(err, &perr), "%s %s: %v", tt.market, tt.code, err)
		assert.Equal(t, tt.market, perr.Market)
		assert.Equal(t, tt.reason, perr.Reason, "%s %s", tt.market, tt.code)
	}
}

func TestAdapterTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/market/ticker", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"code":"0","data":[{"last":"1"}]}`))
	})
	s := newTestSet(t, mux)
	a, _ := s.Get(types.OKX)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.FetchLastPrice(ctx, "BTC-USDT")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, ReasonHTTP, perr.Reason)
}

func TestCanonical(t *testing.T) {
	tests := map[string]types.Market{
		"Binance":       types.Binance,
		"binace":        types.Binance,
		"Binance Alpha": types.BinanceAlpha,
		"gate.io":       types.Gate,
		"OKEx":          types.OKX,
		"bg":            types.Bitget,
		"KU":            types.KuCoin,
	}
	for name, want := range tests {
		got, ok := Canonical(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	_, ok := Canonical("coinbase")
	assert.False(t, ok)
}

func TestSetOrder(t *testing.T) {
	s := NewDefaultSet(nil)
	assert.Equal(t, types.Priority, s.Markets())
}
