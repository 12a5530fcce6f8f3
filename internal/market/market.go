// Package market implements one last-price adapter per supported exchange.
package market

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/types"
)

// Adapter fetches the last traded price of one instrument from one exchange.
// Every call is a live request.
type Adapter interface {
	Market() types.Market
	FetchLastPrice(ctx context.Context, code string) (decimal.Decimal, error)
}

const (
	ReasonHTTP      = "http request failed"
	ReasonMalformed = "malformed response"
	ReasonNotFound  = "instrument not found"
	ReasonBadPrice  = "invalid price"
)

// ProviderError reports a failed fetch on one market.
type ProviderError struct {
	Market types.Market
	Code   string
	Reason string
	Err    error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Market.DisplayName(), e.Code, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func providerError(m types.Market, code, reason string, err error) *ProviderError {
	return &ProviderError{Market: m, Code: code, Reason: reason, Err: err}
}

// Set is the closed collection of adapters, iterated in priority order.
type Set struct {
	adapters map[types.Market]Adapter
	order    []types.Market
}

// NewSet registers adapters. Markets listed in types.Priority keep that
// order; any other market follows in registration order.
func NewSet(adapters ...Adapter) *Set {
	s := &Set{adapters: make(map[types.Market]Adapter, len(adapters))}
	for _, a := range adapters {
		s.adapters[a.Market()] = a
	}
	for _, m := range types.Priority {
		if _, ok := s.adapters[m]; ok {
			s.order = append(s.order, m)
		}
	}
	for _, a := range adapters {
		if !contains(s.order, a.Market()) {
			s.order = append(s.order, a.Market())
		}
	}
	return s
}

func contains(ms []types.Market, m types.Market) bool {
	for _, v := range ms {
		if v == m {
			return true
		}
	}
	return false
}

// Get returns the adapter for m.
func (s *Set) Get(m types.Market) (Adapter, bool) {
	a, ok := s.adapters[m]
	return a, ok
}

// Markets lists registered markets in priority order.
func (s *Set) Markets() []types.Market {
	return append([]types.Market(nil), s.order...)
}

var aliases = map[types.Market][]string{
	types.Binance:      {"binance", "binace", "bnance", "binan", "binanace", "binnace", "bin"},
	types.Bybit:        {"bybit", "bybt", "byb", "bybitspot"},
	types.MEXC:         {"mexc", "mex", "mecx"},
	types.KuCoin:       {"kucoin", "kuc", "ku"},
	types.OKX:          {"okx", "okex", "ok"},
	types.Gate:         {"gate", "gateio", "gat"},
	types.Bitget:       {"bitget", "bitgt", "biget", "bg"},
	types.BinanceAlpha: {"binancealpha", "alpha", "bnalpha", "binancea"},
}

var canonicals = func() map[string]types.Market {
	out := make(map[string]types.Market)
	for m, names := range aliases {
		for _, n := range names {
			out[n] = m
		}
	}
	return out
}()

var nonLetters = regexp.MustCompile(`[^a-z]`)

// Canonical maps a typed market name, tolerant of case, spacing, punctuation
// and common typos, onto a market.
func Canonical(name string) (types.Market, bool) {
	m, ok := canonicals[nonLetters.ReplaceAllString(strings.ToLower(name), "")]
	return m, ok
}

// Supported lists accepted market names for user-facing errors.
func Supported() string {
	names := make([]string, 0, len(types.Priority))
	for _, m := range types.Priority {
		names = append(names, strings.ToLower(m.DisplayName()))
	}
	return strings.Join(names, " | ")
}
