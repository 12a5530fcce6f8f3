// Package resolver turns a free-form asset query into a live instrument on
// one of the supported markets.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"price-alert-bot/internal/market"
	"price-alert-bot/internal/symbol"
	"price-alert-bot/internal/types"
)

var (
	ErrEmptyQuery        = errors.New("missing asset")
	ErrUnsupportedMarket = errors.New("unsupported market")
	ErrNotFound          = errors.New("no market could serve this query")
)

// Examples lists the accepted query syntaxes shown to users on failure.
var Examples = []string{
	"BTC",
	"binance:BTC",
	"binance alpha:BTC",
	"bybit ETH",
	"kucoin:BTC-USDT",
	"okx:BTC-USDT",
	"gate:BTC_USDT",
	"bitget:PEPE",
}

// ResolutionError reports that no market could serve a query.
type ResolutionError struct {
	Query string
	// Market is set when the query named one.
	Market types.Market
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolve %q: %v", e.Query, e.Err)
	if errors.Is(e.Err, ErrUnsupportedMarket) {
		msg += " (supported: " + market.Supported() + ")"
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Pricer returns live, cache-aware last prices.
type Pricer interface {
	Get(ctx context.Context, m types.Market, code string) (decimal.Decimal, error)
	Markets() []types.Market
}

// Resolution is a validated instrument with the price that validated it.
type Resolution struct {
	Market  types.Market
	Code    string
	Display string
	Price   decimal.Decimal
}

// Quote is one market's price in a cross-market comparison.
type Quote = Resolution

type Resolver struct {
	prices      Pricer
	concurrency int
}

// New creates a resolver. concurrency bounds parallel fetches in Find.
func New(prices Pricer, concurrency int) *Resolver {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Resolver{prices: prices, concurrency: concurrency}
}

// Query is a parsed asset query.
type Query struct {
	Market    types.Market
	HasMarket bool
	Body      string
}

// ParseQuery splits an optional market prefix from the asset body. The prefix
// is delimited by a colon, or by whitespace when the leading tokens name a
// market ("binance alpha BTC").
func ParseQuery(raw string) (Query, error) {
	x := strings.TrimSpace(raw)
	if x == "" {
		return Query{}, &ResolutionError{Query: raw, Err: ErrEmptyQuery}
	}

	if i := strings.Index(x, ":"); i >= 0 {
		prefix, body := strings.TrimSpace(x[:i]), strings.TrimSpace(x[i+1:])
		q := Query{Body: body}
		if prefix != "" {
			m, ok := market.Canonical(prefix)
			if !ok {
				return Query{}, &ResolutionError{Query: raw, Err: errors.Wrapf(ErrUnsupportedMarket, "%q", prefix)}
			}
			q.Market, q.HasMarket = m, true
		}
		if q.Body == "" {
			return Query{}, &ResolutionError{Query: raw, Market: q.Market, Err: ErrEmptyQuery}
		}
		return q, nil
	}

	tokens := strings.Fields(x)
	if len(tokens) == 1 {
		return Query{Body: tokens[0]}, nil
	}
	for n := len(tokens) - 1; n >= 1; n-- {
		if m, ok := market.Canonical(strings.Join(tokens[:n], " ")); ok {
			return Query{Market: m, HasMarket: true, Body: strings.Join(tokens[n:], " ")}, nil
		}
	}
	return Query{}, &ResolutionError{Query: raw, Err: errors.Wrapf(ErrUnsupportedMarket, "%q", tokens[0])}
}

// Resolve returns the first live instrument for query. With a market prefix
// the quote ladder is walked on that market only. Without one, each rung of
// the ladder is tried on every market and the first market in priority order
// with a live price wins.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	q, err := ParseQuery(raw)
	if err != nil {
		return Resolution{}, err
	}

	if q.HasMarket {
		var lastErr error
		for _, code := range symbol.Candidates(q.Body, q.Market) {
			res, err := r.probe(ctx, q.Market, code)
			if err == nil {
				return res, nil
			}
			lastErr = err
		}
		return Resolution{}, &ResolutionError{Query: raw, Market: q.Market, Err: notFound(lastErr)}
	}

	markets := r.prices.Markets()
	ladders := make([][]string, len(markets))
	rungs := 0
	for i, m := range markets {
		ladders[i] = symbol.Candidates(q.Body, m)
		if len(ladders[i]) > rungs {
			rungs = len(ladders[i])
		}
	}

	var lastErr error
	for rung := 0; rung < rungs; rung++ {
		results := make([]*Resolution, len(markets))
		errs := make([]error, len(markets))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for i, m := range markets {
			if rung >= len(ladders[i]) {
				continue
			}
			i, m, code := i, m, ladders[i][rung]
			g.Go(func() error {
				res, err := r.probe(gctx, m, code)
				if err != nil {
					errs[i] = err
					return nil
				}
				results[i] = &res
				return nil
			})
		}
		g.Wait()

		for i := range markets {
			if results[i] != nil {
				return *results[i], nil
			}
			if errs[i] != nil {
				lastErr = errs[i]
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Resolution{}, &ResolutionError{Query: raw, Err: notFound(lastErr)}
}

func notFound(cause error) error {
	if cause == nil {
		return ErrNotFound
	}
	return errors.Wrap(ErrNotFound, cause.Error())
}

func (r *Resolver) probe(ctx context.Context, m types.Market, code string) (Resolution, error) {
	price, err := r.prices.Get(ctx, m, code)
	if err != nil {
		log.WithFields(log.Fields{"market": m, "code": code}).Debugf("candidate rejected: %v", err)
		return Resolution{}, err
	}
	return Resolution{Market: m, Code: code, Display: symbol.Label(m, code), Price: price}, nil
}

// Find fetches every market's price for the asset concurrently and returns
// the live ones sorted by price ascending. A market prefix is ignored.
func (r *Resolver) Find(ctx context.Context, raw string) ([]Quote, error) {
	q, err := ParseQuery(raw)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		market types.Market
		code   string
	}
	var candidates []candidate
	seen := make(map[candidate]bool)
	for _, m := range r.prices.Markets() {
		for _, code := range symbol.Candidates(q.Body, m) {
			c := candidate{m, code}
			if !seen[c] {
				seen[c] = true
				candidates = append(candidates, c)
			}
		}
	}

	results := make([]*Quote, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			if res, err := r.probe(gctx, c.market, c.code); err == nil {
				results[i] = &res
			}
			return nil
		})
	}
	g.Wait()

	quotes := make([]Quote, 0, len(results))
	for _, res := range results {
		if res != nil {
			quotes = append(quotes, *res)
		}
	}
	if len(quotes) == 0 {
		return nil, &ResolutionError{Query: raw, Err: ErrNotFound}
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Price.LessThan(quotes[j].Price)
	})
	return quotes, nil
}
