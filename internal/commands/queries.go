package commands

import (
	"net/http"
	"time"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Reference looks up an aggregate USD price for a base asset. It is shown
// next to exchange prices and never used to evaluate alerts.
type Reference interface {
	Lookup(symbol string) (*ReferenceCoin, error)
}

type ReferenceCoin struct {
	ID       string
	Name     string
	Symbol   string
	PriceUSD float64
}

// URL is the coin's page on coinpaprika.com.
func (c *ReferenceCoin) URL() string {
	return "https://coinpaprika.com/coin/" + c.ID
}

// Paprika is the CoinPaprika backed Reference.
type Paprika struct {
	client *coinpaprika.Client
}

// NewPaprika creates a CoinPaprika client. An empty apiProKey uses the free
// API. httpClient may be nil.
func NewPaprika(apiProKey string, httpClient *http.Client) *Paprika {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if apiProKey != "" {
		return &Paprika{client: coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiProKey))}
	}
	return &Paprika{client: coinpaprika.NewClient(httpClient)}
}

// Lookup finds the best match for symbol and returns its USD price.
func (p *Paprika) Lookup(symbol string) (*ReferenceCoin, error) {
	currency, err := p.searchCoin(symbol)
	if err != nil {
		return nil, errors.Wrap(err, "unable to find coin by query")
	}
	log.Debugf("best match for query '%s' is: %s", symbol, *currency.ID)

	ticker, err := p.client.Tickers.GetByID(*currency.ID, &coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return nil, errors.Wrapf(err, "ticker %s", *currency.ID)
	}
	quote, ok := ticker.Quotes["USD"]
	if !ok || quote.Price == nil || ticker.Name == nil || ticker.Symbol == nil {
		return nil, errors.Errorf("coin %s is not actively traded", *currency.ID)
	}

	return &ReferenceCoin{
		ID:       *currency.ID,
		Name:     *ticker.Name,
		Symbol:   *ticker.Symbol,
		PriceUSD: *quote.Price,
	}, nil
}

// searchCoin prefers a symbol match and falls back to a name search.
func (p *Paprika) searchCoin(query string) (*coinpaprika.Coin, error) {
	searchOpts := &coinpaprika.SearchOptions{
		Query:      query,
		Categories: "currencies",
		Modifier:   "symbol_search",
	}
	result, err := p.client.Search.Search(searchOpts)
	if err != nil || len(result.Currencies) == 0 {
		log.Debugf("no results for symbol search, trying name search for '%s'", query)
		searchOpts = &coinpaprika.SearchOptions{Query: query, Categories: "currencies"}
		result, err = p.client.Search.Search(searchOpts)
		if err != nil || len(result.Currencies) == 0 {
			return nil, errors.Errorf("invalid coin name, ticker, or symbol: %s", query)
		}
	}
	if result.Currencies[0].ID == nil {
		return nil, errors.Errorf("search result for %s has no id", query)
	}
	return result.Currencies[0], nil
}
