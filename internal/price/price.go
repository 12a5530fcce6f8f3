package price

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"price-alert-bot/internal/market"
	"price-alert-bot/internal/metrics"
	"price-alert-bot/internal/types"
)

// Service serves last prices through the cache, falling back to a live
// adapter fetch on a miss. Concurrent fetches of one instrument collapse into
// a single request.
type Service struct {
	markets *market.Set
	cache   *Cache
	timeout time.Duration
	metrics *metrics.Metrics

	group singleflight.Group
}

// NewService wires adapters to a cache. timeout bounds every live fetch.
func NewService(markets *market.Set, cache *Cache, timeout time.Duration, m *metrics.Metrics) *Service {
	return &Service{markets: markets, cache: cache, timeout: timeout, metrics: m}
}

// Markets lists the markets the service can quote, in priority order.
func (s *Service) Markets() []types.Market {
	return s.markets.Markets()
}

// Get returns the last price of code on market m.
func (s *Service) Get(ctx context.Context, m types.Market, code string) (decimal.Decimal, error) {
	if obs, ok := s.cache.Get(m, code); ok {
		s.metrics.CacheLookup(true)
		return obs.Price, nil
	}
	s.metrics.CacheLookup(false)

	adapter, ok := s.markets.Get(m)
	if !ok {
		return decimal.Zero, errors.Errorf("unknown market %q", m)
	}

	v, err, _ := s.group.Do(fmt.Sprintf("%s|%s", m, code), func() (interface{}, error) {
		fctx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		price, err := adapter.FetchLastPrice(fctx, code)
		s.metrics.PriceFetched(m, err)
		if err != nil {
			log.WithFields(log.Fields{"market": m, "code": code}).Debugf("price fetch failed: %v", err)
			return nil, err
		}
		s.cache.Put(m, code, price)
		return price, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}
