package price

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-alert-bot/internal/market"
	"price-alert-bot/internal/metrics"
	"price-alert-bot/internal/types"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingAdapter struct {
	market types.Market
	price  decimal.Decimal
	err    error
	delay  time.Duration
	calls  int32
}

func (a *countingAdapter) Market() types.Market { return a.market }

func (a *countingAdapter) FetchLastPrice(ctx context.Context, code string) (decimal.Decimal, error) {
	atomic.AddInt32(&a.calls, 1)
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	return a.price, a.err
}

func TestCacheTTLBoundary(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	c := NewCache(120*time.Second, clk.Now)
	c.Put(types.Binance, "BTCUSDT", decimal.NewFromInt(70000))

	clk.Advance(119 * time.Second)
	obs, ok := c.Get(types.Binance, "BTCUSDT")
	require.True(t, ok)
	assert.True(t, obs.Price.Equal(decimal.NewFromInt(70000)))

	clk.Advance(time.Second)
	_, ok = c.Get(types.Binance, "BTCUSDT")
	assert.True(t, ok, "entry exactly TTL old is still fresh")

	clk.Advance(time.Second)
	_, ok = c.Get(types.Binance, "BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheKeysByMarket(t *testing.T) {
	c := NewCache(time.Minute, nil)
	c.Put(types.Binance, "BTCUSDT", decimal.NewFromInt(1))
	_, ok := c.Get(types.MEXC, "BTCUSDT")
	assert.False(t, ok)
}

func TestServiceUsesCache(t *testing.T) {
	clk := &clock{now: time.Unix(0, 0)}
	a := &countingAdapter{market: types.Bybit, price: decimal.RequireFromString("2.5")}
	m := metrics.New(prometheus.NewRegistry())
	s := NewService(market.NewSet(a), NewCache(8*time.Second, clk.Now), time.Second, m)

	for i := 0; i < 3; i++ {
		p, err := s.Get(context.Background(), types.Bybit, "ARBUSDT")
		require.NoError(t, err)
		assert.Equal(t, "2.5", p.String())
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&a.calls))
	assert.Equal(t, 2.0, metrics.Value(m.CacheHits))

	clk.Advance(9 * time.Second)
	_, err := s.Get(context.Background(), types.Bybit, "ARBUSDT")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&a.calls))
}

func TestServiceCollapsesConcurrentFetches(t *testing.T) {
	a := &countingAdapter{market: types.OKX, price: decimal.NewFromInt(3), delay: 50 * time.Millisecond}
	s := NewService(market.NewSet(a), NewCache(time.Minute, nil), time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.Get(context.Background(), types.OKX, "ETH-USDT")
			assert.NoError(t, err)
			assert.True(t, p.Equal(decimal.NewFromInt(3)))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&a.calls))
}

func TestServiceDoesNotCacheFailures(t *testing.T) {
	a := &countingAdapter{market: types.Gate, err: errors.New("down")}
	s := NewService(market.NewSet(a), NewCache(time.Minute, nil), time.Second, nil)

	_, err := s.Get(context.Background(), types.Gate, "BTC_USDT")
	require.Error(t, err)
	_, err = s.Get(context.Background(), types.Gate, "BTC_USDT")
	require.Error(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&a.calls))
}

func TestServiceTimeout(t *testing.T) {
	a := &countingAdapter{market: types.KuCoin, price: decimal.NewFromInt(1), delay: time.Second}
	s := NewService(market.NewSet(a), NewCache(time.Minute, nil), 20*time.Millisecond, nil)

	_, err := s.Get(context.Background(), types.KuCoin, "BTC-USDT")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServiceUnknownMarket(t *testing.T) {
	s := NewService(market.NewSet(), NewCache(time.Minute, nil), time.Second, nil)
	_, err := s.Get(context.Background(), types.Binance, "BTCUSDT")
	assert.Error(t, err)
}
