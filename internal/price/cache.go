package price

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"price-alert-bot/internal/types"
)

// Observation is a price and the time it was fetched.
type Observation struct {
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Cache memoizes last prices per instrument for a fixed TTL. Expired entries
// are never returned; the caller refetches.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[types.Instrument]Observation
}

// NewCache creates a cache. A nil clock defaults to time.Now.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[types.Instrument]Observation),
	}
}

// Get returns the cached observation if now - stored_at <= TTL.
func (c *Cache) Get(m types.Market, code string) (Observation, bool) {
	key := types.Instrument{Market: m, Code: code}

	c.mu.Lock()
	defer c.mu.Unlock()

	obs, ok := c.entries[key]
	if !ok {
		return Observation{}, false
	}
	if c.now().Sub(obs.ObservedAt) > c.ttl {
		delete(c.entries, key)
		return Observation{}, false
	}
	return obs, true
}

// Put stores price observed now.
func (c *Cache) Put(m types.Market, code string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[types.Instrument{Market: m, Code: code}] = Observation{Price: price, ObservedAt: c.now()}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
