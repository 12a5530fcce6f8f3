package commands

import (
	"sync"
	"time"
)

type CacheItem struct {
	ChartData  []byte
	Caption    string
	Expiration time.Time
}

// chartCache keeps rendered charts so repeated requests do not hit every
// market again.
type chartCache struct {
	mu    sync.Mutex
	items map[string]*CacheItem
	now   func() time.Time
}

func newChartCache(now func() time.Time) *chartCache {
	return &chartCache{items: make(map[string]*CacheItem), now: now}
}

func (c *chartCache) get(key string) (*CacheItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return nil, false
	}
	if !c.now().Before(item.Expiration) {
		delete(c.items, key)
		return nil, false
	}
	return item, true
}

func (c *chartCache) set(key string, chartData []byte, caption string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem{
		ChartData:  chartData,
		Caption:    caption,
		Expiration: c.now().Add(duration),
	}
}
