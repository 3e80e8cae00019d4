package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"WalletSentinel/internal/logger"
)

// DefaultTTL is how long a fetched rate is served without refetching.
const DefaultTTL = 60 * time.Second

type cached struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// Cache memoizes provider rates for a short freshness window. Concurrent misses
// for the same provider share a single in-flight fetch.
type Cache struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cached
}

// NewCache creates a Cache. A non-positive ttl uses DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, now: time.Now, entries: make(map[string]cached)}
}

// Get returns a fresh rate from f, fetching it if the cached value is stale.
func (c *Cache) Get(ctx context.Context, f Fetcher) (decimal.Decimal, error) {
	key := f.Name()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.rate, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		rate, err := f.FetchRate(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cached{rate: rate, fetchedAt: c.now()}
		c.mu.Unlock()
		return rate, nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate %s: %w", key, err)
	}
	if shared {
		logger.Debug("rate %s served from shared fetch", key)
	}
	return v.(decimal.Decimal), nil
}

// Invalidate drops every cached rate.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cached)
	c.mu.Unlock()
}
