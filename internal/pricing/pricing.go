package pricing

import (
	"strings"
	"sync"
	"time"

	"github.com/example/freight-matching/internal/models"
)

// Client is the interface used to look up a market freight rate for a
// route, in rupees per ton. The rateapi client implements it against
// an external rate service.
type Client interface {
	RatePerTon(origin, destination string) (models.Money, error)
}

// Cache is a tiny in-memory TTL cache for rate lookups keyed by route.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  models.Money
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(origin, destination string) string {
	return strings.ToLower(strings.TrimSpace(origin)) + "->" + strings.ToLower(strings.TrimSpace(destination))
}

// Get returns the cached rate and true if present and not expired.
func (c *Cache) Get(origin, destination string) (models.Money, bool) {
	k := keyFor(origin, destination)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

// Set stores a rate in the cache.
func (c *Cache) Set(origin, destination string, v models.Money) {
	k := keyFor(origin, destination)
	c.mu.Lock()
	c.store[k] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}

// Estimator suggests an asking price for a listing. Purely advisory:
// owners see it on the post-trip form, nothing enforces it.
type Estimator struct {
	Client            Client // optional market rate service
	Cache             *Cache // optional
	DefaultRatePerTon models.Money
}

// Suggest returns rate-per-ton times capacity, preferring the market
// rate service, then the cache, then the flat default.
func (e *Estimator) Suggest(origin, destination string, capacityTons float64) models.Money {
	rate := e.DefaultRatePerTon
	if rate <= 0 {
		rate = 1500 // fallback flat rate per ton
	}
	if e.Cache != nil {
		if v, ok := e.Cache.Get(origin, destination); ok {
			rate = v
		} else if e.Client != nil {
			if v, err := e.Client.RatePerTon(origin, destination); err == nil {
				rate = v
				e.Cache.Set(origin, destination, v)
			}
		}
	} else if e.Client != nil {
		if v, err := e.Client.RatePerTon(origin, destination); err == nil {
			rate = v
		}
	}
	return models.Money(float64(rate)*capacityTons + 0.5)
}
