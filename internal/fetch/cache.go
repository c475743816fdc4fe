package fetch

import (
	"sync"
	"time"

	"github.com/jmllr/alertchain/internal/metrics"
	"github.com/jmllr/alertchain/internal/models"
)

type cacheEntry struct {
	result    models.FetchResult
	expiresAt time.Time
}

// Cache is the two-tier fetch cache. The run tier holds every result of the
// current run and is reset at run start, so one run never issues the same
// request twice. The TTL tier survives across runs with separate lifetimes
// for successful and failed results.
type Cache struct {
	okTTL   time.Duration
	failTTL time.Duration

	mu  sync.Mutex
	run map[RequestKey]models.FetchResult
	ttl map[RequestKey]cacheEntry
	now func() time.Time
}

func NewCache(okTTL, failTTL time.Duration) *Cache {
	return &Cache{
		okTTL:   okTTL,
		failTTL: failTTL,
		run:     make(map[RequestKey]models.FetchResult),
		ttl:     make(map[RequestKey]cacheEntry),
		now:     time.Now,
	}
}

// BeginRun clears the run tier and sweeps expired TTL entries.
func (c *Cache) BeginRun() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = make(map[RequestKey]models.FetchResult)
	now := c.now()
	for k, e := range c.ttl {
		if !now.Before(e.expiresAt) {
			delete(c.ttl, k)
		}
	}
}

// Get checks the run tier first, then the TTL tier. A TTL hit is promoted
// into the run tier so later lookups in the same run hit the cheap tier.
func (c *Cache) Get(key RequestKey) (models.FetchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res, ok := c.run[key]; ok {
		metrics.CacheHitsTotal.WithLabelValues("run").Inc()
		return res, true
	}
	if entry, ok := c.ttl[key]; ok && c.now().Before(entry.expiresAt) {
		metrics.CacheHitsTotal.WithLabelValues("ttl").Inc()
		c.run[key] = entry.result
		return entry.result, true
	}
	metrics.CacheMissesTotal.Inc()
	return models.FetchResult{}, false
}

// Put stores a result in both tiers. Failures get the shorter TTL so a
// transiently broken indicator recovers quickly.
func (c *Cache) Put(key RequestKey, res models.FetchResult) {
	ttl := c.okTTL
	if !res.OK {
		ttl = c.failTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run[key] = res
	c.ttl[key] = cacheEntry{result: res, expiresAt: c.now().Add(ttl)}
}

// Size reports the entry counts of both tiers.
func (c *Cache) Size() (run, ttl int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.run), len(c.ttl)
}
