package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"search-scraper/pkg/config"
)

// evictPercent is the share of entries removed (at least 1) when the cache
// hits capacity.
const evictPercent = 10

type entry struct {
	value string
	ts    time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size       int     `json:"size"`
	MaxSize    int     `json:"max_size"`
	TTLSeconds float64 `json:"ttl"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// URLCache maps original URLs to their resolved final URLs with TTL expiry
// and oldest-first eviction. Safe for concurrent use.
//
// Expired entries are removed lazily: individually when a lookup finds one,
// and in bulk every cleanupThreshold operations.
type URLCache struct {
	mu               sync.Mutex
	entries          map[string]entry
	maxSize          int
	ttl              time.Duration
	cleanupThreshold int
	hits             uint64
	misses           uint64
	ops              int

	now func() time.Time // Overridable for tests

	log *logrus.Entry
}

// New creates a URLCache from validated config.
func New(cfg config.CacheConfig, log *logrus.Entry) *URLCache {
	return &URLCache{
		entries:          make(map[string]entry),
		maxSize:          cfg.MaxSize,
		ttl:              cfg.TTL,
		cleanupThreshold: cfg.CleanupThreshold,
		now:              time.Now,
		log:              log,
	}
}

// Get returns the cached resolved URL for key if present and not expired.
// A hit refreshes the entry's timestamp so frequently used mappings stay
// alive. An expired entry found here is deleted as a side effect and counts
// as a miss.
func (c *URLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if key == "" || !ok {
		c.misses++
		return "", false
	}

	c.ops++
	c.maybeCleanExpiredLocked()

	// The periodic sweep may have removed this entry
	e, ok = c.entries[key]
	if !ok {
		c.misses++
		return "", false
	}

	if c.now().Sub(e.ts) > c.ttl {
		delete(c.entries, key)
		c.misses++
		return "", false
	}

	c.entries[key] = entry{value: e.value, ts: c.now()}
	c.hits++
	return e.value, true
}

// Set inserts or overwrites the mapping key -> value with the current
// timestamp. Setting an empty key is a no-op. When the cache is at capacity
// and key is new, the oldest entries are evicted first to make room.
func (c *URLCache) Set(key, value string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ops++
	c.maybeCleanExpiredLocked()

	if len(c.entries) >= c.maxSize {
		if _, exists := c.entries[key]; !exists {
			c.evictLocked()
		}
	}

	c.entries[key] = entry{value: value, ts: c.now()}
}

// Clear removes all entries and resets the hit/miss counters.
func (c *URLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
	c.hits = 0
	c.misses = 0
	c.ops = 0
	c.log.Debug("Cache cleared")
}

// Stats returns a snapshot of the cache counters.
func (c *URLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

func (c *URLCache) statsLocked() Stats {
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:       len(c.entries),
		MaxSize:    c.maxSize,
		TTLSeconds: c.ttl.Seconds(),
		Hits:       c.hits,
		Misses:     c.misses,
		HitRate:    rate,
	}
}

// maybeCleanExpiredLocked sweeps expired entries once every
// cleanupThreshold operations. Caller must hold mu.
func (c *URLCache) maybeCleanExpiredLocked() {
	if c.ops < c.cleanupThreshold {
		return
	}
	c.cleanExpiredLocked()
	c.ops = 0
}

// cleanExpiredLocked removes every expired entry. Caller must hold mu.
func (c *URLCache) cleanExpiredLocked() {
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.ts) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.log.Debugf("Cleaned %d expired cache entries", removed)
	}
}

// evictLocked removes the oldest entries by timestamp, at least 1 and up to
// evictPercent of the current size. Caller must hold mu.
func (c *URLCache) evictLocked() {
	if len(c.entries) == 0 {
		return
	}

	type keyed struct {
		key string
		ts  time.Time
	}
	items := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		items = append(items, keyed{key: k, ts: e.ts})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ts.Before(items[j].ts) })

	n := len(items) * evictPercent / 100
	if n < 1 {
		n = 1
	}
	for _, it := range items[:n] {
		delete(c.entries, it.key)
	}
	c.log.Debugf("Evicted %d oldest cache entries", n)
}
