// Package cache provides a size-bounded, concurrency-safe memo for computed
// results keyed by immutable inputs.
package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a thread-safe least-recently-used cache with hit/miss counters.
type LRU[K comparable, V any] struct {
	cache   *lru.Cache[K, V]
	hits    atomic.Uint64
	misses  atomic.Uint64
	evicted atomic.Uint64
}

// New creates a cache holding at most size entries.
func New[K comparable, V any](size int) (*LRU[K, V], error) {
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &LRU[K, V]{cache: c}, nil
}

// Get returns the cached value for key.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	v, ok := c.cache.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRU[K, V]) Set(key K, value V) {
	if c.cache.Add(key, value) {
		c.evicted.Add(1)
	}
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	return c.cache.Len()
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Evicted uint64  `json:"evicted"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns current counters.
func (c *LRU[K, V]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Evicted: c.evicted.Load(),
		Size:    c.cache.Len(),
		HitRate: rate,
	}
}
