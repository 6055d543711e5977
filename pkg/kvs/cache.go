// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package kvs

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is the scoped, weighted, size-bounded key->typed-entry map a
// transaction keeps for its own lifetime (spec.md §4.3 "Scoped cache").
// Lookups use a get-or-compute-under-guard idiom via singleflight so
// concurrent fetchers of the same key within one transaction coalesce
// into a single compute call, grounded on the coalescing pattern
// original_source's kvs/tx.rs documents for its own transaction cache.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	weight   int
	maxBytes int

	group singleflight.Group
}

type cacheEntry struct {
	value  interface{}
	weight int
}

// NewCache creates an empty cache capped at maxBytes of estimated
// weight (TRANSACTION_CACHE_SIZE from spec.md §6).
func NewCache(maxBytes int) *Cache {
	return &Cache{entries: make(map[string]cacheEntry), maxBytes: maxBytes}
}

// Get returns a cached value and whether it was present.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Set inserts or replaces a cached value with an estimated weight. If
// inserting would exceed maxBytes, the cache evicts arbitrary entries
// (map iteration order) until it fits; the only hard contract (per
// spec.md §4.4's discussion of the cross-transaction cache, which
// shares this same weight idiom) is that no single entry may itself
// exceed the cap.
func (c *Cache) Set(key string, value interface{}, weight int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		c.weight -= old.weight
	}
	c.entries[key] = cacheEntry{value: value, weight: weight}
	c.weight += weight
	for c.maxBytes > 0 && c.weight > c.maxBytes && len(c.entries) > 1 {
		for k, e := range c.entries {
			if k == key {
				continue
			}
			delete(c.entries, k)
			c.weight -= e.weight
			break
		}
	}
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.weight -= e.weight
	}
}

// GetOrCompute returns the cached value for key, computing and caching
// it via fn if absent. Concurrent callers for the same key within one
// transaction share a single in-flight compute call.
func (c *Cache) GetOrCompute(ctx context.Context, key string, weight int, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, weight)
		return v, nil
	})
	return v, err
}
