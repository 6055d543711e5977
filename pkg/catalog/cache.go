// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"sync"
	"sync/atomic"
)

// fingerprint is the cross-transaction cache key: (parent-id, stamp).
type fingerprint struct {
	parent string
	stamp  Stamp
}

// entry carries a shared, read-only slice so that concurrent readers
// pay only an atomic bump, per spec.md §4.4 "Cross-transaction cache".
// The weight is an implementation-defined estimate, per the open
// question in spec.md §9: each all_X accessor passes a fixed weight for
// its collection, documented in DESIGN.md.
type entry struct {
	value  interface{}
	weight int
}

// Cache is the process-wide, shared-across-all-transactions catalog
// cache. Mutators are required to bump the owning Stamp (via
// BumpStamp) *before* committing; readers that observe an unknown
// stamp fall through to the underlying scan (see Accessor.AllX),
// guaranteeing spec.md §8 property 1 (catalog consistency: readers
// never observe a partial state).
type Cache struct {
	maxEntryWeight int

	mu      sync.RWMutex
	entries map[fingerprint]entry
	weight  int
	maxWeight int

	stampsMu sync.Mutex
	stamps   map[string]*uint64 // collection key -> current stamp
}

// NewCache creates an empty cross-transaction cache capped at
// maxWeightBytes total and maxEntryWeightBytes per entry
// (DEFINITION_CACHE_SIZE from spec.md §6).
func NewCache(maxWeightBytes, maxEntryWeightBytes int) *Cache {
	return &Cache{
		maxWeight:      maxWeightBytes,
		maxEntryWeight: maxEntryWeightBytes,
		entries:        make(map[fingerprint]entry),
		stamps:         make(map[string]*uint64),
	}
}

// CurrentStamp returns the current version stamp for a collection
// (e.g. "tb:<nsID>:<dbID>"), starting at 0 for a collection never
// bumped.
func (c *Cache) CurrentStamp(collection string) Stamp {
	c.stampsMu.Lock()
	defer c.stampsMu.Unlock()
	p, ok := c.stamps[collection]
	if !ok {
		return 0
	}
	return Stamp(atomic.LoadUint64(p))
}

// BumpStamp strictly monotonically increases a collection's stamp and
// returns the new value. Must be called by mutators before they commit
// (spec.md §4.4, §8 property 1).
func (c *Cache) BumpStamp(collection string) Stamp {
	c.stampsMu.Lock()
	p, ok := c.stamps[collection]
	if !ok {
		v := uint64(0)
		p = &v
		c.stamps[collection] = p
	}
	c.stampsMu.Unlock()
	return Stamp(atomic.AddUint64(p, 1))
}

// Get returns the cached value for (parent, stamp), or ok=false if
// absent or stale.
func (c *Cache) Get(parent string, stamp Stamp) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[fingerprint{parent: parent, stamp: stamp}]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Put inserts a value for (parent, stamp) with an estimated weight. If
// weight exceeds the per-entry cap, Put is a no-op (never violate the
// "no single entity exceeds the per-entry cap" contract from spec.md
// §9).
func (c *Cache) Put(parent string, stamp Stamp, value interface{}, weight int) {
	if c.maxEntryWeight > 0 && weight > c.maxEntryWeight {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fp := fingerprint{parent: parent, stamp: stamp}
	if old, ok := c.entries[fp]; ok {
		c.weight -= old.weight
	}
	c.entries[fp] = entry{value: value, weight: weight}
	c.weight += weight
	for c.maxWeight > 0 && c.weight > c.maxWeight && len(c.entries) > 1 {
		for k, e := range c.entries {
			if k == fp {
				continue
			}
			delete(c.entries, k)
			c.weight -= e.weight
			break
		}
	}
}
