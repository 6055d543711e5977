// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
)

// Accessor is the per-transaction handle onto the catalog: every typed
// reader/mutator in this package is a method on Accessor. It reads
// through the transaction's own scoped cache first, then the
// cross-transaction Cache, then falls back to the substrate, per
// spec.md §4.3/§4.4.
type Accessor struct {
	tx    *kvs.Transaction
	cache *Cache
}

// NewAccessor binds a transaction to the process-wide catalog cache.
func NewAccessor(tx *kvs.Transaction, cache *Cache) *Accessor {
	return &Accessor{tx: tx, cache: cache}
}

func encode(v interface{}) (storage.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errs2.Internal.Wrap(err)
	}
	return storage.Value(b), nil
}

func decode(data storage.Value, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errs2.Internal.Wrap(fmt.Errorf("corrupted catalog entry: %w", err))
	}
	return nil
}

// scanCollection lists every value in a key range, decoding each into
// a fresh T via decode. It never skips an entry it cannot decode —
// decode errors abort the whole scan, per spec.md §4.2's "never
// silently skipped" rule for corrupted entries.
func scanCollection[T any](ctx context.Context, tx storage.Txn, rng storage.Range) ([]T, error) {
	kvsList, err := storage.GetRange(ctx, tx, rng)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(kvsList))
	for _, kv := range kvsList {
		var v T
		if err := decode(kv.Value, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// cachedAll is the shared "all_X" idiom from spec.md §4.4: look up the
// collection by (collection, parent, stamp) first in the cross-transaction
// cache, then in the transaction's own scoped cache, falling back to a
// range scan and populating both caches on success.
func cachedAll[T any](ctx context.Context, a *Accessor, collection, parent string, rng storage.Range, weight int) ([]T, error) {
	stamp := a.cache.CurrentStamp(collection)
	fp := fmt.Sprintf("%s|%s@%d", collection, parent, stamp)

	if v, ok := a.cache.Get(fp, stamp); ok {
		return v.([]T), nil
	}
	if v, ok := a.tx.Cache.Get(fp); ok {
		return v.([]T), nil
	}

	result, err := a.tx.Cache.GetOrCompute(ctx, fp, weight, func(ctx context.Context) (interface{}, error) {
		return scanCollection[T](ctx, a.tx.Raw(), rng)
	})
	if err != nil {
		return nil, err
	}
	list := result.([]T)
	a.cache.Put(fp, stamp, list, weight)
	return list, nil
}

// bump must be called by every mutator before it commits, so that the
// next all_X sees a fresh view (spec.md §4.4).
func (a *Accessor) bump(collection string) {
	a.cache.BumpStamp(collection)
}
