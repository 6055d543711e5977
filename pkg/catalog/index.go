// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"fmt"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

func collIndexes(tbID uint64) string { return fmt.Sprintf("ix:%d", tbID) }

// AllIndexes returns every index defined on table tbID.
func (a *Accessor) AllIndexes(ctx context.Context, nsID, dbID, tbID uint64) ([]Index, error) {
	rng := storage.ToPrefixRange(storagekey.IndexPrefix(nsID, dbID, tbID))
	return cachedAll[Index](ctx, a, collIndexes(tbID), fmt.Sprintf("tb:%d", tbID), rng, 256)
}

// GetIndex returns the index named name on table tbID.
func (a *Accessor) GetIndex(ctx context.Context, nsID, dbID, tbID uint64, name string) (Index, bool, error) {
	all, err := a.AllIndexes(ctx, nsID, dbID, tbID)
	if err != nil {
		return Index{}, false, err
	}
	for _, ix := range all {
		if ix.Name == name {
			return ix, true, nil
		}
	}
	return Index{}, false, nil
}

// ExpectIndex returns the index or ErrIndexNotFound. Per spec.md §8
// property 4, an index whose PrepareRemove is set must not be
// observable to query planning — only the index-builder's own teardown
// path (RemoveIndex) may still see it, via rawGetIndex.
func (a *Accessor) ExpectIndex(ctx context.Context, nsID, dbID, tbID uint64, name string) (Index, error) {
	ix, ok, err := a.GetIndex(ctx, nsID, dbID, tbID, name)
	if err != nil {
		return Index{}, err
	}
	if !ok || ix.PrepareRemove {
		return Index{}, ErrIndexNotFound
	}
	return ix, nil
}

func (a *Accessor) rawGetIndex(ctx context.Context, nsID, dbID, tbID uint64, name string) (Index, bool, error) {
	data, err := a.tx.Raw().Get(ctx, storagekey.IndexKey(nsID, dbID, tbID, name), storage.NoVersion)
	if storage.ErrKeyNotFound.Has(err) {
		return Index{}, false, nil
	}
	if err != nil {
		return Index{}, false, err
	}
	var ix Index
	if err := decode(data, &ix); err != nil {
		return Index{}, false, err
	}
	return ix, true, nil
}

// DefineIndex creates an index definition. The returned Index.ID is
// what C7's async builder uses to key the index's data and queue
// ranges — the index's byte footprint never changes identity even if
// it is later renamed.
func (a *Accessor) DefineIndex(ctx context.Context, nsID, dbID, tbID uint64, name string, kind IndexKind, fields []string) (Index, error) {
	if _, ok, err := a.GetIndex(ctx, nsID, dbID, tbID, name); err != nil {
		return Index{}, err
	} else if ok {
		return Index{}, ErrIndexExists
	}
	id, err := a.nextSequence(ctx, fmt.Sprintf("ix:%d", tbID))
	if err != nil {
		return Index{}, err
	}
	ix := Index{ID: id, Name: name, TableID: tbID, Kind: kind, Fields: fields}
	val, err := encode(ix)
	if err != nil {
		return Index{}, err
	}
	if err := a.tx.Raw().Put(ctx, storagekey.IndexKey(nsID, dbID, tbID, name), val); err != nil {
		return Index{}, err
	}
	a.bump(collIndexes(tbID))
	return ix, nil
}

// MarkIndexPrepareRemove flips the fence bit so planning stops
// selecting this index before the builder's teardown finishes tearing
// down its data and queue ranges.
func (a *Accessor) MarkIndexPrepareRemove(ctx context.Context, nsID, dbID, tbID uint64, name string) (Index, error) {
	ix, ok, err := a.rawGetIndex(ctx, nsID, dbID, tbID, name)
	if err != nil {
		return Index{}, err
	}
	if !ok {
		return Index{}, ErrIndexNotFound
	}
	ix.PrepareRemove = true
	val, err := encode(ix)
	if err != nil {
		return Index{}, err
	}
	if err := a.tx.Raw().Set(ctx, storagekey.IndexKey(nsID, dbID, tbID, name), val); err != nil {
		return Index{}, err
	}
	a.bump(collIndexes(tbID))
	return ix, nil
}

// RemoveIndex finishes what MarkIndexPrepareRemove started: it deletes
// the index's data range, its builder queue range, and finally the
// definition row itself. Callers in C7 invoke this only after the
// builder confirms no worker still holds the index's appending cursor.
func (a *Accessor) RemoveIndex(ctx context.Context, nsID, dbID, tbID uint64, name string) error {
	ix, ok, err := a.rawGetIndex(ctx, nsID, dbID, tbID, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIndexNotFound
	}
	raw := a.tx.Raw()
	if err := storage.DeletePrefix(ctx, raw, storagekey.IndexDataPrefix(tbID, ix.ID)); err != nil {
		return fmt.Errorf("removing index %q data: %w", name, err)
	}
	if err := storage.DeletePrefix(ctx, raw, storagekey.IndexQueuePrefix(tbID, ix.ID)); err != nil {
		return fmt.Errorf("removing index %q queue: %w", name, err)
	}
	if err := raw.Del(ctx, storagekey.IndexKey(nsID, dbID, tbID, name)); err != nil {
		return err
	}
	a.bump(collIndexes(tbID))
	return nil
}
