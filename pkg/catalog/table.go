// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"fmt"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

func collTables(nsID, dbID uint64) string { return fmt.Sprintf("tb:%d:%d", nsID, dbID) }

// AllTables returns every table defined under (nsID, dbID).
func (a *Accessor) AllTables(ctx context.Context, nsID, dbID uint64) ([]Table, error) {
	rng := storage.ToPrefixRange(storagekey.TablePrefix(nsID, dbID))
	return cachedAll[Table](ctx, a, collTables(nsID, dbID), fmt.Sprintf("db:%d:%d", nsID, dbID), rng, 512)
}

// GetTable returns the table named name.
func (a *Accessor) GetTable(ctx context.Context, nsID, dbID uint64, name string) (Table, bool, error) {
	all, err := a.AllTables(ctx, nsID, dbID)
	if err != nil {
		return Table{}, false, err
	}
	for _, tb := range all {
		if tb.Name == name {
			return tb, true, nil
		}
	}
	return Table{}, false, nil
}

// ExpectTable returns the table or ErrTableNotFound. Per spec.md §3's
// invariant, callers must never read record/index data by name: they
// should resolve to Table.ID first, which is exactly what this
// accessor (and CheckNsDbTb) hands back.
func (a *Accessor) ExpectTable(ctx context.Context, nsID, dbID uint64, name string) (Table, error) {
	tb, ok, err := a.GetTable(ctx, nsID, dbID, name)
	if err != nil {
		return Table{}, err
	}
	if !ok {
		return Table{}, ErrTableNotFound
	}
	if tb.PrepareRemove {
		// spec.md §8 property 4: no reader may observe data from a
		// table whose prepare_remove is true.
		return Table{}, ErrTableNotFound
	}
	return tb, nil
}

// DefineTable creates a table, in the given kind, under (nsID, dbID).
func (a *Accessor) DefineTable(ctx context.Context, nsID, dbID uint64, name string, kind TableKind, schemafull bool) (Table, error) {
	if _, ok, err := a.GetTable(ctx, nsID, dbID, name); err != nil {
		return Table{}, err
	} else if ok {
		return Table{}, ErrTableExists
	}
	id, err := a.nextSequence(ctx, fmt.Sprintf("tb:%d:%d", nsID, dbID))
	if err != nil {
		return Table{}, err
	}
	tb := Table{ID: id, Name: name, Kind: kind, Schemafull: schemafull}
	val, err := encode(tb)
	if err != nil {
		return Table{}, err
	}
	if err := a.tx.Raw().Put(ctx, storagekey.TableKey(nsID, dbID, name), val); err != nil {
		return Table{}, err
	}
	a.bump(collTables(nsID, dbID))
	return tb, nil
}

// GetOrAddTable implements get_or_add_tb per spec.md §4.3.
func (a *Accessor) GetOrAddTable(ctx context.Context, nsID, dbID uint64, name string, strict bool) (Table, error) {
	tb, ok, err := a.GetTable(ctx, nsID, dbID, name)
	if err != nil {
		return Table{}, err
	}
	if ok {
		return tb, nil
	}
	if strict {
		return Table{}, ErrTableNotFound
	}
	return a.DefineTable(ctx, nsID, dbID, name, TableNormal, false)
}

// MarkTablePrepareRemove flips the prepare_remove fence so in-flight
// readers stop observing this table's data before the range delete
// completes (spec.md §3 "Lifecycle ownership").
func (a *Accessor) MarkTablePrepareRemove(ctx context.Context, nsID, dbID uint64, name string) error {
	tb, ok, err := a.rawGetTable(ctx, nsID, dbID, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTableNotFound
	}
	tb.PrepareRemove = true
	val, err := encode(tb)
	if err != nil {
		return err
	}
	if err := a.tx.Raw().Set(ctx, storagekey.TableKey(nsID, dbID, name), val); err != nil {
		return err
	}
	a.bump(collTables(nsID, dbID))
	return nil
}

// rawGetTable bypasses the prepare_remove read-filter so the removal
// path itself can still see (and finish removing) a fenced table.
func (a *Accessor) rawGetTable(ctx context.Context, nsID, dbID uint64, name string) (Table, bool, error) {
	data, err := a.tx.Raw().Get(ctx, storagekey.TableKey(nsID, dbID, name), storage.NoVersion)
	if storage.ErrKeyNotFound.Has(err) {
		return Table{}, false, nil
	}
	if err != nil {
		return Table{}, false, err
	}
	var tb Table
	if err := decode(data, &tb); err != nil {
		return Table{}, false, err
	}
	return tb, true, nil
}

// RemoveTable marks the table for removal, deletes every byte range
// keyed by its numeric id (records, index data, index queues, field
// and index and event definitions), and finally deletes the
// definition row itself, per spec.md §3 "Lifecycle ownership".
func (a *Accessor) RemoveTable(ctx context.Context, nsID, dbID uint64, name string) error {
	if err := a.MarkTablePrepareRemove(ctx, nsID, dbID, name); err != nil {
		return err
	}
	tb, ok, err := a.rawGetTable(ctx, nsID, dbID, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTableNotFound
	}

	raw := a.tx.Raw()
	ranges := []storage.Key{
		storagekey.RecordPrefix(tb.ID),
		storagekey.FieldPrefix(nsID, dbID, tb.ID),
		storagekey.IndexPrefix(nsID, dbID, tb.ID),
		storagekey.EventPrefix(nsID, dbID, tb.ID),
		storagekey.LiveByTablePrefix(tb.ID),
	}
	for _, prefix := range ranges {
		if err := storage.DeletePrefix(ctx, raw, prefix); err != nil {
			return fmt.Errorf("removing table %q data: %w", name, err)
		}
	}
	if err := raw.Del(ctx, storagekey.TableKey(nsID, dbID, name)); err != nil {
		return err
	}
	a.bump(collTables(nsID, dbID))
	return nil
}
