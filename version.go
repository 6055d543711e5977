// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package coredb

import (
	"context"

	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

// CurrentStorageVersion is the storage-format version this build
// writes and expects. Bumping it without a migration path is how an
// incompatible on-disk layout change gets surfaced as
// OutdatedStorageVersion instead of silently misread bytes.
const CurrentStorageVersion = 1

// CheckVersion reads the well-known version marker (original_source's
// check_version, supplemented into SPEC_FULL.md §4): absent means a
// brand-new store, so the current version is installed; present and
// equal is a no-op; anything else is reported as
// OutdatedStorageVersion rather than reinterpreted.
func (ds *Datastore) CheckVersion(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := kvs.Begin(ctx, ds.store, true, storage.Optimistic, kvs.Options{Log: ds.log})
	if err != nil {
		return errs2.Kvs.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Cancel(ctx)
		}
	}()

	raw := tx.Raw()
	value, getErr := raw.Get(ctx, storagekey.VersionKey(), 0)
	switch {
	case storage.ErrKeyNotFound.Has(getErr):
		if err := raw.Set(ctx, storagekey.VersionKey(), encodeVersion(CurrentStorageVersion)); err != nil {
			return errs2.Kvs.Wrap(err)
		}
	case getErr != nil:
		return errs2.Kvs.Wrap(getErr)
	default:
		stored, ok := decodeVersion(value)
		if !ok || stored != CurrentStorageVersion {
			return errs2.OutdatedStorageVersion.New("storage version %v does not match current version %v", stored, CurrentStorageVersion)
		}
	}

	return errs2.Kvs.Wrap(tx.Commit(ctx))
}

func encodeVersion(v uint8) storage.Value { return storage.Value{v} }

func decodeVersion(v storage.Value) (uint8, bool) {
	if len(v) != 1 {
		return 0, false
	}
	return v[0], true
}
