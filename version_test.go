// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package coredb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/coredb"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storage/memkv"
	"storj.io/coredb/pkg/storagekey"
)

func TestCheckVersionInstallsOnFreshStore(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	ds := coredb.New(nil, store, nil)

	require.NoError(t, ds.CheckVersion(ctx))

	tx, err := ds.Transaction(ctx, false, storage.Optimistic)
	require.NoError(t, err)
	value, err := tx.Raw().Get(ctx, storagekey.VersionKey(), 0)
	require.NoError(t, err)
	require.NoError(t, tx.Cancel(ctx))
	require.Equal(t, storage.Value{coredb.CurrentStorageVersion}, value)
}

func TestCheckVersionSucceedsWhenAlreadyCurrent(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	ds := coredb.New(nil, store, nil)

	require.NoError(t, ds.CheckVersion(ctx))
	require.NoError(t, ds.CheckVersion(ctx))
}

func TestCheckVersionRejectsMismatch(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()

	tx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	require.NoError(t, tx.Raw().Set(ctx, storagekey.VersionKey(), storage.Value{99}))
	require.NoError(t, tx.Commit(ctx))

	ds := coredb.New(nil, store, nil)
	err = ds.CheckVersion(ctx)
	require.Error(t, err)
	require.True(t, coredb.IsOutdatedStorageVersion(err))
}
