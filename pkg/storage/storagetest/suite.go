// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package storagetest is a shared conformance suite for storage.Store
// backends, grounded on storj's private/kvstore/testsuite (which runs
// the same CRUD/range tests against teststore, boltdb and redis via
// testsuite.RunTests(t, store)).
package storagetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/storage"
)

// RunSuite runs the full conformance suite against new, passed in by
// the caller for each subtest (so on-disk backends can use a fresh
// temp file per test).
func RunSuite(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, newStore(t)) })
	t.Run("Range", func(t *testing.T) { testRange(t, newStore(t)) })
	t.Run("CAS", func(t *testing.T) { testCAS(t, newStore(t)) })
	t.Run("Cancel", func(t *testing.T) { testCancel(t, newStore(t)) })
	t.Run("Savepoint", func(t *testing.T) { testSavepoint(t, newStore(t)) })
}

func testCRUD(t *testing.T, store storage.Store) {
	ctx := context.Background()
	items := map[string]string{
		"\x00":         "\x00",
		"a/b":          "\x01\x00",
		"a\\b":         "\xFF",
		"full/path/1":  "\x00\xFF\xFF\x00",
		"full/path/2":  "\x00\xFF\xFF\x01",
		"öö":           "üü",
	}

	tx, err := store.Begin(ctx, true, storage.Optimistic)
	require.NoError(t, err)
	for k, v := range items {
		require.NoError(t, tx.Put(ctx, storage.Key(k), storage.Value(v)))
	}
	require.NoError(t, tx.Commit(ctx))

	tx, err = store.Begin(ctx, false, storage.Optimistic)
	require.NoError(t, err)
	for k, v := range items {
		got, err := tx.Get(ctx, storage.Key(k), storage.NoVersion)
		require.NoError(t, err)
		require.Equal(t, v, string(got))
	}
	require.NoError(t, tx.Cancel(ctx))

	tx, err = store.Begin(ctx, true, storage.Optimistic)
	require.NoError(t, err)
	for k := range items {
		require.NoError(t, tx.Del(ctx, storage.Key(k)))
	}
	require.NoError(t, tx.Commit(ctx))

	tx, err = store.Begin(ctx, false, storage.Optimistic)
	require.NoError(t, err)
	for k := range items {
		_, err := tx.Get(ctx, storage.Key(k), storage.NoVersion)
		require.Error(t, err)
		require.True(t, storage.ErrKeyNotFound.Has(err))
	}
	require.NoError(t, tx.Cancel(ctx))
}

func testRange(t *testing.T, store storage.Store) {
	ctx := context.Background()
	items := []string{"a", "b/1", "b/2", "b/3", "c", "c/", "c//", "c/1", "g", "h"}

	tx, err := store.Begin(ctx, true, storage.Optimistic)
	require.NoError(t, err)
	for _, k := range items {
		require.NoError(t, tx.Put(ctx, storage.Key(k), storage.Value(k)))
	}
	require.NoError(t, tx.Commit(ctx))

	tx, err = store.Begin(ctx, false, storage.Optimistic)
	require.NoError(t, err)
	kvs, err := tx.Scan(ctx, storage.ToPrefixRange(storage.Key("b")), storage.ScanOptions{})
	require.NoError(t, err)
	var got []string
	for _, kv := range kvs {
		got = append(got, string(kv.Key))
	}
	sort.Strings(got)
	require.Equal(t, []string{"b/1", "b/2", "b/3"}, got)
	require.NoError(t, tx.Cancel(ctx))
}

func testCAS(t *testing.T, store storage.Store) {
	ctx := context.Background()
	tx, err := store.Begin(ctx, true, storage.Optimistic)
	require.NoError(t, err)

	require.NoError(t, tx.Putc(ctx, storage.Key("x"), storage.Value("1"), nil))
	require.Error(t, tx.Putc(ctx, storage.Key("x"), storage.Value("2"), nil))
	require.NoError(t, tx.Putc(ctx, storage.Key("x"), storage.Value("2"), storage.Value("1")))

	require.Error(t, tx.Delc(ctx, storage.Key("x"), storage.Value("1")))
	require.NoError(t, tx.Delc(ctx, storage.Key("x"), storage.Value("2")))

	require.NoError(t, tx.Commit(ctx))
}

func testCancel(t *testing.T, store storage.Store) {
	ctx := context.Background()
	tx, err := store.Begin(ctx, true, storage.Optimistic)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, storage.Key("cancelled"), storage.Value("v")))
	require.NoError(t, tx.Cancel(ctx))

	tx, err = store.Begin(ctx, false, storage.Optimistic)
	require.NoError(t, err)
	_, err = tx.Get(ctx, storage.Key("cancelled"), storage.NoVersion)
	require.True(t, storage.ErrKeyNotFound.Has(err))
	require.NoError(t, tx.Cancel(ctx))
}

func testSavepoint(t *testing.T, store storage.Store) {
	ctx := context.Background()
	tx, err := store.Begin(ctx, true, storage.Optimistic)
	require.NoError(t, err)

	require.NoError(t, tx.Put(ctx, storage.Key("before"), storage.Value("1")))
	sp, err := tx.Savepoint(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Put(ctx, storage.Key("after"), storage.Value("2")))
	require.NoError(t, tx.RollbackToSavepoint(ctx, sp))

	ok, err := tx.Exists(ctx, storage.Key("before"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tx.Exists(ctx, storage.Key("after"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tx.Commit(ctx))
}
