// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package indexbuild_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/indexbuild"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storage/memkv"
	"storj.io/coredb/pkg/storagekey"
)

const (
	nsID = 1
	dbID = 1
	tbID = 7
	ixID = 99
)

// stubComputer computes an index value tuple as the record's raw bytes
// prefixed with "v:", optionally blocking until unblock is closed so
// tests can force the builder to still be mid-pass when a concurrent
// writer calls consume.
type stubComputer struct {
	unblock <-chan struct{}
}

func (c *stubComputer) ComputeIndexValues(ctx context.Context, ix catalog.Index, ridKey []byte, record storage.Value) ([]byte, error) {
	if c.unblock != nil {
		<-c.unblock
	}
	return append([]byte("v:"), record...), nil
}

func putRecord(t *testing.T, store storage.Store, rid string, value string) {
	t.Helper()
	tx, err := kvs.Begin(context.Background(), store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	key := storagekey.RecordKey(tbID, []byte(rid))
	require.NoError(t, tx.Raw().Set(context.Background(), key, storage.Value(value)))
	require.NoError(t, tx.Commit(context.Background()))
}

func indexDataCount(t *testing.T, store storage.Store) int {
	t.Helper()
	ctx := context.Background()
	tx, err := kvs.Begin(ctx, store, false, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	defer tx.Cancel(ctx)
	rng := storage.ToPrefixRange(storagekey.IndexDataPrefix(tbID, ixID))
	n, err := storage.Count(ctx, tx.Raw(), rng)
	require.NoError(t, err)
	return n
}

func TestBuildIndexesExistingRecords(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	putRecord(t, store, "rec1", "alice")
	putRecord(t, store, "rec2", "bob")
	putRecord(t, store, "rec3", "carol")

	reg := indexbuild.NewRegistry(store, nil)
	ix := catalog.Index{ID: ixID, Name: "by_name", TableID: tbID}

	done, err := reg.Build(ctx, nsID, dbID, tbID, ix, &stubComputer{}, true)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("build did not finish")
	}

	progress, ok := reg.GetStatus(nsID, dbID, tbID, ixID)
	require.True(t, ok)
	require.Equal(t, indexbuild.StatusReady, progress.Status)
	require.EqualValues(t, 3, progress.Initial)
	require.EqualValues(t, 0, progress.Pending)
	require.Equal(t, 3, indexDataCount(t, store))
}

func TestBuildRejectsConcurrentBuild(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	putRecord(t, store, "rec1", "alice")

	unblock := make(chan struct{})
	reg := indexbuild.NewRegistry(store, nil)
	ix := catalog.Index{ID: ixID, Name: "by_name", TableID: tbID}

	_, err := reg.Build(ctx, nsID, dbID, tbID, ix, &stubComputer{unblock: unblock}, false)
	require.NoError(t, err)

	_, err = reg.Build(ctx, nsID, dbID, tbID, ix, &stubComputer{unblock: unblock}, false)
	require.Error(t, err)

	close(unblock)
}

func TestConsumeDuringBuildIsEnqueuedThenDrained(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	putRecord(t, store, "rec1", "alice")

	unblock := make(chan struct{})
	reg := indexbuild.NewRegistry(store, nil)
	ix := catalog.Index{ID: ixID, Name: "by_name", TableID: tbID}

	done, err := reg.Build(ctx, nsID, dbID, tbID, ix, &stubComputer{unblock: unblock}, true)
	require.NoError(t, err)

	// The builder is blocked computing rec1's value; a concurrent
	// writer on a different record must be told to enqueue, not to
	// index synchronously.
	writerTx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	outcome, err := reg.Consume(ctx, writerTx, nsID, dbID, tbID, ixID, []byte("rec2"), nil, []byte("v:dave"))
	require.NoError(t, err)
	require.Equal(t, indexbuild.Enqueued, outcome)
	require.NoError(t, writerTx.Commit(ctx))

	close(unblock)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("build did not finish")
	}

	progress, ok := reg.GetStatus(nsID, dbID, tbID, ixID)
	require.True(t, ok)
	require.Equal(t, indexbuild.StatusReady, progress.Status)
	require.EqualValues(t, 1, progress.Initial)
	require.EqualValues(t, 1, progress.Updated)
	require.EqualValues(t, 0, progress.Pending)
	require.Equal(t, 2, indexDataCount(t, store))

	// Once Ready, a later writer must be told Ignored.
	writerTx2, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	defer writerTx2.Cancel(ctx)
	outcome, err = reg.Consume(ctx, writerTx2, nsID, dbID, tbID, ixID, []byte("rec3"), nil, []byte("v:erin"))
	require.NoError(t, err)
	require.Equal(t, indexbuild.Ignored, outcome)
}

func TestConsumeCleansUpOnCancel(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	putRecord(t, store, "rec1", "alice")

	unblock := make(chan struct{})
	reg := indexbuild.NewRegistry(store, nil)
	ix := catalog.Index{ID: ixID, Name: "by_name", TableID: tbID}

	done, err := reg.Build(ctx, nsID, dbID, tbID, ix, &stubComputer{unblock: unblock}, true)
	require.NoError(t, err)

	writerTx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	outcome, err := reg.Consume(ctx, writerTx, nsID, dbID, tbID, ixID, []byte("rec2"), nil, []byte("v:dave"))
	require.NoError(t, err)
	require.Equal(t, indexbuild.Enqueued, outcome)

	before, ok := reg.GetStatus(nsID, dbID, tbID, ixID)
	require.True(t, ok)
	require.EqualValues(t, 1, before.Pending)

	require.NoError(t, writerTx.Cancel(ctx))

	after, ok := reg.GetStatus(nsID, dbID, tbID, ixID)
	require.True(t, ok)
	require.EqualValues(t, 0, after.Pending)

	close(unblock)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("build did not finish")
	}
}
