// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package cluster_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/cluster"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storage/memkv"
)

func withTx(ctx context.Context, t *testing.T, store storage.Store, fn func(tx *kvs.Transaction) error) {
	t.Helper()
	tx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		require.NoError(t, tx.Cancel(ctx))
		t.Fatalf("tx func failed: %v", err)
		return
	}
	require.NoError(t, tx.Commit(ctx))
}

func TestInsertUpdateDeleteNode(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	svc := cluster.NewService(store, nil, nil, 30*time.Second)
	now := time.Unix(1_700_000_000, 0)

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		return svc.InsertNode(ctx, tx, "node-a", "10.0.0.1:9000", now)
	})

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		err := svc.InsertNode(ctx, tx, "node-a", "10.0.0.1:9000", now)
		require.ErrorIs(t, err, cluster.ErrNodeExists)
		return nil
	})

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		return svc.UpdateNode(ctx, tx, "node-a", now.Add(time.Second))
	})

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		err := svc.UpdateNode(ctx, tx, "node-missing", now)
		require.ErrorIs(t, err, cluster.ErrNodeNotFound)
		return nil
	})

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		return svc.DeleteNode(ctx, tx, "node-a")
	})
}

func TestExpireNodes(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	expiry := 30 * time.Second
	svc := cluster.NewService(store, nil, nil, expiry)
	now := time.Unix(1_700_000_000, 0)

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		if err := svc.InsertNode(ctx, tx, "stale", "10.0.0.1:9000", now.Add(-time.Minute)); err != nil {
			return err
		}
		return svc.InsertNode(ctx, tx, "fresh", "10.0.0.2:9000", now)
	})

	expired, err := svc.ExpireNodes(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []string{"stale"}, expired)

	expired, err = svc.ExpireNodes(ctx, now)
	require.NoError(t, err)
	require.Empty(t, expired)
}

func TestRemoveNodesClearsSubscriptionsAndRecord(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cache := catalog.NewCache(0, 0)
	svc := cluster.NewService(store, cache, nil, 30*time.Second)
	now := time.Unix(1_700_000_000, 0)

	var tbID uint64 = 42
	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		if err := svc.InsertNode(ctx, tx, "node-a", "10.0.0.1:9000", now); err != nil {
			return err
		}
		acc := catalog.NewAccessor(tx, cache)
		return acc.DefineSubscription(ctx, tbID, catalog.Subscription{
			ID: "q1", NodeID: "node-a", Namespace: "ns", Database: "db", Table: "tb",
		})
	})

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		return svc.DeleteNode(ctx, tx, "node-a")
	})

	resolve := func(ctx context.Context, acc *catalog.Accessor, sub catalog.Subscription) (uint64, error) {
		return tbID, nil
	}
	removed, err := svc.RemoveNodes(ctx, resolve)
	require.NoError(t, err)
	require.Equal(t, []string{"node-a"}, removed)

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		acc := catalog.NewAccessor(tx, cache)
		subs, err := acc.AllLiveByTable(ctx, tbID)
		require.NoError(t, err)
		require.Empty(t, subs)
		return nil
	})
}

func TestGarbageCollectLiveQueriesDropsOrphanedSubscriptions(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cache := catalog.NewCache(0, 0)
	svc := cluster.NewService(store, cache, nil, 30*time.Second)

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		acc := catalog.NewAccessor(tx, cache)
		ns, err := acc.DefineNamespace(ctx, "ns")
		if err != nil {
			return err
		}
		db, err := acc.DefineDatabase(ctx, ns.ID, "db")
		if err != nil {
			return err
		}
		tb, err := acc.DefineTable(ctx, ns.ID, db.ID, "tb", catalog.TableNormal, false)
		if err != nil {
			return err
		}
		return acc.DefineSubscription(ctx, tb.ID, catalog.Subscription{
			ID: "orphan", NodeID: "ghost-node", Namespace: "ns", Database: "db", Table: "tb",
		})
	})

	removed, err := svc.GarbageCollectLiveQueries(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}

// TestMaintenanceSweepIsIdempotent exercises spec.md §8 invariant 8:
// running expire_nodes + remove_nodes + garbage_collect twice on the
// same state is equivalent to running them once.
func TestMaintenanceSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cache := catalog.NewCache(0, 0)
	svc := cluster.NewService(store, cache, nil, 30*time.Second)
	now := time.Unix(1_700_000_000, 0)

	var tbID uint64 = 99
	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		if err := svc.InsertNode(ctx, tx, "stale", "10.0.0.1:9000", now.Add(-time.Minute)); err != nil {
			return err
		}
		acc := catalog.NewAccessor(tx, cache)
		return acc.DefineSubscription(ctx, tbID, catalog.Subscription{
			ID: "q1", NodeID: "stale", Namespace: "ns", Database: "db", Table: "tb",
		})
	})

	resolve := func(ctx context.Context, acc *catalog.Accessor, sub catalog.Subscription) (uint64, error) {
		return tbID, nil
	}
	sweep := func() (expired, removed []string, gc int) {
		var err error
		expired, err = svc.ExpireNodes(ctx, now)
		require.NoError(t, err)
		removed, err = svc.RemoveNodes(ctx, resolve)
		require.NoError(t, err)
		gc, err = svc.GarbageCollectLiveQueries(ctx)
		require.NoError(t, err)
		return
	}

	expired1, removed1, gc1 := sweep()
	require.Equal(t, []string{"stale"}, expired1)
	require.Equal(t, []string{"stale"}, removed1)
	require.Equal(t, 0, gc1)

	// Running the same sweep again observes no further state to act on.
	expired2, removed2, gc2 := sweep()
	require.Empty(t, expired2)
	require.Empty(t, removed2)
	require.Equal(t, 0, gc2)
}

func TestDeleteQueries(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cache := catalog.NewCache(0, 0)
	svc := cluster.NewService(store, cache, nil, 30*time.Second)

	var tbID uint64 = 7
	resolve := func(ctx context.Context, acc *catalog.Accessor, sub catalog.Subscription) (uint64, error) {
		return tbID, nil
	}

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		acc := catalog.NewAccessor(tx, cache)
		if err := acc.DefineSubscription(ctx, tbID, catalog.Subscription{
			ID: "q1", NodeID: "node-a", Namespace: "ns", Database: "db", Table: "tb",
		}); err != nil {
			return err
		}
		return acc.DefineSubscription(ctx, tbID, catalog.Subscription{
			ID: "q2", NodeID: "node-a", Namespace: "ns", Database: "db", Table: "tb",
		})
	})

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		return svc.DeleteQueries(ctx, tx, "node-a", []string{"q1"}, resolve)
	})

	withTx(ctx, t, store, func(tx *kvs.Transaction) error {
		acc := catalog.NewAccessor(tx, cache)
		subs, err := acc.AllLiveByNode(ctx, "node-a")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		require.Equal(t, "q2", subs[0].ID)
		return nil
	})
}
