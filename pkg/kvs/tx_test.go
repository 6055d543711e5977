// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package kvs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/notify"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storage/memkv"
)

func TestCommitFlushesNotificationsCancelDrops(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()

	hub := notify.NewHub(zap.NewNop())
	ch := make(chan notify.Notification, 10)
	hub.Register("sub1", ch)

	// committed transaction: notification is delivered.
	tx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{Hub: hub})
	require.NoError(t, err)
	tx.BufferNotification(notify.Notification{SubscriptionID: "sub1", Action: notify.ActionCreate})
	require.NoError(t, tx.Commit(ctx))
	select {
	case n := <-ch:
		require.Equal(t, notify.ActionCreate, n.Action)
	default:
		t.Fatal("expected notification after commit")
	}

	// cancelled transaction: notification is dropped.
	tx, err = kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{Hub: hub})
	require.NoError(t, err)
	tx.BufferNotification(notify.Notification{SubscriptionID: "sub1", Action: notify.ActionDelete})
	require.NoError(t, tx.Cancel(ctx))
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification after cancel: %+v", n)
	default:
	}
}

func TestPendingIndexBatchCleanupOnCancel(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()

	tx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)

	cleaned := false
	tx.RegisterPendingIndexBatch("ix1", &kvs.PendingIndexBatch{
		BatchID: 1,
		Cleanup: func(ctx context.Context) { cleaned = true },
	})
	require.NoError(t, tx.Cancel(ctx))
	require.True(t, cleaned)
}

func TestPendingIndexBatchNoCleanupOnSuccessfulCommit(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()

	tx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)

	cleaned := false
	tx.RegisterPendingIndexBatch("ix1", &kvs.PendingIndexBatch{
		BatchID: 1,
		Cleanup: func(ctx context.Context) { cleaned = true },
	})
	require.NoError(t, tx.Commit(ctx))
	require.False(t, cleaned)
}

func TestCacheGetOrCompute(t *testing.T) {
	c := kvs.NewCache(1 << 20)
	calls := 0
	compute := func(ctx context.Context) (interface{}, error) {
		calls++
		return 42, nil
	}
	v, err := c.GetOrCompute(context.Background(), "k", 8, compute)
	require.NoError(t, err)
	require.Equal(t, 42, v)

	v, err = c.GetOrCompute(context.Background(), "k", 8, compute)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls)
}
