// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package kvs implements the transaction layer (C3): it wraps a raw
// storage.Txn with a per-transaction cache, savepoints, streaming
// scanners, pending-index-builder bookkeeping, and post-commit
// notification buffering, per spec.md §4.3.
package kvs

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/coredb/pkg/notify"
	"storj.io/coredb/pkg/storage"
)

var mon = monkit.Package()

// RollbackPolicy selects what happens when a writable transaction is
// dropped without Commit or Cancel, per spec.md §4.3 "Rollback
// discipline".
type RollbackPolicy int

const (
	// RollbackWarn logs and rolls back. This is the default.
	RollbackWarn RollbackPolicy = iota
	// RollbackPanic panics, for tests that want to fail loudly.
	RollbackPanic
	// RollbackSilent rolls back without logging.
	RollbackSilent
)

// PendingIndexBatch is the per-transaction bookkeeping for one index
// currently receiving writer deltas from the async index builder
// (spec.md §4.3 "Pending-index batches", §4.7). Cleanup is the
// builder-supplied callback invoked at Cancel or failed Commit to drain
// orphaned appending-ids.
type PendingIndexBatch struct {
	BatchID uint64
	Cleanup func(ctx context.Context)
}

// Transaction wraps a storage.Txn with the C3 machinery. It is not
// safe for concurrent use by multiple goroutines except where noted
// (the scoped Cache coalesces concurrent fetches of the same key).
type Transaction struct {
	raw   storage.Txn
	write bool

	log    *zap.Logger
	policy RollbackPolicy

	Cache *Cache

	pendingIndex map[string]*PendingIndexBatch

	notifyBuf []notify.Notification
	hub       *notify.Hub

	finished bool
}

// Options configures a new Transaction.
type Options struct {
	Log            *zap.Logger
	RollbackPolicy RollbackPolicy
	CacheSizeBytes int
	Hub            *notify.Hub // nil disables notification buffering
}

// Begin starts a new C3 transaction over store.
func Begin(ctx context.Context, store storage.Store, write bool, lock storage.Lock, opts Options) (tx *Transaction, err error) {
	defer mon.Task()(&ctx)(&err)

	raw, err := store.Begin(ctx, write, lock)
	if err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	t := &Transaction{
		raw:          raw,
		write:        write,
		log:          opts.Log,
		policy:       opts.RollbackPolicy,
		Cache:        NewCache(opts.CacheSizeBytes),
		pendingIndex: make(map[string]*PendingIndexBatch),
		hub:          opts.Hub,
	}
	if write {
		runtime.SetFinalizer(t, finalizeTransaction)
	}
	return t, nil
}

func finalizeTransaction(t *Transaction) {
	if t.finished {
		return
	}
	switch t.policy {
	case RollbackPanic:
		panic("kvs: writable transaction dropped without Commit or Cancel")
	case RollbackSilent:
		_ = t.raw.Cancel(context.Background())
	default:
		t.log.Warn("writable transaction dropped without Commit or Cancel; rolling back")
		_ = t.raw.Cancel(context.Background())
	}
}

// Raw exposes the underlying storage.Txn for the catalog layer's typed
// accessors.
func (t *Transaction) Raw() storage.Txn { return t.raw }

// Writable reports whether this transaction may mutate the keyspace.
func (t *Transaction) Writable() bool { return t.write }

// BufferNotification enqueues a notification to be flushed to the hub
// only if this transaction commits successfully; on Cancel it is
// dropped untouched (spec.md §4.3 "Post-commit notifications", §8
// property 7).
func (t *Transaction) BufferNotification(n notify.Notification) {
	t.notifyBuf = append(t.notifyBuf, n)
}

// RegisterPendingIndexBatch records that this transaction has enqueued
// one or more deltas into an in-progress index build's queue, so that
// Commit/Cancel can run the builder's cleanup hook.
func (t *Transaction) RegisterPendingIndexBatch(indexKey string, batch *PendingIndexBatch) {
	t.pendingIndex[indexKey] = batch
}

// PendingIndexBatches returns the index keys this transaction has
// pending batches for.
func (t *Transaction) PendingIndexBatches() map[string]*PendingIndexBatch {
	return t.pendingIndex
}

// Savepoint starts a new savepoint on the underlying transaction.
func (t *Transaction) Savepoint(ctx context.Context) (storage.SavepointID, error) {
	return t.raw.Savepoint(ctx)
}

// ReleaseSavepoint releases a savepoint.
func (t *Transaction) ReleaseSavepoint(ctx context.Context, id storage.SavepointID) error {
	return t.raw.ReleaseSavepoint(ctx, id)
}

// RollbackToSavepoint rolls back to a savepoint without ending the
// transaction.
func (t *Transaction) RollbackToSavepoint(ctx context.Context, id storage.SavepointID) error {
	return t.raw.RollbackToSavepoint(ctx, id)
}

// Commit finalizes the transaction. On success, any buffered
// notifications are flushed to the hub and any pending index batches'
// commit-side bookkeeping is released (their cleanup hooks are *not*
// invoked on success, only on Cancel/failed Commit — see spec.md
// §4.7's writer path).
func (t *Transaction) Commit(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if t.finished {
		return storage.ErrTxnFinished
	}
	if err := t.raw.Commit(ctx); err != nil {
		t.finished = true
		t.runCleanups(ctx)
		return err
	}
	t.finished = true
	if t.hub != nil && len(t.notifyBuf) > 0 {
		t.hub.Dispatch(ctx, t.notifyBuf)
	}
	return nil
}

// Cancel aborts the transaction. Buffered notifications are dropped and
// every pending index batch's cleanup hook runs so the builder can
// remove orphaned appending-ids (spec.md §4.7).
func (t *Transaction) Cancel(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if t.finished {
		return storage.ErrTxnFinished
	}
	err = t.raw.Cancel(ctx)
	t.finished = true
	t.notifyBuf = nil
	t.runCleanups(ctx)
	return err
}

func (t *Transaction) runCleanups(ctx context.Context) {
	for _, batch := range t.pendingIndex {
		if batch.Cleanup != nil {
			batch.Cleanup(ctx)
		}
	}
	t.pendingIndex = nil
}
