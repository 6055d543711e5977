// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package indexbuild

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

// memoryCheckInterval is how often (in records) pass 1 and pass 2 poll
// the abort flag inside a single batch, per spec.md §4.7 "Abort &
// cancellation".
const memoryCheckInterval = 100

// queuePollInterval is how long pass 2 sleeps when it finds an empty
// queue but writers still hold pending appendings, before re-checking
// the termination condition.
const queuePollInterval = 10 * time.Millisecond

// build is the state of one index's background build.
type build struct {
	key      indexKey
	ix       catalog.Index
	computer ValueComputer
	store    storage.Store
	log      *zap.Logger

	done chan struct{}

	mu       sync.Mutex // guards progress
	progress Progress

	// queueMu is "the queue lock" from spec.md §4.7: writers take it in
	// consume to enqueue, and pass 2 takes it to check the termination
	// condition, so a writer either observes Ready (and is told
	// Ignored) or successfully enqueues before the build can declare
	// itself done.
	queueMu     sync.Mutex
	pending     int64 // atomic: entries enqueued, not yet resolved by pass 2 or a cancel
	batchCounts map[uint64]*int64
	batchSeq    uint64
	appendSeq   uint64

	aborted int32 // atomic bool
}

func newBuild(key indexKey, ix catalog.Index, computer ValueComputer, store storage.Store, log *zap.Logger) *build {
	return &build{
		key:         key,
		ix:          ix,
		computer:    computer,
		store:       store,
		log:         log,
		done:        make(chan struct{}),
		batchCounts: make(map[uint64]*int64),
		progress:    Progress{Status: StatusStarted},
	}
}

func (b *build) terminal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.progress.Status {
	case StatusReady, StatusAborted, StatusError:
		return true
	default:
		return false
	}
}

func (b *build) snapshot() Progress {
	b.mu.Lock()
	p := b.progress
	b.mu.Unlock()
	p.Pending = uint64(atomic.LoadInt64(&b.pending))
	return p
}

func (b *build) setStatus(s Status) {
	b.mu.Lock()
	b.progress.Status = s
	b.mu.Unlock()
}

func (b *build) fail(err error) {
	b.mu.Lock()
	b.progress.Status = StatusError
	b.progress.Err = err
	b.mu.Unlock()
	close(b.done)
}

func (b *build) abort() {
	atomic.StoreInt32(&b.aborted, 1)
}

func (b *build) isAborted() bool {
	return atomic.LoadInt32(&b.aborted) != 0
}

// run drives pass 0, pass 1, and pass 2 to completion. It always closes
// b.done exactly once, whatever the outcome.
func (b *build) run(ctx context.Context) {
	if err := b.pass0Clean(ctx); err != nil {
		b.fail(err)
		return
	}
	if b.isAborted() {
		b.setStatus(StatusAborted)
		close(b.done)
		return
	}

	if err := b.pass1Initial(ctx); err != nil {
		b.fail(err)
		return
	}
	if b.isAborted() {
		b.setStatus(StatusAborted)
		close(b.done)
		return
	}

	if err := b.pass2Drain(ctx); err != nil {
		b.fail(err)
		return
	}
	if b.isAborted() {
		b.setStatus(StatusAborted)
		close(b.done)
		return
	}

	b.setStatus(StatusReady)
	close(b.done)
}

// pass0Clean deletes the index's entire data range under a single write
// transaction, per spec.md §4.7 "Pass 0".
func (b *build) pass0Clean(ctx context.Context) error {
	b.setStatus(StatusCleaning)

	tx, err := kvs.Begin(ctx, b.store, true, storage.Optimistic, kvs.Options{Log: b.log})
	if err != nil {
		return err
	}
	if err := storage.DeletePrefix(ctx, tx.Raw(), storagekey.IndexDataPrefix(b.key.TableID, b.key.IndexID)); err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// pass1Initial walks the table's records in INDEXING_BATCH_SIZE-sized
// batches, consulting each record's primary-appending pointer so it
// sees through writes that land after the build started.
func (b *build) pass1Initial(ctx context.Context) error {
	b.setStatus(StatusIndexing)

	prefix := storagekey.RecordPrefix(b.key.TableID)
	rng := storage.ToPrefixRange(prefix)

	for {
		if b.isAborted() {
			return nil
		}

		tx, err := kvs.Begin(ctx, b.store, true, storage.Optimistic, kvs.Options{Log: b.log})
		if err != nil {
			return err
		}

		items, next, err := storage.BatchKeysVals(ctx, tx.Raw(), rng, storage.IndexingBatchSize)
		if err != nil {
			_ = tx.Cancel(ctx)
			return err
		}

		for i, kv := range items {
			if i > 0 && i%memoryCheckInterval == 0 && b.isAborted() {
				break
			}

			ridKey := kv.Key[len(prefix):]
			values, err := b.valuesForRecord(ctx, tx, ridKey, kv.Value)
			if err != nil {
				_ = tx.Cancel(ctx)
				return err
			}
			if err := b.applyIndexOp(ctx, tx, nil, values, ridKey); err != nil {
				_ = tx.Cancel(ctx)
				return err
			}

			b.mu.Lock()
			b.progress.Initial++
			b.mu.Unlock()
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		rng = *next
	}
}

// valuesForRecord implements spec.md §4.7 Pass 1 step 1/2: if a live
// queue entry's primary-appending pointer covers this record, its
// old_values are the pre-build index image and are used verbatim;
// otherwise the value tuple is computed fresh from the record.
func (b *build) valuesForRecord(ctx context.Context, tx *kvs.Transaction, ridKey []byte, record storage.Value) ([]byte, error) {
	apKey := storagekey.IndexAppendingKey(b.key.TableID, b.key.IndexID, ridKey)
	data, err := tx.Raw().Get(ctx, apKey, storage.NoVersion)
	if err != nil && !storage.ErrKeyNotFound.Has(err) {
		return nil, err
	}
	if err == nil {
		var ptr appendingPointer
		if err := decodeJSON(data, &ptr); err != nil {
			return nil, err
		}
		if ptr.BatchID != 0 {
			qKey := storagekey.IndexQueueKey(b.key.TableID, b.key.IndexID, ptr.BatchID, ptr.AppendingID)
			qData, err := tx.Raw().Get(ctx, qKey, storage.NoVersion)
			if err == nil {
				var entry queueEntry
				if err := decodeJSON(qData, &entry); err != nil {
					return nil, err
				}
				return entry.OldValues, nil
			}
			if !storage.ErrKeyNotFound.Has(err) {
				return nil, err
			}
			// Pass 2 already drained the entry this pointer named;
			// fall through and compute fresh values below.
		}
	}
	return b.computer.ComputeIndexValues(ctx, b.ix, ridKey, record)
}

// applyIndexOp deletes the old index-data entry (if any) and writes the
// new one (if any).
func (b *build) applyIndexOp(ctx context.Context, tx *kvs.Transaction, old, newValues, ridKey []byte) error {
	raw := tx.Raw()
	if old != nil {
		if err := raw.Del(ctx, storagekey.IndexDataKey(b.key.TableID, b.key.IndexID, old, ridKey)); err != nil && !storage.ErrKeyNotFound.Has(err) {
			return err
		}
	}
	if newValues != nil {
		if err := raw.Set(ctx, storagekey.IndexDataKey(b.key.TableID, b.key.IndexID, newValues, ridKey), storage.Value(ridKey)); err != nil {
			return err
		}
	}
	return nil
}

// pass2Drain walks the per-index queue in bounded batches, applying and
// removing each entry, until the queue is empty and no writer still
// holds pending appendings.
func (b *build) pass2Drain(ctx context.Context) error {
	prefix := storagekey.IndexQueuePrefix(b.key.TableID, b.key.IndexID)
	baseRange := storage.ToPrefixRange(prefix)

	for {
		if b.isAborted() {
			return nil
		}

		b.queueMu.Lock()

		tx, err := kvs.Begin(ctx, b.store, true, storage.Optimistic, kvs.Options{Log: b.log})
		if err != nil {
			b.queueMu.Unlock()
			return err
		}

		items, _, err := storage.BatchKeysVals(ctx, tx.Raw(), baseRange, storage.IndexingBatchSize)
		if err != nil {
			_ = tx.Cancel(ctx)
			b.queueMu.Unlock()
			return err
		}

		if len(items) == 0 {
			_ = tx.Cancel(ctx)
			if atomic.LoadInt64(&b.pending) == 0 {
				// Terminal check under the queue lock: either the
				// queue stays empty forever now, or a concurrent
				// consume is blocked on queueMu and will enqueue the
				// instant we unlock — in which case the next iteration
				// of this loop will see it.
				b.queueMu.Unlock()
				return nil
			}
			b.queueMu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(queuePollInterval):
			}
			continue
		}

		drained := make(map[uint64]int64)
		for i, kv := range items {
			if i > 0 && i%memoryCheckInterval == 0 && b.isAborted() {
				break
			}

			var entry queueEntry
			if err := decodeJSON(kv.Value, &entry); err != nil {
				_ = tx.Cancel(ctx)
				b.queueMu.Unlock()
				return err
			}

			apKey := storagekey.IndexAppendingKey(b.key.TableID, b.key.IndexID, entry.RecordKey)
			if err := tx.Raw().Del(ctx, apKey); err != nil && !storage.ErrKeyNotFound.Has(err) {
				_ = tx.Cancel(ctx)
				b.queueMu.Unlock()
				return err
			}
			if err := b.applyIndexOp(ctx, tx, entry.OldValues, entry.NewValues, entry.RecordKey); err != nil {
				_ = tx.Cancel(ctx)
				b.queueMu.Unlock()
				return err
			}
			if err := tx.Raw().Del(ctx, kv.Key); err != nil {
				_ = tx.Cancel(ctx)
				b.queueMu.Unlock()
				return err
			}

			drained[entry.BatchID]++
			b.mu.Lock()
			b.progress.Updated++
			b.mu.Unlock()
		}

		if err := tx.Commit(ctx); err != nil {
			b.queueMu.Unlock()
			return err
		}

		for batchID, n := range drained {
			atomic.AddInt64(&b.pending, -n)
			if cnt, ok := b.batchCounts[batchID]; ok {
				*cnt -= n
				if *cnt <= 0 {
					delete(b.batchCounts, batchID)
				}
			}
		}
		b.queueMu.Unlock()
	}
}

// consume is the writer path (spec.md §4.7 "Writer path in detail").
func (b *build) consume(ctx context.Context, tx *kvs.Transaction, ridKey, oldValues, newValues []byte) (Outcome, error) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	if b.snapshotStatusLocked() == StatusReady && atomic.LoadInt64(&b.pending) == 0 {
		return Ignored, nil
	}

	keyStr := b.key.String()
	pb, ok := tx.PendingIndexBatches()[keyStr]
	if !ok {
		b.batchSeq++
		batchID := b.batchSeq
		pb = &kvs.PendingIndexBatch{
			BatchID: batchID,
			Cleanup: func(cctx context.Context) {
				b.queueMu.Lock()
				defer b.queueMu.Unlock()
				if cnt, ok := b.batchCounts[batchID]; ok {
					atomic.AddInt64(&b.pending, -*cnt)
					delete(b.batchCounts, batchID)
				}
			},
		}
		tx.RegisterPendingIndexBatch(keyStr, pb)
	}

	b.appendSeq++
	appendingID := b.appendSeq

	cnt, ok := b.batchCounts[pb.BatchID]
	if !ok {
		cnt = new(int64)
		b.batchCounts[pb.BatchID] = cnt
	}
	*cnt++
	atomic.AddInt64(&b.pending, 1)

	entry := queueEntry{BatchID: pb.BatchID, AppendingID: appendingID, RecordKey: ridKey, OldValues: oldValues, NewValues: newValues}
	val, err := encodeJSON(entry)
	if err != nil {
		return 0, err
	}

	raw := tx.Raw()
	qKey := storagekey.IndexQueueKey(b.key.TableID, b.key.IndexID, pb.BatchID, appendingID)
	if err := raw.Set(ctx, qKey, val); err != nil {
		return 0, err
	}

	apKey := storagekey.IndexAppendingKey(b.key.TableID, b.key.IndexID, ridKey)
	writePointer := true
	if data, err := raw.Get(ctx, apKey, storage.NoVersion); err == nil {
		var existing appendingPointer
		if err := decodeJSON(data, &existing); err != nil {
			return 0, err
		}
		writePointer = existing.BatchID == 0 // legacy marker, overwrite
		if writePointer {
			b.log.Warn("overwriting legacy batch 0 appending pointer",
				zap.Uint64("table", b.key.TableID), zap.Uint64("index", b.key.IndexID))
		}
	} else if !storage.ErrKeyNotFound.Has(err) {
		return 0, err
	}
	if writePointer {
		ptrVal, err := encodeJSON(appendingPointer{BatchID: pb.BatchID, AppendingID: appendingID})
		if err != nil {
			return 0, err
		}
		if err := raw.Set(ctx, apKey, ptrVal); err != nil {
			return 0, err
		}
	}

	return Enqueued, nil
}

func (b *build) snapshotStatusLocked() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress.Status
}
