// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package kvs

import (
	"context"
	"runtime"

	"storj.io/coredb/pkg/storage"
)

// Stream is a lazy adaptor over storage.BatchKeysVals: it emits one
// (key, value) pair at a time, re-issuing batch requests only when the
// consumer asks for the next item, so backpressure is driven entirely
// by the consumer (spec.md §4.3 "Streaming"). It yields to the
// scheduler every NORMAL_FETCH_SIZE keys even on a single-threaded
// executor (SPEC_FULL.md §4, grounded on original_source's
// kvs/scanner.rs), and observes ctx cancellation at every batch
// boundary (spec.md §5 "Suspension points").
type Stream struct {
	ctx     context.Context
	tx      storage.Txn
	rng     *storage.Range
	batch   []storage.KeyValue
	pos     int
	seen    int
	batchSz int
	err     error
}

// NewStream creates a stream over rng using the given per-batch size
// (use storage.NormalBatchSize by default).
func NewStream(ctx context.Context, tx storage.Txn, rng storage.Range, batchSize int) *Stream {
	if batchSize <= 0 {
		batchSize = storage.NormalBatchSize
	}
	return &Stream{ctx: ctx, tx: tx, rng: &rng, batchSz: batchSize}
}

// Next returns the next (key, value) pair, or ok=false when the stream
// is exhausted or ctx has been cancelled. Err returns the terminal
// error, if any.
func (s *Stream) Next() (kv storage.KeyValue, ok bool) {
	if s.err != nil {
		return storage.KeyValue{}, false
	}
	for s.pos >= len(s.batch) {
		if s.rng == nil {
			return storage.KeyValue{}, false
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return storage.KeyValue{}, false
		}
		items, next, err := storage.BatchKeysVals(s.ctx, s.tx, *s.rng, s.batchSz)
		if err != nil {
			s.err = err
			return storage.KeyValue{}, false
		}
		s.batch = items
		s.pos = 0
		s.rng = next
		if len(items) == 0 {
			return storage.KeyValue{}, false
		}
	}
	kv = s.batch[s.pos]
	s.pos++
	s.seen++
	if s.seen%storage.NormalBatchSize == 0 {
		runtime.Gosched()
	}
	return kv, true
}

// Err returns the error, if any, that terminated the stream.
func (s *Stream) Err() error { return s.err }
