// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package indexbuild implements the async index builder (C7): a
// two-pass background build of an index over an existing,
// continuously-written table, with a writer-side consume path that
// lets concurrent transactions enqueue deltas instead of blocking on
// the build, per spec.md §4.7.
package indexbuild

import (
	"context"
	"encoding/json"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/storage"
)

// Status is one arm of get_status's result sum type.
type Status int

const (
	StatusStarted Status = iota
	StatusCleaning
	StatusIndexing
	StatusReady
	StatusAborted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusCleaning:
		return "cleaning"
	case StatusIndexing:
		return "indexing"
	case StatusReady:
		return "ready"
	case StatusAborted:
		return "aborted"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Progress is the full get_status payload: Indexing{initial, pending,
// updated} collapsed into one struct with the other arms, since Go has
// no tagged-union sum type.
type Progress struct {
	Status  Status
	Initial uint64 // records processed by pass 1
	Pending uint64 // queue entries enqueued but not yet drained by pass 2
	Updated uint64 // queue entries applied by pass 2
	Err     error
}

// Outcome is consume's result.
type Outcome int

const (
	// Enqueued means the writer deposited a delta into the build's
	// queue and must not also index the record synchronously.
	Enqueued Outcome = iota
	// Ignored means the build is finished (or never existed); the
	// caller must index the record through its normal synchronous
	// path.
	Ignored
)

// ValueComputer turns a raw record into an index's value tuple. It
// decouples this package from the not-yet-built expression evaluator
// that actually understands index definitions (owned by the engine,
// C9) — the same interface-seam pkg/iam uses for RecordEvaluator.
type ValueComputer interface {
	ComputeIndexValues(ctx context.Context, ix catalog.Index, ridKey []byte, record storage.Value) ([]byte, error)
}

// queueEntry is one entry in an index's builder queue (spec.md §4.7).
type queueEntry struct {
	BatchID     uint64
	AppendingID uint64
	RecordKey   []byte
	OldValues   []byte
	NewValues   []byte
}

// appendingPointer is the per-record "primary appending" pointer that
// lets the initial-pass reader see through concurrent writes.
type appendingPointer struct {
	BatchID     uint64
	AppendingID uint64
}

func encodeJSON(v interface{}) (storage.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errs2.Internal.Wrap(err)
	}
	return storage.Value(b), nil
}

func decodeJSON(data storage.Value, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errs2.Internal.Wrap(err)
	}
	return nil
}
