// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package memkv is the in-memory reference implementation of the C1
// substrate (storage.Store), grounded on storj's private/kvstore/teststore
// backend: an always-available, dependency-free store used by every unit
// test in the tree and as the spec for what every other backend must
// behave like.
package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"storj.io/coredb/pkg/storage"
)

// Store is an in-memory, mutex-guarded ordered map. Transactions buffer
// their writes locally and apply them atomically under the Store's lock
// at Commit, giving snapshot isolation: a transaction's reads are fixed
// relative to the state as observed at Begin, except for its own
// writes, which it sees immediately (read-your-writes).
type Store struct {
	mu   sync.Mutex
	data map[string]storage.Value
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string]storage.Value)}
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() error { return nil }

// Begin starts a new transaction. lock is accepted for interface
// compatibility but the in-memory backend always serializes commits
// under a single mutex.
func (s *Store) Begin(ctx context.Context, write bool, lock storage.Lock) (storage.Txn, error) {
	s.mu.Lock()
	snapshot := make(map[string]storage.Value, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.mu.Unlock()

	return &txn{
		store:      s,
		write:      write,
		snapshot:   snapshot,
		overlay:    make(map[string]*writeOp),
		savepoints: nil,
	}, nil
}

type writeOp struct {
	deleted bool
	value   storage.Value
}

type savepointMark struct {
	id      storage.SavepointID
	overlay map[string]*writeOp // copy of overlay at the time of the savepoint
}

type txn struct {
	store      *Store
	write      bool
	snapshot   map[string]storage.Value
	overlay    map[string]*writeOp
	savepoints []savepointMark
	nextSP     storage.SavepointID
	done       bool
}

func (t *txn) finished() error {
	if t.done {
		return storage.ErrTxnFinished
	}
	return nil
}

func (t *txn) readOnlyCheck() error {
	if !t.write {
		return storage.ErrReadOnly
	}
	return nil
}

func (t *txn) lookup(key storage.Key) (storage.Value, bool) {
	ks := string(key)
	if op, ok := t.overlay[ks]; ok {
		if op.deleted {
			return nil, false
		}
		return op.value, true
	}
	v, ok := t.snapshot[ks]
	return v, ok
}

func (t *txn) Get(ctx context.Context, key storage.Key, version storage.Version) (storage.Value, error) {
	if err := t.finished(); err != nil {
		return nil, err
	}
	if version != storage.NoVersion {
		return nil, storage.ErrClass.New("versioned reads not supported")
	}
	v, ok := t.lookup(key)
	if !ok {
		return nil, storage.ErrKeyNotFound
	}
	return v.Clone(), nil
}

func (t *txn) Exists(ctx context.Context, key storage.Key) (bool, error) {
	if err := t.finished(); err != nil {
		return false, err
	}
	_, ok := t.lookup(key)
	return ok, nil
}

func (t *txn) Set(ctx context.Context, key storage.Key, value storage.Value) error {
	if err := t.finished(); err != nil {
		return err
	}
	if err := t.readOnlyCheck(); err != nil {
		return err
	}
	t.overlay[string(key)] = &writeOp{value: value.Clone()}
	return nil
}

func (t *txn) Put(ctx context.Context, key storage.Key, value storage.Value) error {
	if err := t.finished(); err != nil {
		return err
	}
	if err := t.readOnlyCheck(); err != nil {
		return err
	}
	if _, ok := t.lookup(key); ok {
		return storage.ErrKeyExists
	}
	t.overlay[string(key)] = &writeOp{value: value.Clone()}
	return nil
}

func (t *txn) Putc(ctx context.Context, key storage.Key, value storage.Value, expected storage.Value) error {
	if err := t.finished(); err != nil {
		return err
	}
	if err := t.readOnlyCheck(); err != nil {
		return err
	}
	cur, ok := t.lookup(key)
	if expected == nil {
		if ok {
			return storage.ErrCompareMismatch
		}
	} else {
		if !ok || !bytes.Equal(cur, expected) {
			return storage.ErrCompareMismatch
		}
	}
	t.overlay[string(key)] = &writeOp{value: value.Clone()}
	return nil
}

func (t *txn) Del(ctx context.Context, key storage.Key) error {
	if err := t.finished(); err != nil {
		return err
	}
	if err := t.readOnlyCheck(); err != nil {
		return err
	}
	t.overlay[string(key)] = &writeOp{deleted: true}
	return nil
}

func (t *txn) Delc(ctx context.Context, key storage.Key, expected storage.Value) error {
	if err := t.finished(); err != nil {
		return err
	}
	if err := t.readOnlyCheck(); err != nil {
		return err
	}
	cur, ok := t.lookup(key)
	if !ok || !bytes.Equal(cur, expected) {
		return storage.ErrCompareMismatch
	}
	t.overlay[string(key)] = &writeOp{deleted: true}
	return nil
}

func (t *txn) merged() []storage.KeyValue {
	seen := make(map[string]bool, len(t.snapshot)+len(t.overlay))
	out := make([]storage.KeyValue, 0, len(t.snapshot)+len(t.overlay))
	for k, op := range t.overlay {
		seen[k] = true
		if !op.deleted {
			out = append(out, storage.KeyValue{Key: storage.Key(k), Value: op.value})
		}
	}
	for k, v := range t.snapshot {
		if seen[k] {
			continue
		}
		out = append(out, storage.KeyValue{Key: storage.Key(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out
}

func inRange(k storage.Key, rng storage.Range) bool {
	if rng.Begin != nil && bytes.Compare(k, rng.Begin) < 0 {
		return false
	}
	if rng.End != nil && bytes.Compare(k, rng.End) >= 0 {
		return false
	}
	return true
}

func (t *txn) Keys(ctx context.Context, rng storage.Range, opts storage.ScanOptions) ([]storage.Key, error) {
	if err := t.finished(); err != nil {
		return nil, err
	}
	if opts.Version != storage.NoVersion {
		return nil, storage.ErrClass.New("versioned reads not supported")
	}
	all := t.merged()
	var filtered []storage.Key
	for _, kv := range all {
		if inRange(kv.Key, rng) {
			filtered = append(filtered, kv.Key)
		}
	}
	if opts.Reverse {
		reverseKeys(filtered)
	}
	return applyLimitKeys(filtered, opts), nil
}

func (t *txn) Scan(ctx context.Context, rng storage.Range, opts storage.ScanOptions) ([]storage.KeyValue, error) {
	if err := t.finished(); err != nil {
		return nil, err
	}
	if opts.Version != storage.NoVersion {
		return nil, storage.ErrClass.New("versioned reads not supported")
	}
	all := t.merged()
	var filtered []storage.KeyValue
	for _, kv := range all {
		if inRange(kv.Key, rng) {
			filtered = append(filtered, storage.KeyValue{Key: kv.Key.Clone(), Value: kv.Value.Clone()})
		}
	}
	if opts.Reverse {
		reverseKVs(filtered)
	}
	return applyLimitKVs(filtered, opts), nil
}

func reverseKeys(s []storage.Key) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func reverseKVs(s []storage.KeyValue) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func applyLimitKeys(s []storage.Key, opts storage.ScanOptions) []storage.Key {
	if opts.Skip > 0 {
		if opts.Skip >= len(s) {
			return nil
		}
		s = s[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(s) {
		s = s[:opts.Limit]
	}
	return s
}

func applyLimitKVs(s []storage.KeyValue, opts storage.ScanOptions) []storage.KeyValue {
	if opts.Skip > 0 {
		if opts.Skip >= len(s) {
			return nil
		}
		s = s[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(s) {
		s = s[:opts.Limit]
	}
	return s
}

func (t *txn) Savepoint(ctx context.Context) (storage.SavepointID, error) {
	if err := t.finished(); err != nil {
		return 0, err
	}
	t.nextSP++
	id := t.nextSP
	snap := make(map[string]*writeOp, len(t.overlay))
	for k, v := range t.overlay {
		cp := *v
		snap[k] = &cp
	}
	t.savepoints = append(t.savepoints, savepointMark{id: id, overlay: snap})
	return id, nil
}

func (t *txn) ReleaseSavepoint(ctx context.Context, id storage.SavepointID) error {
	if err := t.finished(); err != nil {
		return err
	}
	for i, sp := range t.savepoints {
		if sp.id == id {
			t.savepoints = append(t.savepoints[:i], t.savepoints[i+1:]...)
			return nil
		}
	}
	return storage.ErrClass.New("unknown savepoint")
}

func (t *txn) RollbackToSavepoint(ctx context.Context, id storage.SavepointID) error {
	if err := t.finished(); err != nil {
		return err
	}
	for i, sp := range t.savepoints {
		if sp.id == id {
			restored := make(map[string]*writeOp, len(sp.overlay))
			for k, v := range sp.overlay {
				cp := *v
				restored[k] = &cp
			}
			t.overlay = restored
			t.savepoints = t.savepoints[:i+1]
			// the savepoint itself stays active until released, matching
			// storj's tx savepoint stack semantics (rollback does not pop).
			return nil
		}
	}
	return storage.ErrClass.New("unknown savepoint")
}

func (t *txn) Commit(ctx context.Context) error {
	if err := t.finished(); err != nil {
		return err
	}
	t.done = true
	if !t.write {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for k, op := range t.overlay {
		if op.deleted {
			delete(t.store.data, k)
		} else {
			t.store.data[k] = op.value
		}
	}
	return nil
}

func (t *txn) Cancel(ctx context.Context) error {
	if t.done {
		return storage.ErrTxnFinished
	}
	t.done = true
	return nil
}
