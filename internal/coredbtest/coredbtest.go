// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package coredbtest is the shared test harness every package's table
// driven tests build on, mirroring storj's internal/testcontext +
// satellite/satellitedb/satellitedbtest pattern: Run spins up a fresh
// in-memory substrate and a version-checked Datastore, then returns it
// to the test so each test case starts from identical state.
package coredbtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"storj.io/coredb"
	"storj.io/coredb/pkg/engine"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storage/memkv"
)

// Run builds a Datastore over a fresh in-memory store, runs CheckVersion
// on it, and returns it. It does not call Bootstrap, so no node is
// registered. parser may be nil for tests that only exercise
// catalog/session/cluster machinery directly.
func Run(t *testing.T, parser engine.Parser, opts ...coredb.Option) *coredb.Datastore {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := memkv.New()
	t.Cleanup(func() { _ = store.Close() })

	allOpts := append([]coredb.Option{coredb.WithNodeID(mustNodeID(t))}, opts...)
	ds := coredb.New(log, store, parser, allOpts...)

	ctx := context.Background()
	if err := ds.CheckVersion(ctx); err != nil {
		t.Fatalf("coredbtest: CheckVersion failed: %v", err)
	}
	return ds
}

// NewStore builds a bare in-memory storage.Store, for tests that need
// raw substrate access without a Datastore wrapped around it.
func NewStore(t *testing.T) storage.Store {
	t.Helper()
	store := memkv.New()
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustNodeID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewRandom()
	if err != nil {
		t.Fatalf("coredbtest: generating node id: %v", err)
	}
	return id
}
