// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package main

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storj.io/coredb"
	"storj.io/coredb/pkg/storage/boltkv"
)

// openDatastore opens the on-disk bbolt-backed store at flagStorePath
// and wraps it in a Datastore, the same default engine choice
// SPEC_FULL.md §3 wires `cmd/coredb` to.
func openDatastore(log *zap.Logger) (*coredb.Datastore, func() error, error) {
	store, err := boltkv.New(flagStorePath, flagBucketName)
	if err != nil {
		return nil, nil, err
	}

	// A fresh node id each launch means a restart looks like a new
	// cluster member until the old one expires; fine for a single-node
	// CLI instance, not for a long-lived multi-node deployment.
	nodeID, err := uuid.NewRandom()
	if err != nil {
		return nil, nil, err
	}

	ds := coredb.New(log, store, nil, coredb.WithNodeID(nodeID))
	return ds, store.Close, nil
}
