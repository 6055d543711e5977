// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package cluster

import (
	"context"
	"encoding/json"
	"time"

	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

// NodeStatus is a cluster node's membership state.
type NodeStatus int

const (
	NodeActive NodeStatus = iota
	NodeArchived
)

// Node is one cluster member's heartbeat record.
type Node struct {
	ID        string
	Address   string
	Heartbeat time.Time
	Status    NodeStatus
}

// ErrNodeExists is returned by InsertNode when id is already registered
// — insert_node is written via Put, so a duplicate id surfaces as this
// typed error rather than silently overwriting, per spec.md §4.8.
var ErrNodeExists = errs2.AlreadyExists.New("cluster id already exists")

// ErrNodeNotFound is returned by UpdateNode/DeleteNode for an unknown
// node id.
var ErrNodeNotFound = errs2.NotFound.New("node not found")

func encodeNode(n Node) (storage.Value, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, errs2.Internal.Wrap(err)
	}
	return storage.Value(b), nil
}

func decodeNode(data storage.Value) (Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return Node{}, errs2.Internal.Wrap(err)
	}
	return n, nil
}

func getNode(ctx context.Context, tx *kvs.Transaction, id string) (Node, bool, error) {
	data, err := tx.Raw().Get(ctx, storagekey.NodeKey(id), storage.NoVersion)
	if storage.ErrKeyNotFound.Has(err) {
		return Node{}, false, nil
	}
	if err != nil {
		return Node{}, false, err
	}
	n, err := decodeNode(data)
	if err != nil {
		return Node{}, false, err
	}
	return n, true, nil
}

func putNode(ctx context.Context, tx *kvs.Transaction, n Node) error {
	val, err := encodeNode(n)
	if err != nil {
		return err
	}
	return tx.Raw().Set(ctx, storagekey.NodeKey(n.ID), val)
}

func allNodes(ctx context.Context, tx storage.Txn) ([]Node, error) {
	rng := storage.ToPrefixRange(storagekey.NodePrefix())
	kvsList, err := storage.GetRange(ctx, tx, rng)
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(kvsList))
	for _, kv := range kvsList {
		n, err := decodeNode(kv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
