// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package coredb

import (
	"context"
	"time"

	"storj.io/coredb/pkg/cluster"
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
)

// Bootstrap registers this process's node and sweeps stale ones, per
// spec.md §6's "bootstrap() — idempotent: insert node, expire nodes,
// remove nodes." It is safe to call on every process start and on a
// recurring tick; each step tolerates having already run.
func (ds *Datastore) Bootstrap(ctx context.Context, address string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := ds.CheckVersion(ctx); err != nil {
		return err
	}

	tx, err := kvs.Begin(ctx, ds.store, true, storage.Optimistic, kvs.Options{Log: ds.log})
	if err != nil {
		return errs2.Kvs.Wrap(err)
	}
	if err := ds.cluster.InsertNode(ctx, tx, ds.nodeID.String(), address, time.Now()); err != nil {
		if !errs2.AlreadyExists.Has(err) {
			_ = tx.Cancel(ctx)
			return err
		}
		// Already registered from a previous Bootstrap call on this
		// process: refresh the heartbeat instead, keeping Bootstrap
		// idempotent across restarts and recurring ticks.
		if err := ds.cluster.UpdateNode(ctx, tx, ds.nodeID.String(), time.Now()); err != nil {
			_ = tx.Cancel(ctx)
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errs2.Kvs.Wrap(err)
	}

	if _, err := ds.cluster.ExpireNodes(ctx, time.Now()); err != nil {
		return err
	}
	if _, err := ds.cluster.RemoveNodes(ctx, cluster.ResolveByName); err != nil {
		return err
	}
	return nil
}
