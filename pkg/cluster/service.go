// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package cluster implements cluster membership and live-query garbage
// collection (C8): node heartbeat/archival/removal, a defensive
// live-query sweep, and a lease handler for distributed background
// tasks, per spec.md §4.8. Its background loops (ExpireNodes,
// RemoveNodes, GarbageCollectLiveQueries) are meant to be driven by an
// external tick scheduler, matching spec.md §5's "driven externally"
// framing — this package only implements what each tick does.
package cluster

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

var mon = monkit.Package()

// TableResolver maps a persisted Subscription back to the numeric table
// id its per-table live-query key is stored under. It is handed the
// Accessor bound to the caller's own transaction so the lookup is
// consistent with whatever else that transaction observes.
type TableResolver func(ctx context.Context, acc *catalog.Accessor, sub catalog.Subscription) (uint64, error)

// ResolveByName is the default TableResolver: it looks the
// subscription's namespace/database/table names up through the
// catalog, the way a LIVE statement would have resolved them when the
// subscription was created.
func ResolveByName(ctx context.Context, acc *catalog.Accessor, sub catalog.Subscription) (uint64, error) {
	_, _, tb, err := acc.CheckNsDbTb(ctx, sub.Namespace, sub.Database, sub.Table)
	if err != nil {
		return 0, err
	}
	return tb.ID, nil
}

// Service holds the configuration shared by every background loop:
// the substrate to open its own transactions against, the catalog
// cache to read/write live-query subscriptions through, and how long a
// node may go without a heartbeat before it is presumed dead.
type Service struct {
	store  storage.Store
	cache  *catalog.Cache
	log    *zap.Logger
	expiry time.Duration
}

// NewService creates a cluster Service. expiry is the heartbeat
// staleness threshold ExpireNodes applies (spec.md §4.8 suggests ~30s).
func NewService(store storage.Store, cache *catalog.Cache, log *zap.Logger, expiry time.Duration) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, cache: cache, log: log, expiry: expiry}
}

// InsertNode registers this node at startup.
func (s *Service) InsertNode(ctx context.Context, tx *kvs.Transaction, id, address string, now time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	if _, ok, err := getNode(ctx, tx, id); err != nil {
		return err
	} else if ok {
		return ErrNodeExists
	}
	return putNode(ctx, tx, Node{ID: id, Address: address, Heartbeat: now, Status: NodeActive})
}

// UpdateNode refreshes this node's heartbeat.
func (s *Service) UpdateNode(ctx context.Context, tx *kvs.Transaction, id string, now time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)
	n, ok, err := getNode(ctx, tx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNodeNotFound
	}
	n.Heartbeat = now
	return putNode(ctx, tx, n)
}

// DeleteNode transitions the node to archived on shutdown. It is not a
// range delete — RemoveNodes finishes the teardown once it is safe to
// do so, per spec.md §4.8.
func (s *Service) DeleteNode(ctx context.Context, tx *kvs.Transaction, id string) (err error) {
	defer mon.Task()(&ctx)(&err)
	n, ok, err := getNode(ctx, tx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNodeNotFound
	}
	n.Status = NodeArchived
	return putNode(ctx, tx, n)
}

// ExpireNodes scans every node record and archives any active node
// whose heartbeat is older than the service's configured expiry.
func (s *Service) ExpireNodes(ctx context.Context, now time.Time) (expired []string, err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := kvs.Begin(ctx, s.store, true, storage.Optimistic, kvs.Options{Log: s.log})
	if err != nil {
		return nil, err
	}

	nodes, err := allNodes(ctx, tx.Raw())
	if err != nil {
		_ = tx.Cancel(ctx)
		return nil, err
	}

	for _, n := range nodes {
		if n.Status != NodeActive || now.Sub(n.Heartbeat) < s.expiry {
			continue
		}
		n.Status = NodeArchived
		if err := putNode(ctx, tx, n); err != nil {
			_ = tx.Cancel(ctx)
			return nil, err
		}
		expired = append(expired, n.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return expired, nil
}

// RemoveNodes finishes tearing down every archived node: its live
// queries (both the per-node and per-table copies) and finally its own
// record. Each node's teardown is its own transaction, so the sweep
// naturally yields between nodes.
func (s *Service) RemoveNodes(ctx context.Context, resolve TableResolver) (removed []string, err error) {
	defer mon.Task()(&ctx)(&err)

	if resolve == nil {
		resolve = ResolveByName
	}

	tx, err := kvs.Begin(ctx, s.store, false, storage.Optimistic, kvs.Options{Log: s.log})
	if err != nil {
		return nil, err
	}
	nodes, err := allNodes(ctx, tx.Raw())
	_ = tx.Cancel(ctx)
	if err != nil {
		return nil, err
	}

	for _, n := range nodes {
		if n.Status != NodeArchived {
			continue
		}
		if err := s.removeOneNode(ctx, n.ID, resolve); err != nil {
			return removed, err
		}
		removed = append(removed, n.ID)
	}
	return removed, nil
}

func (s *Service) removeOneNode(ctx context.Context, nodeID string, resolve TableResolver) error {
	tx, err := kvs.Begin(ctx, s.store, true, storage.Optimistic, kvs.Options{Log: s.log})
	if err != nil {
		return err
	}
	acc := catalog.NewAccessor(tx, s.cache)

	if _, err := acc.ArchiveNodeSubscriptions(ctx, nodeID, func(sub catalog.Subscription) (uint64, error) {
		return resolve(ctx, acc, sub)
	}); err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	if err := tx.Raw().Del(ctx, storagekey.NodeKey(nodeID)); err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GarbageCollectLiveQueries is the defensive sweep: it walks every
// table's live-query prefix directly and drops any subscription whose
// owning node is archived or unknown, catching whatever an earlier,
// incomplete RemoveNodes run left behind.
func (s *Service) GarbageCollectLiveQueries(ctx context.Context) (removed int, err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := kvs.Begin(ctx, s.store, true, storage.Optimistic, kvs.Options{Log: s.log})
	if err != nil {
		return 0, err
	}
	acc := catalog.NewAccessor(tx, s.cache)

	nodes, err := allNodes(ctx, tx.Raw())
	if err != nil {
		_ = tx.Cancel(ctx)
		return 0, err
	}
	gone := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		gone[n.ID] = n.Status == NodeArchived
	}

	namespaces, err := acc.AllNamespaces(ctx)
	if err != nil {
		_ = tx.Cancel(ctx)
		return 0, err
	}

	for _, ns := range namespaces {
		dbs, err := acc.AllDatabases(ctx, ns.ID)
		if err != nil {
			_ = tx.Cancel(ctx)
			return 0, err
		}
		for _, db := range dbs {
			tables, err := acc.AllTables(ctx, ns.ID, db.ID)
			if err != nil {
				_ = tx.Cancel(ctx)
				return 0, err
			}
			for _, tb := range tables {
				subs, err := acc.AllLiveByTable(ctx, tb.ID)
				if err != nil {
					_ = tx.Cancel(ctx)
					return 0, err
				}
				for _, sub := range subs {
					archived, known := gone[sub.NodeID]
					if known && !archived {
						continue
					}
					if err := acc.RemoveSubscription(ctx, tb.ID, sub.NodeID, sub.ID); err != nil {
						_ = tx.Cancel(ctx)
						return 0, err
					}
					removed++
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}

// DeleteQueries is the session-shutdown path: for each of ids owned by
// nodeID, it deletes both the per-node and per-table keys under the
// caller-supplied transaction.
func (s *Service) DeleteQueries(ctx context.Context, tx *kvs.Transaction, nodeID string, ids []string, resolve TableResolver) (err error) {
	defer mon.Task()(&ctx)(&err)

	if resolve == nil {
		resolve = ResolveByName
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	acc := catalog.NewAccessor(tx, s.cache)
	subs, err := acc.AllLiveByNode(ctx, nodeID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if !want[sub.ID] {
			continue
		}
		tbID, err := resolve(ctx, acc, sub)
		if err != nil {
			return err
		}
		if err := acc.RemoveSubscription(ctx, tbID, nodeID, sub.ID); err != nil {
			return err
		}
	}
	return nil
}
