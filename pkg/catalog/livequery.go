// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"fmt"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

// Subscriptions are stored twice under two different prefixes — once
// keyed by owning node (for archival/GC when a node disappears, C8)
// and once keyed by the subscribed table (for commit-time dispatch,
// C10) — so neither path needs a full scan to find its slice. Both
// copies carry identical payloads and must be written/removed
// together.

func collLiveByNode(nodeID string) string { return "lq:nd:" + nodeID }
func collLiveByTable(tbID uint64) string  { return fmt.Sprintf("lq:tb:%d", tbID) }

// AllLiveByNode returns every subscription owned by nodeID.
func (a *Accessor) AllLiveByNode(ctx context.Context, nodeID string) ([]Subscription, error) {
	rng := storage.ToPrefixRange(storagekey.LiveByNodePrefix(nodeID))
	return cachedAll[Subscription](ctx, a, collLiveByNode(nodeID), nodeID, rng, 256)
}

// AllLiveByTable returns every subscription against table tbID, used
// by the commit path to decide who to notify (C10).
func (a *Accessor) AllLiveByTable(ctx context.Context, tbID uint64) ([]Subscription, error) {
	rng := storage.ToPrefixRange(storagekey.LiveByTablePrefix(tbID))
	return cachedAll[Subscription](ctx, a, collLiveByTable(tbID), fmt.Sprintf("tb:%d", tbID), rng, 256)
}

// DefineSubscription persists a live query under both indexes.
func (a *Accessor) DefineSubscription(ctx context.Context, tbID uint64, sub Subscription) error {
	val, err := encode(sub)
	if err != nil {
		return err
	}
	raw := a.tx.Raw()
	if err := raw.Put(ctx, storagekey.LiveByNodeKey(sub.NodeID, sub.ID), val); err != nil {
		return err
	}
	if err := raw.Put(ctx, storagekey.LiveByTableKey(tbID, sub.ID), val); err != nil {
		return err
	}
	a.bump(collLiveByNode(sub.NodeID))
	a.bump(collLiveByTable(tbID))
	return nil
}

// RemoveSubscription deletes both copies of a subscription.
func (a *Accessor) RemoveSubscription(ctx context.Context, tbID uint64, nodeID, liveID string) error {
	raw := a.tx.Raw()
	if err := raw.Del(ctx, storagekey.LiveByNodeKey(nodeID, liveID)); err != nil && !storage.ErrKeyNotFound.Has(err) {
		return err
	}
	if err := raw.Del(ctx, storagekey.LiveByTableKey(tbID, liveID)); err != nil && !storage.ErrKeyNotFound.Has(err) {
		return err
	}
	a.bump(collLiveByNode(nodeID))
	a.bump(collLiveByTable(tbID))
	return nil
}

// ArchiveNodeSubscriptions removes every subscription owned by nodeID,
// used by C8's remove_nodes teardown when a node is confirmed gone.
// Returns the removed subscriptions so callers can also cancel any
// locally-registered notify.Sender for those ids.
func (a *Accessor) ArchiveNodeSubscriptions(ctx context.Context, nodeID string, tableOf func(Subscription) (uint64, error)) ([]Subscription, error) {
	subs, err := a.AllLiveByNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		tbID, err := tableOf(sub)
		if err != nil {
			return nil, err
		}
		if err := a.RemoveSubscription(ctx, tbID, nodeID, sub.ID); err != nil {
			return nil, err
		}
	}
	return subs, nil
}
