// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"fmt"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

func collEvents(tbID uint64) string { return fmt.Sprintf("ev:%d", tbID) }

// AllEvents returns every trigger defined on table tbID.
func (a *Accessor) AllEvents(ctx context.Context, nsID, dbID, tbID uint64) ([]Event, error) {
	rng := storage.ToPrefixRange(storagekey.EventPrefix(nsID, dbID, tbID))
	return cachedAll[Event](ctx, a, collEvents(tbID), fmt.Sprintf("tb:%d", tbID), rng, 128)
}

// GetEvent returns the event named name on table tbID.
func (a *Accessor) GetEvent(ctx context.Context, nsID, dbID, tbID uint64, name string) (Event, bool, error) {
	all, err := a.AllEvents(ctx, nsID, dbID, tbID)
	if err != nil {
		return Event{}, false, err
	}
	for _, ev := range all {
		if ev.Name == name {
			return ev, true, nil
		}
	}
	return Event{}, false, nil
}

// ExpectEvent returns the event or ErrEventNotFound.
func (a *Accessor) ExpectEvent(ctx context.Context, nsID, dbID, tbID uint64, name string) (Event, error) {
	ev, ok, err := a.GetEvent(ctx, nsID, dbID, tbID, name)
	if err != nil {
		return Event{}, err
	}
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return ev, nil
}

// DefineEvent creates the named trigger, failing if one already exists.
func (a *Accessor) DefineEvent(ctx context.Context, nsID, dbID, tbID uint64, name, when, then string) (Event, error) {
	if _, ok, err := a.GetEvent(ctx, nsID, dbID, tbID, name); err != nil {
		return Event{}, err
	} else if ok {
		return Event{}, ErrEventExists
	}
	ev := Event{Name: name, When: when, Then: then}
	val, err := encode(ev)
	if err != nil {
		return Event{}, err
	}
	if err := a.tx.Raw().Put(ctx, storagekey.EventKey(nsID, dbID, tbID, name), val); err != nil {
		return Event{}, err
	}
	a.bump(collEvents(tbID))
	return ev, nil
}

// RemoveEvent deletes a single event definition.
func (a *Accessor) RemoveEvent(ctx context.Context, nsID, dbID, tbID uint64, name string) error {
	if _, err := a.ExpectEvent(ctx, nsID, dbID, tbID, name); err != nil {
		return err
	}
	if err := a.tx.Raw().Del(ctx, storagekey.EventKey(nsID, dbID, tbID, name)); err != nil {
		return err
	}
	a.bump(collEvents(tbID))
	return nil
}
