// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"fmt"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

const collNamespaces = "ns"

// AllNamespaces returns every namespace definition, reading through the
// transaction and cross-transaction caches (spec.md §4.4).
func (a *Accessor) AllNamespaces(ctx context.Context) ([]Namespace, error) {
	rng := storage.ToPrefixRange(storagekey.NamespacePrefix())
	return cachedAll[Namespace](ctx, a, collNamespaces, "root", rng, 256)
}

// GetNamespace returns the namespace named name, or ok=false if absent.
func (a *Accessor) GetNamespace(ctx context.Context, name string) (Namespace, bool, error) {
	all, err := a.AllNamespaces(ctx)
	if err != nil {
		return Namespace{}, false, err
	}
	for _, ns := range all {
		if ns.Name == name {
			return ns, true, nil
		}
	}
	return Namespace{}, false, nil
}

// ExpectNamespace returns the namespace named name or ErrNamespaceNotFound.
func (a *Accessor) ExpectNamespace(ctx context.Context, name string) (Namespace, error) {
	ns, ok, err := a.GetNamespace(ctx, name)
	if err != nil {
		return Namespace{}, err
	}
	if !ok {
		return Namespace{}, ErrNamespaceNotFound
	}
	return ns, nil
}

// DefineNamespace creates a namespace, failing with ErrNamespaceExists
// if it is already defined. The caller must Commit the owning
// transaction for the bump to be observed by others.
func (a *Accessor) DefineNamespace(ctx context.Context, name string) (Namespace, error) {
	if _, ok, err := a.GetNamespace(ctx, name); err != nil {
		return Namespace{}, err
	} else if ok {
		return Namespace{}, ErrNamespaceExists
	}

	id, err := a.nextSequence(ctx, "ns")
	if err != nil {
		return Namespace{}, err
	}
	ns := Namespace{ID: id, Name: name}
	val, err := encode(ns)
	if err != nil {
		return Namespace{}, err
	}
	if err := a.tx.Raw().Put(ctx, storagekey.NamespaceKey(name), val); err != nil {
		return Namespace{}, err
	}
	a.bump(collNamespaces)
	return ns, nil
}

// GetOrAddNamespace implements spec.md §4.3's get_or_add_ns: in strict
// mode a missing namespace is an error; in lenient mode it is
// materialized with Put and cached.
func (a *Accessor) GetOrAddNamespace(ctx context.Context, name string, strict bool) (Namespace, error) {
	ns, ok, err := a.GetNamespace(ctx, name)
	if err != nil {
		return Namespace{}, err
	}
	if ok {
		return ns, nil
	}
	if strict {
		return Namespace{}, ErrNamespaceNotFound
	}
	return a.DefineNamespace(ctx, name)
}

// RemoveNamespace deletes the namespace definition and the database
// definitions nested under it (the DatabasePrefix range). Tables,
// fields, indexes, events and records under those databases are not
// deleted.
func (a *Accessor) RemoveNamespace(ctx context.Context, name string) error {
	ns, err := a.ExpectNamespace(ctx, name)
	if err != nil {
		return err
	}
	if err := storage.DeletePrefix(ctx, a.tx.Raw(), storagekey.DatabasePrefix(ns.ID)); err != nil {
		return fmt.Errorf("removing databases under namespace %q: %w", name, err)
	}
	if err := a.tx.Raw().Del(ctx, storagekey.NamespaceKey(name)); err != nil {
		return err
	}
	a.bump(collNamespaces)
	return nil
}
