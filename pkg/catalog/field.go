// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"fmt"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

func collFields(tbID uint64) string { return fmt.Sprintf("fd:%d", tbID) }

// AllFields returns every field defined on table tbID.
func (a *Accessor) AllFields(ctx context.Context, nsID, dbID, tbID uint64) ([]Field, error) {
	rng := storage.ToPrefixRange(storagekey.FieldPrefix(nsID, dbID, tbID))
	return cachedAll[Field](ctx, a, collFields(tbID), fmt.Sprintf("tb:%d", tbID), rng, 128)
}

// GetField returns the field named name on table tbID.
func (a *Accessor) GetField(ctx context.Context, nsID, dbID, tbID uint64, name string) (Field, bool, error) {
	all, err := a.AllFields(ctx, nsID, dbID, tbID)
	if err != nil {
		return Field{}, false, err
	}
	for _, fd := range all {
		if fd.Name == name {
			return fd, true, nil
		}
	}
	return Field{}, false, nil
}

// ExpectField returns the field or ErrFieldNotFound.
func (a *Accessor) ExpectField(ctx context.Context, nsID, dbID, tbID uint64, name string) (Field, error) {
	fd, ok, err := a.GetField(ctx, nsID, dbID, tbID, name)
	if err != nil {
		return Field{}, err
	}
	if !ok {
		return Field{}, ErrFieldNotFound
	}
	return fd, nil
}

// DefineField creates or replaces the field named name on table tbID.
// Unlike namespaces/databases/tables, redefining a field (changing its
// type expression) is a normal schema-evolution operation, not an
// error, per spec.md §3's field semantics.
func (a *Accessor) DefineField(ctx context.Context, nsID, dbID, tbID uint64, name, typeExpr string) (Field, error) {
	fd := Field{Name: name, Type: typeExpr}
	val, err := encode(fd)
	if err != nil {
		return Field{}, err
	}
	if err := a.tx.Raw().Set(ctx, storagekey.FieldKey(nsID, dbID, tbID, name), val); err != nil {
		return Field{}, err
	}
	a.bump(collFields(tbID))
	return fd, nil
}

// RemoveField deletes a single field definition.
func (a *Accessor) RemoveField(ctx context.Context, nsID, dbID, tbID uint64, name string) error {
	if _, err := a.ExpectField(ctx, nsID, dbID, tbID, name); err != nil {
		return err
	}
	if err := a.tx.Raw().Del(ctx, storagekey.FieldKey(nsID, dbID, tbID, name)); err != nil {
		return err
	}
	a.bump(collFields(tbID))
	return nil
}
