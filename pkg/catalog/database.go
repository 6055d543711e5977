// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"fmt"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

func collDatabases(nsID uint64) string { return fmt.Sprintf("db:%d", nsID) }

// AllDatabases returns every database defined under namespace nsID.
func (a *Accessor) AllDatabases(ctx context.Context, nsID uint64) ([]Database, error) {
	rng := storage.ToPrefixRange(storagekey.DatabasePrefix(nsID))
	return cachedAll[Database](ctx, a, collDatabases(nsID), fmt.Sprintf("ns:%d", nsID), rng, 256)
}

// GetDatabase returns the database named name under namespace nsID.
func (a *Accessor) GetDatabase(ctx context.Context, nsID uint64, name string) (Database, bool, error) {
	all, err := a.AllDatabases(ctx, nsID)
	if err != nil {
		return Database{}, false, err
	}
	for _, db := range all {
		if db.Name == name {
			return db, true, nil
		}
	}
	return Database{}, false, nil
}

// ExpectDatabase returns the database or ErrDatabaseNotFound.
func (a *Accessor) ExpectDatabase(ctx context.Context, nsID uint64, name string) (Database, error) {
	db, ok, err := a.GetDatabase(ctx, nsID, name)
	if err != nil {
		return Database{}, err
	}
	if !ok {
		return Database{}, ErrDatabaseNotFound
	}
	return db, nil
}

// DefineDatabase creates a database under namespace nsID.
func (a *Accessor) DefineDatabase(ctx context.Context, nsID uint64, name string) (Database, error) {
	if _, ok, err := a.GetDatabase(ctx, nsID, name); err != nil {
		return Database{}, err
	} else if ok {
		return Database{}, ErrDatabaseExists
	}
	id, err := a.nextSequence(ctx, fmt.Sprintf("db:%d", nsID))
	if err != nil {
		return Database{}, err
	}
	db := Database{ID: id, Name: name}
	val, err := encode(db)
	if err != nil {
		return Database{}, err
	}
	if err := a.tx.Raw().Put(ctx, storagekey.DatabaseKey(nsID, name), val); err != nil {
		return Database{}, err
	}
	a.bump(collDatabases(nsID))
	return db, nil
}

// GetOrAddDatabase implements get_or_add_db per spec.md §4.3.
func (a *Accessor) GetOrAddDatabase(ctx context.Context, nsID uint64, name string, strict bool) (Database, error) {
	db, ok, err := a.GetDatabase(ctx, nsID, name)
	if err != nil {
		return Database{}, err
	}
	if ok {
		return db, nil
	}
	if strict {
		return Database{}, ErrDatabaseNotFound
	}
	return a.DefineDatabase(ctx, nsID, name)
}

// RemoveDatabase deletes the database definition and every table
// nested under it.
func (a *Accessor) RemoveDatabase(ctx context.Context, nsID uint64, name string) error {
	db, err := a.ExpectDatabase(ctx, nsID, name)
	if err != nil {
		return err
	}
	if err := storage.DeletePrefix(ctx, a.tx.Raw(), storagekey.TablePrefix(nsID, db.ID)); err != nil {
		return fmt.Errorf("removing tables under database %q: %w", name, err)
	}
	if err := a.tx.Raw().Del(ctx, storagekey.DatabaseKey(nsID, name)); err != nil {
		return err
	}
	a.bump(collDatabases(nsID))
	return nil
}

// CheckNsDbTb is the strict-mode resolution helper from spec.md §4.4:
// it resolves the namespace, then the database, then the table, and
// returns the error of the first level that is missing (namespace-missing
// vs database-missing vs table-missing). The happy path does one lookup
// per level, each needed anyway to obtain the next level's parent id.
func (a *Accessor) CheckNsDbTb(ctx context.Context, ns, db, tb string) (Namespace, Database, Table, error) {
	nsRec, err := a.ExpectNamespace(ctx, ns)
	if err != nil {
		return Namespace{}, Database{}, Table{}, err
	}
	dbRec, err := a.ExpectDatabase(ctx, nsRec.ID, db)
	if err != nil {
		return Namespace{}, Database{}, Table{}, err
	}
	tbRec, err := a.ExpectTable(ctx, nsRec.ID, dbRec.ID, tb)
	if err != nil {
		return Namespace{}, Database{}, Table{}, err
	}
	return nsRec, dbRec, tbRec, nil
}
