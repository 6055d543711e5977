// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package engine_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/engine"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/session"
	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storage/memkv"
	"storj.io/coredb/pkg/storagekey"
)

func TestExportWritesSectionsInFixedOrder(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cache := catalog.NewCache(0, 0)

	tx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	acc := catalog.NewAccessor(tx, cache)

	ns, err := acc.DefineNamespace(ctx, "ns")
	require.NoError(t, err)
	db, err := acc.DefineDatabase(ctx, ns.ID, "db")
	require.NoError(t, err)
	tb, err := acc.DefineTable(ctx, ns.ID, db.ID, "person", catalog.TableNormal, true)
	require.NoError(t, err)
	_, err = acc.DefineField(ctx, ns.ID, db.ID, tb.ID, "name", "string")
	require.NoError(t, err)
	_, err = acc.DefineIndex(ctx, ns.ID, db.ID, tb.ID, "by_name", catalog.IndexUniqueBTree, []string{"name"})
	require.NoError(t, err)
	_, err = acc.DefineUser(ctx, "db:ns:db", "alice", "argon2$fake", []string{"owner"})
	require.NoError(t, err)

	ridKey := []byte("rid-1")
	recordKey := storagekey.RecordKey(tb.ID, ridKey)
	require.NoError(t, tx.Raw().Set(ctx, recordKey, storage.Value(`{"name":"alice"}`)))

	require.NoError(t, tx.Commit(ctx))

	e := engine.New(store, cache, nil, nil, nil, engine.Config{})
	var buf bytes.Buffer
	opts := session.New(uuid.Nil, session.NewCapabilities())
	err = e.Export(ctx, &buf, opts, "ns", "db", engine.DefaultExportConfig())
	require.NoError(t, err)

	out := buf.String()
	usersIdx := bytes.Index(buf.Bytes(), []byte("-- USERS"))
	accessesIdx := bytes.Index(buf.Bytes(), []byte("-- ACCESSES"))
	tablesIdx := bytes.Index(buf.Bytes(), []byte("-- TABLES"))
	require.True(t, usersIdx >= 0 && accessesIdx > usersIdx && tablesIdx > accessesIdx,
		"expected USERS < ACCESSES < TABLES section order, got: %s", out)

	require.Contains(t, out, `DEFINE USER alice ON db:ns:db PASSHASH "argon2$fake" ROLES owner;`)
	require.Contains(t, out, "DEFINE TABLE person TYPE NORMAL SCHEMAFULL=true;")
	require.Contains(t, out, "DEFINE FIELD name ON person TYPE string;")
	require.Contains(t, out, "DEFINE INDEX by_name ON person FIELDS name UNIQUE;")
	require.Contains(t, out, `INSERT INTO person [{"name":"alice"}];`)
}

func TestExportSplitsRelationRowsFromPlainRows(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cache := catalog.NewCache(0, 0)

	tx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	acc := catalog.NewAccessor(tx, cache)

	ns, err := acc.DefineNamespace(ctx, "ns")
	require.NoError(t, err)
	db, err := acc.DefineDatabase(ctx, ns.ID, "db")
	require.NoError(t, err)
	tb, err := acc.DefineTable(ctx, ns.ID, db.ID, "edge", catalog.TableRelation, false)
	require.NoError(t, err)

	require.NoError(t, tx.Raw().Set(ctx, storagekey.RecordKey(tb.ID, []byte("r1")), storage.Value(`{"name":"plain"}`)))
	require.NoError(t, tx.Raw().Set(ctx, storagekey.RecordKey(tb.ID, []byte("r2")), storage.Value(`{"in":"a","out":"b"}`)))
	require.NoError(t, tx.Commit(ctx))

	e := engine.New(store, cache, nil, nil, nil, engine.Config{})
	var buf bytes.Buffer
	opts := session.New(uuid.Nil, session.NewCapabilities())
	err = e.Export(ctx, &buf, opts, "ns", "db", engine.DefaultExportConfig())
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, `INSERT INTO edge [{"name":"plain"}];`)
	require.Contains(t, out, `INSERT RELATION INTO edge [{"in":"a","out":"b"}];`)
}

func TestExportEmitsEmptyHeadersForUnimplementedCollections(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	cache := catalog.NewCache(0, 0)

	tx, err := kvs.Begin(ctx, store, true, storage.Optimistic, kvs.Options{})
	require.NoError(t, err)
	acc := catalog.NewAccessor(tx, cache)
	ns, err := acc.DefineNamespace(ctx, "ns")
	require.NoError(t, err)
	_, err = acc.DefineDatabase(ctx, ns.ID, "db")
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	e := engine.New(store, cache, nil, nil, nil, engine.Config{})
	var buf bytes.Buffer
	opts := session.New(uuid.Nil, session.NewCapabilities())
	err = e.Export(ctx, &buf, opts, "ns", "db", engine.DefaultExportConfig())
	require.NoError(t, err)

	out := buf.String()
	for _, section := range []string{"PARAMS", "FUNCTIONS", "ANALYZERS", "SEQUENCES"} {
		require.Contains(t, out, "-- "+section)
	}
}
