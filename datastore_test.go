// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package coredb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/coredb"
	"storj.io/coredb/internal/coredbtest"
	"storj.io/coredb/pkg/engine"
)

func TestInitialiseCredentialsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ds := coredbtest.Run(t, nil)

	require.NoError(t, ds.InitialiseCredentials(ctx, "root", "hunter2"))
	// A second call must not fail or create a second root user.
	require.NoError(t, ds.InitialiseCredentials(ctx, "root", "different-password"))

	tx, err := ds.Transaction(ctx, false, 0)
	require.NoError(t, err)
	acc := ds.Accessor(tx)
	users, err := acc.AllUsers(ctx, "root")
	require.NoError(t, err)
	require.NoError(t, tx.Cancel(ctx))

	require.Len(t, users, 1)
	require.Equal(t, "root", users[0].Name)
}

func TestInitialiseDefaultsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ds := coredbtest.Run(t, nil)

	require.NoError(t, ds.InitialiseDefaults(ctx, "default", "default"))
	require.NoError(t, ds.InitialiseDefaults(ctx, "default", "default"))

	tx, err := ds.Transaction(ctx, false, 0)
	require.NoError(t, err)
	acc := ds.Accessor(tx)
	nsRec, err := acc.ExpectNamespace(ctx, "default")
	require.NoError(t, err)
	_, err = acc.ExpectDatabase(ctx, nsRec.ID, "default")
	require.NoError(t, err)
	require.NoError(t, tx.Cancel(ctx))
}

func TestNotificationsNilWhenDisabled(t *testing.T) {
	ds := coredbtest.Run(t, nil, coredb.WithNotifications(false))
	require.Nil(t, ds.Notifications())
}

func TestNotificationsHubWhenEnabled(t *testing.T) {
	ds := coredbtest.Run(t, nil)
	require.NotNil(t, ds.Notifications())
}

// fakeStatement is a minimal engine.Statement for exercising
// Datastore.Execute without a real grammar.
type fakeStatement struct {
	value interface{}
}

func (s fakeStatement) ReadOnly() bool { return true }

func (s fakeStatement) Execute(ctx context.Context, ec *engine.ExecContext) (interface{}, error) {
	return s.value, nil
}

type fakeDatastoreParser struct{}

func (fakeDatastoreParser) Parse(src string) (engine.Plan, error) {
	return engine.Plan{Statements: []engine.Statement{fakeStatement{value: src}}}, nil
}

func TestExecuteDelegatesToEngine(t *testing.T) {
	ctx := context.Background()
	ds := coredbtest.Run(t, fakeDatastoreParser{})

	results, err := ds.Execute(ctx, "anything", sessionOptsForTest(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "OK", results[0].Status)
	require.Equal(t, "anything", results[0].Result)
}
