// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package coredb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/coredb"
	"storj.io/coredb/pkg/errs2"
)

func TestErrorPredicates(t *testing.T) {
	require.True(t, coredb.IsNotFound(errs2.NotFound.New("x")))
	require.True(t, coredb.IsNotFound(errs2.TbNotFound.New("x")))
	require.True(t, coredb.IsAlreadyExists(errs2.AlreadyExists.New("x")))
	require.True(t, coredb.IsInvalidAuth(errs2.ErrInvalidAuth))
	require.True(t, coredb.IsQueryTimedout(errs2.QueryTimedout.New("x")))
	require.True(t, coredb.IsQueryCancelled(errs2.QueryCancelled.New("x")))
	require.True(t, coredb.IsOutdatedStorageVersion(errs2.OutdatedStorageVersion.New("x")))

	require.False(t, coredb.IsNotFound(errs2.Internal.New("x")))
}

func TestAsThrownRoundTrips(t *testing.T) {
	err := errs2.NewThrown("custom message")
	thrown, ok := coredb.AsThrown(err)
	require.True(t, ok)
	require.Equal(t, "custom message", thrown.Message)
}
