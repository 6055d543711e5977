// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package indexbuild_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/indexbuild"
	"storj.io/coredb/pkg/storage/memkv"
)

func TestGetStatusUnknownIndex(t *testing.T) {
	reg := indexbuild.NewRegistry(memkv.New(), nil)
	_, ok := reg.GetStatus(1, 1, 1, 1)
	require.False(t, ok)
}

func TestConsumeWithNoBuildIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	reg := indexbuild.NewRegistry(store, nil)

	outcome, err := reg.Consume(ctx, nil, 1, 1, tbID, ixID, []byte("rec1"), nil, []byte("v"))
	require.NoError(t, err)
	require.Equal(t, indexbuild.Ignored, outcome)
}

func TestRemoveIndexAbortsInFlightBuild(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	putRecord(t, store, "rec1", "alice")

	unblock := make(chan struct{})
	reg := indexbuild.NewRegistry(store, nil)
	ix := catalog.Index{ID: ixID, Name: "by_name", TableID: tbID}

	done, err := reg.Build(ctx, nsID, dbID, tbID, ix, &stubComputer{unblock: unblock}, true)
	require.NoError(t, err)

	reg.RemoveIndex(nsID, dbID, tbID, ixID)
	close(unblock)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("build did not finish")
	}

	progress, ok := reg.GetStatus(nsID, dbID, tbID, ixID)
	require.True(t, ok)
	require.Equal(t, indexbuild.StatusAborted, progress.Status)
}
