// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package coredb_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"storj.io/coredb"
	"storj.io/coredb/pkg/storage/memkv"
)

func TestBootstrapIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	id, err := uuid.NewRandom()
	require.NoError(t, err)
	ds := coredb.New(nil, store, nil, coredb.WithNodeID(id))

	require.NoError(t, ds.Bootstrap(ctx, "127.0.0.1:9000"))
	require.NoError(t, ds.Bootstrap(ctx, "127.0.0.1:9000"))
}
