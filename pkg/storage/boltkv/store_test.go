// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package boltkv_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storage/boltkv"
	"storj.io/coredb/pkg/storage/storagetest"
)

func TestSuite(t *testing.T) {
	storagetest.RunSuite(t, func(t *testing.T) storage.Store {
		dbname := filepath.Join(t.TempDir(), "bolt.db")
		store, err := boltkv.New(dbname, "bucket")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}
