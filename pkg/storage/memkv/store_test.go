// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package memkv_test

import (
	"testing"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storage/memkv"
	"storj.io/coredb/pkg/storage/storagetest"
)

func TestSuite(t *testing.T) {
	storagetest.RunSuite(t, func(t *testing.T) storage.Store {
		return memkv.New()
	})
}
