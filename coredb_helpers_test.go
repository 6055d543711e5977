// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package coredb_test

import (
	"github.com/google/uuid"

	"storj.io/coredb/pkg/session"
)

func sessionOptsForTest() session.Options {
	return session.New(uuid.Nil, session.NewCapabilities())
}
