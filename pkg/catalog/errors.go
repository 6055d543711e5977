// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import "storj.io/coredb/pkg/errs2"

// ErrNamespaceNotFound, etc. are the typed not-found errors ExpectX
// returns, per spec.md §4.3 "expect_X returns a typed not-found error".
var (
	ErrNamespaceNotFound = errs2.NsNotFound.New("namespace not found")
	ErrDatabaseNotFound  = errs2.DbNotFound.New("database not found")
	ErrTableNotFound     = errs2.TbNotFound.New("table not found")
	ErrFieldNotFound     = errs2.NotFound.New("field not found")
	ErrIndexNotFound     = errs2.NotFound.New("index not found")
	ErrEventNotFound     = errs2.NotFound.New("event not found")
	ErrUserNotFound      = errs2.NotFound.New("user not found")
	ErrAccessNotFound    = errs2.AccessNotFound.New("access method not found")
	ErrSequenceNotFound  = errs2.NotFound.New("sequence not found")
	ErrGrantNotFound     = errs2.NotFound.New("grant not found")
	ErrSubscriptionNotFound = errs2.NotFound.New("live query subscription not found")

	ErrNamespaceExists = errs2.AlreadyExists.New("namespace already exists")
	ErrDatabaseExists  = errs2.AlreadyExists.New("database already exists")
	ErrTableExists     = errs2.AlreadyExists.New("table already exists")
	ErrFieldExists     = errs2.AlreadyExists.New("field already exists")
	ErrIndexExists     = errs2.AlreadyExists.New("index already exists")
	ErrEventExists     = errs2.AlreadyExists.New("event already exists")
	ErrUserExists      = errs2.AlreadyExists.New("user already exists")
	ErrAccessExists    = errs2.AlreadyExists.New("access method already exists")

	// ErrNsEmpty/ErrDbEmpty back spec.md §4.5 selected_base's
	// "(None, Some(_)) is an error" rule: a database was selected
	// without a namespace.
	ErrNsEmpty = errs2.NsEmpty.New("namespace not selected")
	ErrDbEmpty = errs2.DbEmpty.New("database not selected")
)
