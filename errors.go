// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package coredb

import "storj.io/coredb/pkg/errs2"

// The execution entry points (Execute, ProcessPlan, Evaluate, ...)
// already funnel every error through pkg/engine's translation layer
// onto the closed taxonomy described in spec.md §7 before returning
// it; these helpers let a caller classify a returned error without
// importing pkg/errs2 directly.

// IsNotFound reports whether err is a namespace/database/table/record
// not-found error.
func IsNotFound(err error) bool {
	return errs2.NotFound.Has(err) || errs2.NsNotFound.Has(err) || errs2.DbNotFound.Has(err) || errs2.TbNotFound.Has(err)
}

// IsAlreadyExists reports whether err is a definition-already-exists
// conflict.
func IsAlreadyExists(err error) bool { return errs2.AlreadyExists.Has(err) }

// IsInvalidAuth reports whether err is any authorization failure.
// Per spec.md §7, every auth failure that is not explicitly a user
// error collapses to this one sentinel to avoid leaking grant
// existence/state.
func IsInvalidAuth(err error) bool { return err == errs2.ErrInvalidAuth || errs2.InvalidAuthClass.Has(err) }

// IsQueryTimedout reports whether err is a query-timeout error.
func IsQueryTimedout(err error) bool { return errs2.QueryTimedout.Has(err) }

// IsQueryCancelled reports whether err is a query-cancellation error.
func IsQueryCancelled(err error) bool { return errs2.QueryCancelled.Has(err) }

// IsOutdatedStorageVersion reports whether err came from CheckVersion
// finding an on-disk storage format older or newer than this build
// expects.
func IsOutdatedStorageVersion(err error) bool { return errs2.OutdatedStorageVersion.Has(err) }

// AsThrown unwraps a user-raised *errs2.Thrown, the single error
// variant that crosses the execution boundary unchanged so an
// application can observe its own authenticate/signin message
// verbatim.
func AsThrown(err error) (*errs2.Thrown, bool) { return errs2.AsThrown(err) }
