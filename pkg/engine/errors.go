// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package engine

import (
	"context"
	"errors"

	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/storage"
)

// translate funnels an internal error through to the closed taxonomy
// of spec.md §7 before it leaves the core, exactly as
// original_source's execution entry point does at the C9 boundary. A
// *errs2.Thrown from a user-level expression is returned unchanged so
// applications see their own message verbatim; context errors become
// the query-level taxonomy members; anything already a recognized
// errs2 class passes through; everything else collapses to Internal.
func translate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errs2.AsThrown(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs2.QueryTimedout.Wrap(err)
	}
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return errs2.QueryCancelled.Wrap(err)
	}
	if errs2.ErrInvalidAuth == err || isAnyKnownClass(err) {
		return err
	}
	if storage.ErrKeyNotFound.Has(err) {
		return errs2.NotFound.Wrap(err)
	}
	if storage.ErrKeyExists.Has(err) {
		return errs2.AlreadyExists.Wrap(err)
	}
	return errs2.Internal.Wrap(err)
}

// isAnyKnownClass reports whether err was already raised through one
// of this module's own errs2 classes, in which case it is left as-is
// rather than double-wrapped.
func isAnyKnownClass(err error) bool {
	classes := []interface {
		Has(error) bool
	}{
		errs2.ParseErrorClass, errs2.InvalidRequest, errs2.InvalidParams, errs2.InvalidAuthClass,
		errs2.ExpiredSession, errs2.UnexpectedAuth, errs2.AccessNotFound, errs2.AccessMethodMismatch,
		errs2.AccessBearerMissingKey, errs2.AccessGrantBearerInvalid,
		errs2.NsEmpty, errs2.DbEmpty, errs2.NsNotFound, errs2.DbNotFound, errs2.TbNotFound,
		errs2.NotFound, errs2.AlreadyExists, errs2.OutdatedStorageVersion,
		errs2.IndexBuilding,
		errs2.ComputationDepthExceeded, errs2.IdiomRecursionLimitExceeded,
		errs2.QueryTimedout, errs2.QueryCancelled, errs2.QueryNotExecuted,
		errs2.QueryBeyondMemoryThreshold, errs2.RealtimeDisabled, errs2.InvalidParam,
		errs2.CorruptedIndex, errs2.Unreachable, errs2.Internal,
		errs2.ForbiddenRoute, errs2.FunctionNotAllowed, errs2.NetTargetNotAllowed,
		errs2.ScriptingNotAllowed, errs2.FileAccessDenied, errs2.GlobalBucketEnforced, errs2.NoGlobalBucket,
		errs2.Kvs, errs2.TxKeyAlreadyExists, errs2.TransactionFinished, errs2.TransactionReadonly,
		errs2.CompactionNotSupported,
	}
	for _, c := range classes {
		if c.Has(err) {
			return true
		}
	}
	return false
}
