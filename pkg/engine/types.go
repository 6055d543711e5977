// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package engine

import (
	"context"
	"time"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/session"
)

// ExecContext is what every Statement is handed to run itself: the
// transaction and catalog accessor it must use, the frozen Options for
// this plan, and the bind variables supplied alongside the query.
type ExecContext struct {
	Tx   *kvs.Transaction
	Acc  *catalog.Accessor
	Opts session.Options
	Vars map[string]interface{}
}

// Statement is one compiled, top-level unit of work. The surface
// grammar that produces a Statement from source text is out of scope
// for this core (spec.md §1); a Statement already knows how to run
// itself against an ExecContext.
type Statement interface {
	// ReadOnly reports whether this statement only needs a read
	// transaction, deciding the lock mode Evaluate/ProcessPlan opens.
	ReadOnly() bool
	// Execute runs the statement and returns its result value.
	Execute(ctx context.Context, ec *ExecContext) (interface{}, error)
}

// Plan is an ordered sequence of statements produced by a Parser from
// source text, one QueryResult produced per entry.
type Plan struct {
	Statements []Statement
}

// Parser turns source text into a Plan. Its implementation is a
// collaborator outside this core's scope (spec.md §1); engine only
// depends on this interface.
type Parser interface {
	Parse(src string) (Plan, error)
}

// QueryResult is the per-statement outcome Execute/ProcessPlan return,
// one per top-level statement in the plan.
type QueryResult struct {
	Time   time.Duration
	Status string // "OK" or "ERR"
	Result interface{}
	Error  error
}

func ok(start time.Time, result interface{}) QueryResult {
	return QueryResult{Time: time.Since(start), Status: "OK", Result: result}
}

func failed(start time.Time, err error) QueryResult {
	return QueryResult{Time: time.Since(start), Status: "ERR", Error: err}
}
