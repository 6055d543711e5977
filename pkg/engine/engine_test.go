// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/engine"
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/session"
	"storj.io/coredb/pkg/storage/memkv"
)

// fakeStmt is a minimal engine.Statement used to drive the execution
// entry points without a real grammar.
type fakeStmt struct {
	readOnly bool
	result   interface{}
	err      error
	ran      *bool
}

func (s fakeStmt) ReadOnly() bool { return s.readOnly }

func (s fakeStmt) Execute(ctx context.Context, ec *engine.ExecContext) (interface{}, error) {
	if s.ran != nil {
		*s.ran = true
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type fakeParser struct {
	plan engine.Plan
	err  error
}

func (p fakeParser) Parse(src string) (engine.Plan, error) {
	if p.err != nil {
		return engine.Plan{}, p.err
	}
	return p.plan, nil
}

func newEngine(t *testing.T, parser engine.Parser) *engine.Engine {
	t.Helper()
	store := memkv.New()
	cache := catalog.NewCache(0, 0)
	return engine.New(store, cache, nil, nil, parser, engine.Config{})
}

func opts() session.Options {
	return session.New(uuid.Nil, session.NewCapabilities()).WithNamespace("ns").WithDatabase("db")
}

func TestExecuteParsesAndRunsEachStatement(t *testing.T) {
	ctx := context.Background()
	plan := engine.Plan{Statements: []engine.Statement{
		fakeStmt{readOnly: true, result: 1},
		fakeStmt{readOnly: true, result: 2},
	}}
	e := newEngine(t, fakeParser{plan: plan})

	results, err := e.Execute(ctx, "irrelevant source", opts(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "OK", results[0].Status)
	require.Equal(t, 1, results[0].Result)
	require.Equal(t, "OK", results[1].Status)
	require.Equal(t, 2, results[1].Result)
}

func TestExecuteWithoutParserFails(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	_, err := e.Execute(ctx, "select 1", opts(), nil)
	require.Error(t, err)
	require.True(t, errs2.InvalidRequest.Has(err))
}

func TestExecuteParseErrorIsWrapped(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, fakeParser{err: errors.New("bad syntax")})
	_, err := e.Execute(ctx, "???", opts(), nil)
	require.Error(t, err)
	require.True(t, errs2.ParseErrorClass.Has(err))
}

func TestProcessPlanCommitsOnSuccessAndCancelsOnFailure(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	var ranFirst, ranSecond bool
	plan := engine.Plan{Statements: []engine.Statement{
		fakeStmt{readOnly: false, result: "done", ran: &ranFirst},
		fakeStmt{readOnly: false, err: errors.New("boom"), ran: &ranSecond},
	}}

	results, err := e.ProcessPlan(ctx, plan, opts(), nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.True(t, ranFirst)
	require.Equal(t, "OK", results[0].Status)
	require.Equal(t, "done", results[0].Result)

	require.True(t, ranSecond)
	require.Equal(t, "ERR", results[1].Status)
	require.Error(t, results[1].Error)
	require.True(t, errs2.Internal.Has(results[1].Error))
}

func TestProcessPlanTranslatesContextCancellation(t *testing.T) {
	e := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := engine.Plan{Statements: []engine.Statement{
		fakeStmt{readOnly: false, err: context.Canceled},
	}}
	results, err := e.ProcessPlan(ctx, plan, opts(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "ERR", results[0].Status)
	require.True(t, errs2.QueryCancelled.Has(results[0].Error))
}

func TestEvaluateCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	result, err := e.Evaluate(ctx, fakeStmt{readOnly: true, result: "ok"}, opts(), nil)
	require.NoError(t, err)
	require.Equal(t, "ok", result)
}

func TestEvaluatePropagatesTranslatedError(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	_, err := e.Evaluate(ctx, fakeStmt{err: errors.New("bad")}, opts(), nil)
	require.Error(t, err)
	require.True(t, errs2.Internal.Has(err))
}

func TestProcessPlanHonorsQueryTimeout(t *testing.T) {
	store := memkv.New()
	cache := catalog.NewCache(0, 0)
	e := engine.New(store, cache, nil, nil, nil, engine.Config{QueryTimeout: time.Millisecond})

	blocked := fakeStmt{readOnly: true, result: nil}
	plan := engine.Plan{Statements: []engine.Statement{blockingStmt{inner: blocked}}}

	results, err := e.ProcessPlan(context.Background(), plan, opts(), nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "ERR", results[0].Status)
	require.True(t, errs2.QueryTimedout.Has(results[0].Error))
}

// blockingStmt reports the context's own deadline error once it has
// already expired, standing in for a statement that actually observed
// ctx.Err() mid-execution.
type blockingStmt struct {
	inner fakeStmt
}

func (s blockingStmt) ReadOnly() bool { return s.inner.readOnly }

func (s blockingStmt) Execute(ctx context.Context, ec *engine.ExecContext) (interface{}, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
