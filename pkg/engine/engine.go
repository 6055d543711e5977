// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/notify"
	"storj.io/coredb/pkg/session"
	"storj.io/coredb/pkg/storage"
)

var mon = monkit.Package()

// Config bounds how long a plan or a single statement may run, and at
// what latency a completed query is logged as slow, per spec.md §6's
// configured constants.
type Config struct {
	QueryTimeout       time.Duration
	TransactionTimeout time.Duration
	SlowLogThreshold   time.Duration
}

// Engine is the C9 execution entry point. It is constructed once per
// Datastore and is safe for concurrent use: every call opens its own
// transaction(s).
type Engine struct {
	store  storage.Store
	cache  *catalog.Cache
	hub    *notify.Hub
	log    *zap.Logger
	parser Parser
	cfg    Config
}

// New builds an Engine. parser may be nil if the caller only intends to
// drive ExecuteWithTransaction/ProcessPlan/Evaluate directly with
// already-built Plans/Statements (e.g. from tests or from a host that
// compiles its own grammar).
func New(store storage.Store, cache *catalog.Cache, hub *notify.Hub, log *zap.Logger, parser Parser, cfg Config) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, cache: cache, hub: hub, log: log, parser: parser, cfg: cfg}
}

// Execute parses sql and runs the resulting plan, per spec.md §4.9:
// "parse -> produce a plan -> process_plan ... returning one result
// per top-level statement."
func (e *Engine) Execute(ctx context.Context, sql string, opts session.Options, vars map[string]interface{}) (results []QueryResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if e.parser == nil {
		return nil, errs2.InvalidRequest.New("no parser configured")
	}
	plan, err := e.parser.Parse(sql)
	if err != nil {
		return nil, errs2.ParseErrorClass.Wrap(err)
	}
	return e.ProcessPlan(ctx, plan, opts, vars)
}

// ProcessPlan is the central executor: it attaches a timeout, freezes
// the session, and runs each statement in its own transaction, so that
// a statement opening a write transaction always commits or cancels
// before ProcessPlan moves to the next one (spec.md §4.9).
func (e *Engine) ProcessPlan(ctx context.Context, plan Plan, opts session.Options, vars map[string]interface{}) (results []QueryResult, err error) {
	defer mon.Task()(&ctx)(&err)

	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}

	results = make([]QueryResult, 0, len(plan.Statements))
	for _, stmt := range plan.Statements {
		results = append(results, e.runOne(ctx, stmt, opts, vars))
	}
	return results, nil
}

// runOne opens its own transaction, read or write per stmt.ReadOnly,
// runs stmt, and commits or cancels before returning. This is the
// per-statement transaction lifecycle both ProcessPlan and
// ImportStream use.
func (e *Engine) runOne(ctx context.Context, stmt Statement, opts session.Options, vars map[string]interface{}) QueryResult {
	start := time.Now()

	tx, err := kvs.Begin(ctx, e.store, !stmt.ReadOnly(), storage.Optimistic, kvs.Options{Log: e.log, Hub: e.hub})
	if err != nil {
		return failed(start, translate(ctx, err))
	}

	ec := &ExecContext{Tx: tx, Acc: catalog.NewAccessor(tx, e.cache), Opts: opts, Vars: vars}
	value, execErr := stmt.Execute(ctx, ec)
	if execErr != nil {
		_ = tx.Cancel(ctx)
		e.logSlow(start, execErr)
		return failed(start, translate(ctx, execErr))
	}
	if commitErr := tx.Commit(ctx); commitErr != nil {
		e.logSlow(start, commitErr)
		return failed(start, translate(ctx, commitErr))
	}
	e.logSlow(start, nil)
	return ok(start, value)
}

// ExecuteWithTransaction runs plan's statements under tx, an
// already-open transaction the caller owns (for API routes that bundle
// reads and writes into one commit). Unlike ProcessPlan, the caller is
// responsible for committing or cancelling tx; a statement error does
// not cancel it, so the caller may decide whether to proceed.
func (e *Engine) ExecuteWithTransaction(ctx context.Context, tx *kvs.Transaction, plan Plan, opts session.Options, vars map[string]interface{}) (results []QueryResult, err error) {
	defer mon.Task()(&ctx)(&err)

	ec := &ExecContext{Tx: tx, Acc: catalog.NewAccessor(tx, e.cache), Opts: opts, Vars: vars}
	results = make([]QueryResult, 0, len(plan.Statements))
	for _, stmt := range plan.Statements {
		start := time.Now()
		value, execErr := stmt.Execute(ctx, ec)
		if execErr != nil {
			results = append(results, failed(start, translate(ctx, execErr)))
			continue
		}
		results = append(results, ok(start, value))
	}
	return results, nil
}

// Evaluate runs a single statement against a short-lived transaction,
// chosen read/write from the statement's own ReadOnly signal, per
// spec.md §4.9 ("used by signin/authenticate clauses"). The
// transaction always commits on success and cancels on failure; a
// read-only evaluation commits too, since a read-only transaction
// commit is a no-op against the substrate but still releases the
// transaction's resources promptly.
func (e *Engine) Evaluate(ctx context.Context, stmt Statement, opts session.Options, vars map[string]interface{}) (result interface{}, err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := kvs.Begin(ctx, e.store, !stmt.ReadOnly(), storage.Optimistic, kvs.Options{Log: e.log, Hub: e.hub})
	if err != nil {
		return nil, translate(ctx, err)
	}

	ec := &ExecContext{Tx: tx, Acc: catalog.NewAccessor(tx, e.cache), Opts: opts, Vars: vars}
	value, execErr := stmt.Execute(ctx, ec)
	if execErr != nil {
		_ = tx.Cancel(ctx)
		return nil, translate(ctx, execErr)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, translate(ctx, err)
	}
	return value, nil
}

func (e *Engine) logSlow(start time.Time, err error) {
	if e.cfg.SlowLogThreshold <= 0 {
		return
	}
	elapsed := time.Since(start)
	if elapsed < e.cfg.SlowLogThreshold {
		return
	}
	if err != nil {
		e.log.Warn("slow query", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		e.log.Warn("slow query", zap.Duration("elapsed", elapsed))
	}
}
