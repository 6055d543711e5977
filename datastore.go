// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package coredb

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/spacemonkeygo/monkit.v2"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/cluster"
	"storj.io/coredb/pkg/engine"
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/iam"
	"storj.io/coredb/pkg/indexbuild"
	"storj.io/coredb/pkg/kvs"
	"storj.io/coredb/pkg/notify"
	"storj.io/coredb/pkg/session"
	"storj.io/coredb/pkg/storage"
)

var mon = monkit.Package()

// Default cache weights for the catalog's cross-transaction fingerprint
// cache (spec.md §6 DEFINITION_CACHE_SIZE). Callers with different
// working-set sizes override them with WithDefinitionCacheSize.
const (
	defaultDefinitionCacheSize      = 16 << 20
	defaultDefinitionCacheEntrySize = 1 << 20
	defaultNodeExpiry               = 30 * time.Second
)

// config collects every builder option into the values New needs to
// assemble a Datastore, mirroring storj's functional-options idiom for
// satellite.Config / uplink.Config rather than a fluent per-call
// chain.
type config struct {
	nodeID                   uuid.UUID
	notificationsEnabled     bool
	queryTimeout             time.Duration
	slowLogThreshold         time.Duration
	transactionTimeout       time.Duration
	authEnabled              bool
	capabilities             *session.Capabilities
	temporaryDirectory       string
	nodeExpiry               time.Duration
	jwtIssuer                string
	jwtKey                   []byte
	definitionCacheSize      int
	definitionCacheEntrySize int
}

func defaultConfig() config {
	var id uuid.UUID
	return config{
		nodeID:                   id,
		notificationsEnabled:     true,
		authEnabled:              true,
		capabilities:             session.NewCapabilities(),
		nodeExpiry:               defaultNodeExpiry,
		definitionCacheSize:      defaultDefinitionCacheSize,
		definitionCacheEntrySize: defaultDefinitionCacheEntrySize,
	}
}

// Option configures a Datastore at construction. The with_{...}
// builder surface spec.md §6 specifies is implemented as this
// functional-options list rather than a fluent chain on Datastore
// itself, so a zero-value Datastore is never partially constructed.
type Option func(*config)

func WithNodeID(id uuid.UUID) Option { return func(c *config) { c.nodeID = id } }

func WithNotifications(enabled bool) Option {
	return func(c *config) { c.notificationsEnabled = enabled }
}

func WithQueryTimeout(d time.Duration) Option { return func(c *config) { c.queryTimeout = d } }

func WithSlowLog(threshold time.Duration) Option {
	return func(c *config) { c.slowLogThreshold = threshold }
}

func WithTransactionTimeout(d time.Duration) Option {
	return func(c *config) { c.transactionTimeout = d }
}

func WithAuthEnabled(v bool) Option { return func(c *config) { c.authEnabled = v } }

func WithCapabilities(caps *session.Capabilities) Option {
	return func(c *config) { c.capabilities = caps }
}

func WithTemporaryDirectory(dir string) Option {
	return func(c *config) { c.temporaryDirectory = dir }
}

func WithNodeExpiry(d time.Duration) Option { return func(c *config) { c.nodeExpiry = d } }

// WithJWTSigning configures the key Datastore's iam.Manager signs and
// verifies session JWTs with. Not named directly in spec.md's builder
// list, but C6 cannot issue a token without it.
func WithJWTSigning(issuer string, key []byte) Option {
	return func(c *config) { c.jwtIssuer, c.jwtKey = issuer, key }
}

// WithDefinitionCacheSize overrides the catalog's cross-transaction
// cache weight caps (spec.md §6 DEFINITION_CACHE_SIZE).
func WithDefinitionCacheSize(maxWeightBytes, maxEntryWeightBytes int) Option {
	return func(c *config) { c.definitionCacheSize, c.definitionCacheEntrySize = maxWeightBytes, maxEntryWeightBytes }
}

// Datastore is the embeddable core: one pluggable KV substrate plus
// every component (C2-C10) wired around it. It is constructed once per
// process and is safe for concurrent use; every operation opens its
// own transaction(s).
type Datastore struct {
	store storage.Store
	cache *catalog.Cache
	hub   *notify.Hub
	log   *zap.Logger

	engine  *engine.Engine
	iam     *iam.Manager
	cluster *cluster.Service
	indexes *indexbuild.Registry

	nodeID       uuid.UUID
	authEnabled  bool
	capabilities *session.Capabilities
	tempDir      string
}

// New assembles a Datastore over store, with parser supplying the
// pluggable SQL grammar C9 executes against (nil is valid for hosts
// that only drive ExecuteWithTransaction/ProcessPlan/Evaluate
// directly). log is threaded through every component explicitly,
// never held in a package global.
func New(log *zap.Logger, store storage.Store, parser engine.Parser, opts ...Option) *Datastore {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cache := catalog.NewCache(cfg.definitionCacheSize, cfg.definitionCacheEntrySize)

	var hub *notify.Hub
	if cfg.notificationsEnabled {
		hub = notify.NewHub(log)
	}

	eng := engine.New(store, cache, hub, log, parser, engine.Config{
		QueryTimeout:       cfg.queryTimeout,
		TransactionTimeout: cfg.transactionTimeout,
		SlowLogThreshold:   cfg.slowLogThreshold,
	})

	iamMgr := iam.NewManager(cfg.jwtIssuer, cfg.jwtKey).
		WithForwardAccessErrors(cfg.capabilities.ForwardAccessErrorsAllowed())

	return &Datastore{
		store:        store,
		cache:        cache,
		hub:          hub,
		log:          log,
		engine:       eng,
		iam:          iamMgr,
		cluster:      cluster.NewService(store, cache, log, cfg.nodeExpiry),
		indexes:      indexbuild.NewRegistry(store, log),
		nodeID:       cfg.nodeID,
		authEnabled:  cfg.authEnabled,
		capabilities: cfg.capabilities,
		tempDir:      cfg.temporaryDirectory,
	}
}

// Close releases the underlying substrate's resources.
func (ds *Datastore) Close() error { return ds.store.Close() }

// Transaction opens a transaction directly against the substrate,
// bypassing the execution engine, for callers that need raw
// catalog/storage access (e.g. coredbtest setup, CLI tooling).
func (ds *Datastore) Transaction(ctx context.Context, write bool, lock storage.Lock) (*kvs.Transaction, error) {
	tx, err := kvs.Begin(ctx, ds.store, write, lock, kvs.Options{Log: ds.log, Hub: ds.hub})
	if err != nil {
		return nil, errs2.Kvs.Wrap(err)
	}
	return tx, nil
}

// Accessor wraps tx in a catalog Accessor bound to this Datastore's
// cross-transaction cache.
func (ds *Datastore) Accessor(tx *kvs.Transaction) *catalog.Accessor {
	return catalog.NewAccessor(tx, ds.cache)
}

// Engine returns the execution entry point so callers that need
// lower-level access (a custom grammar host, tests) can reach it
// without Datastore re-exposing every engine method.
func (ds *Datastore) Engine() *engine.Engine { return ds.engine }

// IAM returns the access/identity manager (C6).
func (ds *Datastore) IAM() *iam.Manager { return ds.iam }

// Cluster returns the membership/GC service (C8), for hosts that drive
// its background loops on their own tick scheduler (spec.md §5).
func (ds *Datastore) Cluster() *cluster.Service { return ds.cluster }

// Indexes returns the async index builder registry (C7).
func (ds *Datastore) Indexes() *indexbuild.Registry { return ds.indexes }

// Execute parses sql and runs the resulting plan.
func (ds *Datastore) Execute(ctx context.Context, sql string, opts session.Options, vars map[string]interface{}) ([]engine.QueryResult, error) {
	return ds.engine.Execute(ctx, sql, opts, vars)
}

// ExecuteWithTransaction runs plan's statements under a caller-owned
// transaction.
func (ds *Datastore) ExecuteWithTransaction(ctx context.Context, tx *kvs.Transaction, plan engine.Plan, opts session.Options, vars map[string]interface{}) ([]engine.QueryResult, error) {
	return ds.engine.ExecuteWithTransaction(ctx, tx, plan, opts, vars)
}

// ProcessPlan runs an already-parsed plan, one transaction per
// statement.
func (ds *Datastore) ProcessPlan(ctx context.Context, plan engine.Plan, opts session.Options, vars map[string]interface{}) ([]engine.QueryResult, error) {
	return ds.engine.ProcessPlan(ctx, plan, opts, vars)
}

// Evaluate runs a single compiled statement, used by signin/authenticate
// clauses and index field expressions.
func (ds *Datastore) Evaluate(ctx context.Context, stmt engine.Statement, opts session.Options, vars map[string]interface{}) (interface{}, error) {
	return ds.engine.Evaluate(ctx, stmt, opts, vars)
}

// ImportStream feeds r through splitter one statement at a time.
func (ds *Datastore) ImportStream(ctx context.Context, r io.Reader, splitter engine.StreamSplitter, parseSize int, opts session.Options, vars map[string]interface{}) ([]engine.QueryResult, error) {
	return ds.engine.ImportStream(ctx, r, splitter, parseSize, opts, vars)
}

// ExportWithConfig writes a deterministic SQL re-creation of database
// (ns, db) to w.
func (ds *Datastore) ExportWithConfig(ctx context.Context, w io.Writer, opts session.Options, ns, db string, cfg engine.ExportConfig) error {
	return ds.engine.Export(ctx, w, opts, ns, db, cfg)
}

// Notifications returns the live-query notification hub, or nil if
// WithNotifications(false) disabled it.
func (ds *Datastore) Notifications() *notify.Hub { return ds.hub }

// GetCapabilities returns the process-wide capability policy.
func (ds *Datastore) GetCapabilities() *session.Capabilities { return ds.capabilities }

func (ds *Datastore) AllowsRPCMethod(method string) bool { return ds.capabilities.AllowsRPCMethod(method) }
func (ds *Datastore) AllowsHTTPRoute(route string) bool  { return ds.capabilities.AllowsHTTPRoute(route) }
func (ds *Datastore) AllowsQueryBySubject(subject string) bool {
	return ds.capabilities.AllowsQueryBySubject(subject)
}

// InitialiseCredentials creates a root owner user only if no root
// users exist yet, per spec.md §6. Calling it again after a root user
// already exists is a no-op, not an error, so it is safe on every
// startup.
func (ds *Datastore) InitialiseCredentials(ctx context.Context, user, pass string) (err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := kvs.Begin(ctx, ds.store, true, storage.Optimistic, kvs.Options{Log: ds.log})
	if err != nil {
		return errs2.Kvs.Wrap(err)
	}
	acc := ds.Accessor(tx)

	existing, err := acc.AllUsers(ctx, "root")
	if err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	if len(existing) > 0 {
		return errs2.Kvs.Wrap(tx.Cancel(ctx))
	}

	hash, err := iam.HashPassword(pass)
	if err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	if _, err := acc.DefineUser(ctx, "root", user, hash, []string{"owner"}); err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	return errs2.Kvs.Wrap(tx.Commit(ctx))
}

// InitialiseDefaults creates the default namespace/database if they do
// not already exist, per spec.md §6.
func (ds *Datastore) InitialiseDefaults(ctx context.Context, ns, db string) (err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := kvs.Begin(ctx, ds.store, true, storage.Optimistic, kvs.Options{Log: ds.log})
	if err != nil {
		return errs2.Kvs.Wrap(err)
	}
	acc := ds.Accessor(tx)

	nsRec, err := acc.GetOrAddNamespace(ctx, ns, false)
	if err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	if _, err := acc.GetOrAddDatabase(ctx, nsRec.ID, db, false); err != nil {
		_ = tx.Cancel(ctx)
		return err
	}
	return errs2.Kvs.Wrap(tx.Commit(ctx))
}
