// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package session

import (
	"github.com/google/uuid"

	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/notify"
)

// Base is the catalog scope an operation targets, per spec.md §4.5
// "selected_base() returns one of {Root, Ns, Db, Scope}".
type Base int

const (
	BaseRoot Base = iota
	BaseNamespace
	BaseDatabase
	BaseScope // a record access method's own scope, e.g. a signup target
)

// Force controls whether DEFINE TABLE/EVENT re-runs are skipped or
// forced during import, mirroring original_source's dbs::Force enum.
type Force int

const (
	ForceNone Force = iota
	ForceAll
)

// Action is the coarse operation kind used by the legacy check_perms
// fast path (spec.md §4.5).
type Action int

const (
	ActionView Action = iota
	ActionEdit
)

// Options is the immutable per-request snapshot described in spec.md
// §4.5. Every derivation method (With*, Dive) returns a new
// value; none mutate the receiver, so a caller may freely pass an
// Options down into nested evaluation without aliasing concerns.
type Options struct {
	nodeID uuid.UUID
	ns     string
	hasNS  bool
	db     string
	hasDB  bool

	dive uint8

	auth Auth

	authEnabled        bool
	liveQueriesAllowed bool
	checkPermissions   bool
	allowFuncFutures   bool
	importMode         bool
	strict             bool
	force              Force

	capabilities *Capabilities
	sender       notify.Sender
}

// MaxComputationDepth bounds Dive, per spec.md §6
// MAX_COMPUTATION_DEPTH.
const MaxComputationDepth = 250

// New builds a root-scoped Options with every default spec.md §4.5
// calls out: permissions checked, auth enabled, live queries and
// futures disabled, not strict, not importing.
func New(nodeID uuid.UUID, capabilities *Capabilities) Options {
	return Options{
		nodeID:           nodeID,
		auth:             AnonymousAuth(),
		authEnabled:      true,
		checkPermissions: true,
		capabilities:     capabilities,
	}
}

func (o Options) WithNamespace(ns string) Options {
	o.ns, o.hasNS = ns, true
	return o
}

func (o Options) WithDatabase(db string) Options {
	o.db, o.hasDB = db, true
	return o
}

func (o Options) WithAuth(a Auth) Options { o.auth = a; return o }

func (o Options) WithAuthEnabled(v bool) Options        { o.authEnabled = v; return o }
func (o Options) WithLiveQueriesAllowed(v bool) Options { o.liveQueriesAllowed = v; return o }
func (o Options) WithCheckPermissions(v bool) Options   { o.checkPermissions = v; return o }
func (o Options) WithAllowFuncFutures(v bool) Options   { o.allowFuncFutures = v; return o }
func (o Options) WithImportMode(v bool) Options         { o.importMode = v; return o }
func (o Options) WithStrict(v bool) Options             { o.strict = v; return o }
func (o Options) WithForce(v Force) Options              { o.force = v; return o }
func (o Options) WithSender(s notify.Sender) Options     { o.sender = s; return o }

func (o Options) NodeID() uuid.UUID        { return o.nodeID }
func (o Options) Auth() Auth               { return o.auth }
func (o Options) AuthEnabled() bool        { return o.authEnabled }
func (o Options) LiveQueriesAllowed() bool { return o.liveQueriesAllowed }
func (o Options) ImportMode() bool         { return o.importMode }
func (o Options) Strict() bool             { return o.strict }
func (o Options) ForceMode() Force         { return o.force }
func (o Options) AllowFuncFutures() bool   { return o.allowFuncFutures }
func (o Options) Capabilities() *Capabilities { return o.capabilities }
func (o Options) Sender() notify.Sender    { return o.sender }

// Namespace returns the selected namespace. Callers must check
// ValidForNamespace first; an unselected namespace returns "".
func (o Options) Namespace() string { return o.ns }

// Database returns the selected database. Callers must check
// ValidForDatabase first; an unselected database returns "".
func (o Options) Database() string { return o.db }

// Dive produces a derived Options with its recursion budget increased
// by cost, failing once MaxComputationDepth would be exceeded. This is
// the sole mechanism that bounds recursive evaluation (spec.md §4.5).
func (o Options) Dive(cost uint8) (Options, error) {
	next := o.dive + cost
	if next < o.dive || next > MaxComputationDepth { // overflow or over budget
		return Options{}, errs2.ComputationDepthExceeded.New("computation depth exceeded")
	}
	o.dive = next
	return o, nil
}

// SelectedBase implements spec.md §4.5's selected_base(): (ns?, db?)
// maps onto exactly one of {Root, Ns, Db}; (None, Some) is an error
// since a database can never be selected without its namespace.
func (o Options) SelectedBase() (Base, error) {
	switch {
	case !o.hasNS && !o.hasDB:
		return BaseRoot, nil
	case o.hasNS && !o.hasDB:
		return BaseNamespace, nil
	case o.hasNS && o.hasDB:
		return BaseDatabase, nil
	default: // !hasNS && hasDB
		return 0, errs2.NsEmpty.New("namespace not selected")
	}
}

// ValidForNamespace reports ErrNsEmpty unless a namespace is selected.
func (o Options) ValidForNamespace() error {
	if !o.hasNS {
		return errs2.NsEmpty.New("namespace not selected")
	}
	return nil
}

// ValidForDatabase reports ErrNsEmpty/ErrDbEmpty unless a database (and
// its owning namespace) is selected.
func (o Options) ValidForDatabase() error {
	if err := o.ValidForNamespace(); err != nil {
		return err
	}
	if !o.hasDB {
		return errs2.DbEmpty.New("database not selected")
	}
	return nil
}

// Realtime reports RealtimeDisabled unless this Options permits live
// queries.
func (o Options) Realtime() error {
	if !o.liveQueriesAllowed {
		return errs2.RealtimeDisabled.New("realtime disabled")
	}
	return nil
}

// IsAllowed checks whether this Options' identity may address base, validating the base's own namespace/database
// prerequisites first. When auth is disabled and the identity is
// anonymous, every action at every base is permitted (spec.md §4.5).
func (o Options) IsAllowed(base Base) error {
	switch base {
	case BaseRoot:
	case BaseNamespace:
		if err := o.ValidForNamespace(); err != nil {
			return err
		}
	case BaseDatabase, BaseScope:
		if err := o.ValidForDatabase(); err != nil {
			return err
		}
	}

	if !o.authEnabled && o.auth.IsAnon() {
		return nil
	}
	if o.auth.IsAnon() {
		return errs2.ErrInvalidAuth
	}
	switch base {
	case BaseRoot:
		return nil // any authenticated identity may address the root it belongs under
	case BaseNamespace:
		if o.auth.covers(o.ns, "") {
			return nil
		}
	case BaseDatabase, BaseScope:
		if o.auth.covers(o.ns, o.db) {
			return nil
		}
	}
	return errs2.ErrInvalidAuth
}

// CheckPerms implements the legacy fast path described in
// original_source's check_perms: most data operations skip the full
// authorization grammar and instead ask "does this actor's own level
// already cover the selected database, with the right role for this
// action". It returns true when the caller must still run the slower
// permission-clause evaluation.
func (o Options) CheckPerms(action Action) bool {
	if !o.checkPermissions {
		return false
	}
	if !o.authEnabled && o.auth.IsAnon() {
		return false
	}
	canView := o.auth.HasRole(RoleViewer) || o.auth.HasRole(RoleEditor) || o.auth.HasRole(RoleOwner)
	canEdit := o.auth.HasRole(RoleEditor) || o.auth.HasRole(RoleOwner)
	dbInLevel := o.auth.IsRoot() || o.auth.covers(o.ns, o.db)

	var allowed bool
	switch action {
	case ActionView:
		allowed = canView && dbInLevel
	case ActionEdit:
		allowed = canEdit && dbInLevel
	}
	return !allowed
}
