// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package catalog implements the typed catalog accessors (C4) described
// in spec.md §4.4: namespaces, databases, users, access methods, tables,
// fields, indexes, events, analyzers, sequences, and live-query
// subscriptions, each reachable through a cross-transaction cache keyed
// by monotonic version stamps.
package catalog

import "time"

// Stamp is a monotonic version stamp attached to a catalog collection;
// used as the cache fingerprint across transactions (spec.md §3, §4.4).
type Stamp uint64

// Namespace is the top catalog scope.
type Namespace struct {
	ID   uint64
	Name string

	// Stamps, one per child collection, per spec.md §3.
	UsersStamp     Stamp
	AccessesStamp  Stamp
	DatabasesStamp Stamp
}

// Database is the second catalog scope, nested under a Namespace.
type Database struct {
	ID   uint64
	Name string

	UsersStamp     Stamp
	AccessesStamp  Stamp
	TablesStamp    Stamp
	ParamsStamp    Stamp
	FunctionsStamp Stamp
	AnalyzersStamp Stamp
	SequencesStamp Stamp
}

// TableKind discriminates the kinds of tables spec.md §3 names.
type TableKind int

const (
	TableNormal TableKind = iota
	TableRelation
	TableView
)

// Table is the third catalog scope, nested under a Database.
type Table struct {
	ID           uint64
	Name         string
	Kind         TableKind
	Schemafull   bool
	PrepareRemove bool

	FieldsStamp        Stamp
	EventsStamp        Stamp
	IndexesStamp       Stamp
	ViewsStamp         Stamp
	SubscriptionsStamp Stamp
}

// Field is a column/attribute definition on a table.
type Field struct {
	Name string
	Type string // opaque type expression; the SQL layer interprets it
}

// IndexKind discriminates the kinds of indexes spec.md §3 names.
type IndexKind int

const (
	IndexUniqueBTree IndexKind = iota
	IndexNonUniqueBTree
	IndexCount
	IndexFullText
	IndexVector
)

// Index is an index definition.
type Index struct {
	ID            uint64
	Name          string
	TableID       uint64
	Kind          IndexKind
	Fields        []string // field expressions, kept opaque here
	Permissions   string
	PrepareRemove bool
}

// Event is a table-level trigger definition.
type Event struct {
	Name string
	When string // opaque trigger expression
	Then string // opaque action expression
}

// User holds a password hash and role list, scoped to root/ns/db
// depending on where it is stored (spec.md §3).
type User struct {
	Name         string
	PasswordHash string // argon2-encoded
	Roles        []string
}

// AccessKind discriminates the three authentication target kinds C6
// supports (spec.md §4.6).
type AccessKind int

const (
	AccessJWT AccessKind = iota
	AccessRecord
	AccessBearer
)

// AccessMethod is a named authentication policy.
type AccessMethod struct {
	Name string
	Kind AccessKind

	// JWT kind.
	JWTIssuer   string
	JWTVerifier string

	// Record kind.
	SigninExpr     string
	AuthenticateExpr string

	GrantDuration   time.Duration
	SessionDuration time.Duration
	TokenDuration   time.Duration

	// Bearer kind: whether this method mints refresh tokens (single-use
	// rotation) in addition to access tokens.
	Refresh bool
}

// Grant is a single issued credential tied to an access method.
type Grant struct {
	ID         string // 12-char grant id
	Scope      string // "root", "ns:<name>", "db:<ns>:<name>"
	AccessName string
	SecretHash string // hex-encoded SHA-256
	Subject    string // user-name or record-id
	Revoked    bool
	ExpiresAt  time.Time
	IssuedAt   time.Time
}

// Sequence is a monotonic id allocator.
type Sequence struct {
	Name string
	Next uint64
}

// Subscription is a persisted live query.
type Subscription struct {
	ID         string
	NodeID     string
	Namespace  string
	Database   string
	Table      string
	FilterExpr string
	Projection []string
}
