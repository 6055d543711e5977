// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package session implements the C5 per-request Options/Session
// snapshot: an immutable value carrying identity, the selected
// namespace/database, the capability set, and the recursion budget
// that every plan evaluation step threads through, grounded on
// original_source's dbs/options.rs and iam/auth.rs.
package session

import "fmt"

// Level discriminates the four authentication scopes spec.md §4.5/§4.6
// names: a credential is always minted at exactly one of these.
type Level int

const (
	LevelRoot Level = iota
	LevelNamespace
	LevelDatabase
	LevelRecord
)

// Role is a coarse-grained permission tier within a Level, used by the
// legacy check_perms fast path (spec.md's "Should we run permissions
// checks?" Options field).
type Role int

const (
	RoleViewer Role = iota
	RoleEditor
	RoleOwner
)

// Auth is the authenticated identity attached to every Session. It is
// immutable once constructed: re-authentication produces a new Auth,
// never a mutation of an existing one.
type Auth struct {
	level Level
	ns    string
	db    string
	roles []Role

	// subject is the record id or user name this credential resolved
	// to, used for audit logging and query_by_subject capability
	// checks.
	subject string

	anon bool
}

// AnonymousAuth is the identity assigned to an unauthenticated
// connection when auth is disabled or guest access is permitted.
func AnonymousAuth() Auth { return Auth{anon: true} }

// RootAuth constructs a root-level identity holding the given roles.
func RootAuth(subject string, roles ...Role) Auth {
	return Auth{level: LevelRoot, subject: subject, roles: roles}
}

// NamespaceAuth constructs a namespace-level identity.
func NamespaceAuth(ns, subject string, roles ...Role) Auth {
	return Auth{level: LevelNamespace, ns: ns, subject: subject, roles: roles}
}

// DatabaseAuth constructs a database-level identity.
func DatabaseAuth(ns, db, subject string, roles ...Role) Auth {
	return Auth{level: LevelDatabase, ns: ns, db: db, subject: subject, roles: roles}
}

// RecordAuth constructs a record-level identity, minted by a record
// access method's SIGNIN/SIGNUP expression.
func RecordAuth(ns, db, subject string) Auth {
	return Auth{level: LevelRecord, ns: ns, db: db, subject: subject}
}

func (a Auth) IsAnon() bool       { return a.anon }
func (a Auth) IsRoot() bool       { return !a.anon && a.level == LevelRoot }
func (a Auth) IsNamespace() bool  { return !a.anon && a.level == LevelNamespace }
func (a Auth) IsDatabase() bool {
	return !a.anon && (a.level == LevelDatabase || a.level == LevelRecord)
}
func (a Auth) Level() Level       { return a.level }
func (a Auth) Namespace() string  { return a.ns }
func (a Auth) Database() string   { return a.db }
func (a Auth) Subject() string    { return a.subject }

// HasRole reports whether r is among the identity's granted roles.
func (a Auth) HasRole(r Role) bool {
	for _, got := range a.roles {
		if got == r {
			return true
		}
	}
	return false
}

func (a Auth) String() string {
	if a.anon {
		return "anon"
	}
	return fmt.Sprintf("%s:%s", levelName(a.level), a.subject)
}

func levelName(l Level) string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelNamespace:
		return "ns"
	case LevelDatabase:
		return "db"
	case LevelRecord:
		return "record"
	default:
		return "unknown"
	}
}

// covers reports whether this identity's own scope contains (ns, db):
// a root identity covers everything, a namespace identity covers only
// its own namespace (any database within it), a database/record
// identity covers only its exact (ns, db) pair.
func (a Auth) covers(ns, db string) bool {
	switch a.level {
	case LevelRoot:
		return true
	case LevelNamespace:
		return a.ns == ns
	case LevelDatabase, LevelRecord:
		return a.ns == ns && a.db == db
	default:
		return false
	}
}
