// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package iam

import (
	"context"
	"time"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/session"
)

// RecordEvaluator runs a record access method's SIGNIN/SIGNUP/
// AUTHENTICATE expressions. EvaluateSignin returns the record id the
// expression resolves to; EvaluateAuthenticate only accepts (nil) or
// rejects (error) an already-resolved record id, and its result never
// replaces that id.
// The engine (C9) is the only implementation of this interface; iam
// stays decoupled from the expression evaluator so C6 can be built,
// tested, and grounded independently of C9 (spec.md §4.6's "AUTHENTICATE
// hooks" run arbitrary query expressions, which only C9 can evaluate).
type RecordEvaluator interface {
	EvaluateSignin(ctx context.Context, ns, db string, method catalog.AccessMethod, vars map[string]interface{}) (recordID string, err error)
	EvaluateAuthenticate(ctx context.Context, ns, db string, method catalog.AccessMethod, auth session.Auth) error
}

// Manager issues and verifies credentials. It is constructed once per
// Datastore and is safe for concurrent use.
type Manager struct {
	jwtKey []byte
	issuer string

	forwardAccessErrors bool
}

// NewManager builds a Manager signing JWTs with jwtKey under issuer.
func NewManager(issuer string, jwtKey []byte) *Manager {
	return &Manager{jwtKey: jwtKey, issuer: issuer}
}

// WithForwardAccessErrors mirrors original_source's
// INSECURE_FORWARD_ACCESS_ERRORS: when v is true, a failed record
// access SIGNIN/AUTHENTICATE expression reports its underlying error
// instead of collapsing to the opaque InvalidAuth sentinel. Dev-only;
// callers should leave this off in production.
func (m *Manager) WithForwardAccessErrors(v bool) *Manager {
	m.forwardAccessErrors = v
	return m
}

// Result is what a successful signin/signup produces: a fresh JWT and
// the Auth to attach to the caller's Session.
type Result struct {
	Token string
	Auth  session.Auth
}

// SigninRoot verifies root-level user credentials and mints a root
// session token, per spec.md §4.6's "Root / NS / DB password login".
func (m *Manager) SigninRoot(ctx context.Context, acc *catalog.Accessor, user, pass string, sessionDuration time.Duration) (Result, error) {
	return m.signinPassword(ctx, acc, "root", "", "", user, pass, sessionDuration)
}

// SigninNamespace verifies a namespace-level user's credentials.
func (m *Manager) SigninNamespace(ctx context.Context, acc *catalog.Accessor, ns, user, pass string, sessionDuration time.Duration) (Result, error) {
	return m.signinPassword(ctx, acc, "ns:"+ns, ns, "", user, pass, sessionDuration)
}

// SigninDatabase verifies a database-level user's credentials.
func (m *Manager) SigninDatabase(ctx context.Context, acc *catalog.Accessor, ns, db, user, pass string, sessionDuration time.Duration) (Result, error) {
	return m.signinPassword(ctx, acc, "db:"+ns+":"+db, ns, db, user, pass, sessionDuration)
}

func (m *Manager) signinPassword(ctx context.Context, acc *catalog.Accessor, scope, ns, db, user, pass string, sessionDuration time.Duration) (Result, error) {
	u, err := acc.ExpectUser(ctx, scope, user)
	if err != nil {
		// Per spec.md §7, a missing user must not be distinguishable
		// from a wrong password.
		return Result{}, errs2.ErrInvalidAuth
	}
	ok, err := VerifyPassword(u.PasswordHash, pass)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, errs2.ErrInvalidAuth
	}

	var roles []session.Role
	for _, r := range u.Roles {
		roles = append(roles, parseRole(r))
	}

	var auth session.Auth
	switch scope {
	case "root":
		auth = session.RootAuth(user, roles...)
	default:
		if db == "" {
			auth = session.NamespaceAuth(ns, user, roles...)
		} else {
			auth = session.DatabaseAuth(ns, db, user, roles...)
		}
	}

	tok, err := IssueJWT(m.issuer, ns, db, auth.Subject(), sessionDuration, m.jwtKey)
	if err != nil {
		return Result{}, err
	}
	return Result{Token: tok, Auth: auth}, nil
}

func parseRole(r string) session.Role {
	switch r {
	case "editor":
		return session.RoleEditor
	case "owner":
		return session.RoleOwner
	default:
		return session.RoleViewer
	}
}

// SigninRecordAccess runs a record access method's SIGNIN expression
// via eval, then — if the method mints refresh tokens — issues a
// bearer grant recording the resulting record id, per spec.md §4.6.
func (m *Manager) SigninRecordAccess(ctx context.Context, acc *catalog.Accessor, ns, db, accessName string, vars map[string]interface{}, eval RecordEvaluator, sessionDuration time.Duration) (Result, string, error) {
	scope := "db:" + ns + ":" + db
	method, err := acc.ExpectAccessMethod(ctx, scope, accessName)
	if err != nil {
		return Result{}, "", errs2.ErrInvalidAuth
	}
	if method.Kind != catalog.AccessRecord {
		return Result{}, "", errs2.AccessMethodMismatch.New("access method is not a record access method")
	}

	recordID, err := eval.EvaluateSignin(ctx, ns, db, method, vars)
	if err != nil {
		if t, ok := errs2.AsThrown(err); ok {
			return Result{}, "", t
		}
		if m.forwardAccessErrors {
			return Result{}, "", err
		}
		return Result{}, "", errs2.ErrInvalidAuth
	}

	auth := session.RecordAuth(ns, db, recordID)
	if method.AuthenticateExpr != "" {
		if err := eval.EvaluateAuthenticate(ctx, ns, db, method, auth); err != nil {
			if t, ok := errs2.AsThrown(err); ok {
				return Result{}, "", t
			}
			if m.forwardAccessErrors {
				return Result{}, "", err
			}
			return Result{}, "", errs2.ErrInvalidAuth
		}
	}

	if method.SessionDuration > 0 {
		sessionDuration = method.SessionDuration
	}
	tok, err := IssueJWT(m.issuer, ns, db, recordID, sessionDuration, m.jwtKey)
	if err != nil {
		return Result{}, "", err
	}

	var refreshKey string
	if method.Refresh {
		grantID, err := NewGrantID()
		if err != nil {
			return Result{}, "", err
		}
		key, secretHash, err := IssueBearerKey(true, grantID)
		if err != nil {
			return Result{}, "", err
		}
		now := time.Now()
		_, err = acc.IssueGrant(ctx, scope, accessName, catalog.Grant{
			ID:         grantID,
			Scope:      scope,
			AccessName: accessName,
			SecretHash: secretHash,
			Subject:    recordID,
			ExpiresAt:  now.Add(method.GrantDuration),
			IssuedAt:   now,
		})
		if err != nil {
			return Result{}, "", err
		}
		refreshKey = key
	}

	return Result{Token: tok, Auth: auth}, refreshKey, nil
}

// RefreshRecordAccess rotates a single-use refresh token: the
// presented bearer key's grant is verified, revoked, and replaced by a
// freshly issued one, per spec.md §4.6's "refresh-token rotation
// (single-use)".
func (m *Manager) RefreshRecordAccess(ctx context.Context, acc *catalog.Accessor, ns, db, accessName, bearerKey string, eval RecordEvaluator, sessionDuration time.Duration) (Result, string, error) {
	parsed, err := ParseBearerKey(bearerKey)
	if err != nil || !parsed.Refresh {
		return Result{}, "", errs2.ErrInvalidAuth
	}
	scope := "db:" + ns + ":" + db
	grant, err := acc.ExpectGrant(ctx, scope, accessName, parsed.GrantID)
	if err != nil {
		return Result{}, "", errs2.ErrInvalidAuth
	}
	if err := VerifyBearerKey(parsed, grant, time.Now()); err != nil {
		return Result{}, "", errs2.ErrInvalidAuth
	}

	// Single-use: the presented grant is revoked unconditionally,
	// whether or not the rest of this call succeeds, so a replayed
	// token can never succeed twice.
	if err := acc.RevokeGrant(ctx, scope, accessName, parsed.GrantID); err != nil {
		return Result{}, "", err
	}

	method, err := acc.ExpectAccessMethod(ctx, scope, accessName)
	if err != nil {
		return Result{}, "", errs2.ErrInvalidAuth
	}
	if method.SessionDuration > 0 {
		sessionDuration = method.SessionDuration
	}

	auth := session.RecordAuth(ns, db, grant.Subject)
	if method.AuthenticateExpr != "" {
		if err := eval.EvaluateAuthenticate(ctx, ns, db, method, auth); err != nil {
			if t, ok := errs2.AsThrown(err); ok {
				return Result{}, "", t
			}
			if m.forwardAccessErrors {
				return Result{}, "", err
			}
			return Result{}, "", errs2.ErrInvalidAuth
		}
	}

	tok, err := IssueJWT(m.issuer, ns, db, grant.Subject, sessionDuration, m.jwtKey)
	if err != nil {
		return Result{}, "", err
	}

	newGrantID, err := NewGrantID()
	if err != nil {
		return Result{}, "", err
	}
	key, secretHash, err := IssueBearerKey(true, newGrantID)
	if err != nil {
		return Result{}, "", err
	}
	now := time.Now()
	if _, err := acc.IssueGrant(ctx, scope, accessName, catalog.Grant{
		ID:         newGrantID,
		Scope:      scope,
		AccessName: accessName,
		SecretHash: secretHash,
		Subject:    grant.Subject,
		ExpiresAt:  now.Add(method.GrantDuration),
		IssuedAt:   now,
	}); err != nil {
		return Result{}, "", err
	}

	return Result{Token: tok, Auth: auth}, key, nil
}
