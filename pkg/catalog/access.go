// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"
	"time"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

func collAccesses(scope string) string { return "ac:" + scope }

// AllAccessMethods returns every access method defined at scope.
func (a *Accessor) AllAccessMethods(ctx context.Context, scope string) ([]AccessMethod, error) {
	rng := storage.ToPrefixRange(storagekey.AccessPrefix(scope))
	return cachedAll[AccessMethod](ctx, a, collAccesses(scope), scope, rng, 64)
}

// GetAccessMethod returns the access method named name at scope.
func (a *Accessor) GetAccessMethod(ctx context.Context, scope, name string) (AccessMethod, bool, error) {
	all, err := a.AllAccessMethods(ctx, scope)
	if err != nil {
		return AccessMethod{}, false, err
	}
	for _, am := range all {
		if am.Name == name {
			return am, true, nil
		}
	}
	return AccessMethod{}, false, nil
}

// ExpectAccessMethod returns the access method or errs2.AccessNotFound,
// via ErrAccessNotFound — the one not-found case C9 must translate to
// the opaque InvalidAuth sentinel rather than leak to the caller
// verbatim, per spec.md §7/§8 property 5.
func (a *Accessor) ExpectAccessMethod(ctx context.Context, scope, name string) (AccessMethod, error) {
	am, ok, err := a.GetAccessMethod(ctx, scope, name)
	if err != nil {
		return AccessMethod{}, err
	}
	if !ok {
		return AccessMethod{}, ErrAccessNotFound
	}
	return am, nil
}

// DefineAccessMethod creates an access method definition at scope.
func (a *Accessor) DefineAccessMethod(ctx context.Context, scope string, am AccessMethod) (AccessMethod, error) {
	if _, ok, err := a.GetAccessMethod(ctx, scope, am.Name); err != nil {
		return AccessMethod{}, err
	} else if ok {
		return AccessMethod{}, ErrAccessExists
	}
	val, err := encode(am)
	if err != nil {
		return AccessMethod{}, err
	}
	if err := a.tx.Raw().Put(ctx, storagekey.AccessKey(scope, am.Name), val); err != nil {
		return AccessMethod{}, err
	}
	a.bump(collAccesses(scope))
	return am, nil
}

// RemoveAccessMethod deletes the access method definition and every
// grant it issued.
func (a *Accessor) RemoveAccessMethod(ctx context.Context, scope, name string) error {
	if _, err := a.ExpectAccessMethod(ctx, scope, name); err != nil {
		return err
	}
	if err := storage.DeletePrefix(ctx, a.tx.Raw(), storagekey.GrantPrefix(scope, name)); err != nil {
		return err
	}
	if err := a.tx.Raw().Del(ctx, storagekey.AccessKey(scope, name)); err != nil {
		return err
	}
	a.bump(collGrants(scope, name))
	a.bump(collAccesses(scope))
	return nil
}

// --- Grants ---

func collGrants(scope, accessName string) string { return "gr:" + scope + ":" + accessName }

// AllGrants returns every grant issued by the named access method.
func (a *Accessor) AllGrants(ctx context.Context, scope, accessName string) ([]Grant, error) {
	rng := storage.ToPrefixRange(storagekey.GrantPrefix(scope, accessName))
	return cachedAll[Grant](ctx, a, collGrants(scope, accessName), scope+":"+accessName, rng, 128)
}

// GetGrant returns the grant with the given id.
func (a *Accessor) GetGrant(ctx context.Context, scope, accessName, grantID string) (Grant, bool, error) {
	all, err := a.AllGrants(ctx, scope, accessName)
	if err != nil {
		return Grant{}, false, err
	}
	for _, g := range all {
		if g.ID == grantID {
			return g, true, nil
		}
	}
	return Grant{}, false, nil
}

// ExpectGrant returns the grant or ErrGrantNotFound.
func (a *Accessor) ExpectGrant(ctx context.Context, scope, accessName, grantID string) (Grant, error) {
	g, ok, err := a.GetGrant(ctx, scope, accessName, grantID)
	if err != nil {
		return Grant{}, err
	}
	if !ok {
		return Grant{}, ErrGrantNotFound
	}
	return g, nil
}

// IssueGrant persists a new grant. Callers (C6) are responsible for
// minting the id and hashing the secret before calling this.
func (a *Accessor) IssueGrant(ctx context.Context, scope, accessName string, g Grant) (Grant, error) {
	val, err := encode(g)
	if err != nil {
		return Grant{}, err
	}
	if err := a.tx.Raw().Put(ctx, storagekey.GrantKey(scope, accessName, g.ID), val); err != nil {
		return Grant{}, err
	}
	a.bump(collGrants(scope, accessName))
	return g, nil
}

// RevokeGrant marks a grant revoked in place, which immediately
// invalidates every bearer/refresh token derived from it on the next
// verification (spec.md §4.6 "revocation" / §8 property 6).
func (a *Accessor) RevokeGrant(ctx context.Context, scope, accessName, grantID string) error {
	g, err := a.ExpectGrant(ctx, scope, accessName, grantID)
	if err != nil {
		return err
	}
	g.Revoked = true
	val, err := encode(g)
	if err != nil {
		return err
	}
	if err := a.tx.Raw().Set(ctx, storagekey.GrantKey(scope, accessName, grantID), val); err != nil {
		return err
	}
	a.bump(collGrants(scope, accessName))
	return nil
}

// PurgeExpiredGrants deletes every grant issued by accessName whose
// ExpiresAt has passed now, keeping the grant range from growing
// without bound (supplemented from original_source's session-gc path).
func (a *Accessor) PurgeExpiredGrants(ctx context.Context, scope, accessName string, now time.Time) (int, error) {
	all, err := a.AllGrants(ctx, scope, accessName)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, g := range all {
		if g.ExpiresAt.IsZero() || g.ExpiresAt.After(now) {
			continue
		}
		if err := a.tx.Raw().Del(ctx, storagekey.GrantKey(scope, accessName, g.ID)); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		a.bump(collGrants(scope, accessName))
	}
	return n, nil
}
