// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog

import (
	"context"

	"storj.io/coredb/pkg/storage"
	"storj.io/coredb/pkg/storagekey"
)

func collUsers(scope string) string { return "us:" + scope }

// AllUsers returns every user defined at scope ("root", "ns:<name>",
// or "db:<ns>:<name>"), per spec.md §4.5's three authentication levels.
func (a *Accessor) AllUsers(ctx context.Context, scope string) ([]User, error) {
	rng := storage.ToPrefixRange(storagekey.UserPrefix(scope))
	return cachedAll[User](ctx, a, collUsers(scope), scope, rng, 64)
}

// GetUser returns the user named name at scope.
func (a *Accessor) GetUser(ctx context.Context, scope, name string) (User, bool, error) {
	all, err := a.AllUsers(ctx, scope)
	if err != nil {
		return User{}, false, err
	}
	for _, u := range all {
		if u.Name == name {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

// ExpectUser returns the user or ErrUserNotFound.
func (a *Accessor) ExpectUser(ctx context.Context, scope, name string) (User, error) {
	u, ok, err := a.GetUser(ctx, scope, name)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// DefineUser creates a user with an already-hashed password (hashing
// itself is C6's concern; this accessor only persists the result).
func (a *Accessor) DefineUser(ctx context.Context, scope, name, passwordHash string, roles []string) (User, error) {
	if _, ok, err := a.GetUser(ctx, scope, name); err != nil {
		return User{}, err
	} else if ok {
		return User{}, ErrUserExists
	}
	u := User{Name: name, PasswordHash: passwordHash, Roles: roles}
	val, err := encode(u)
	if err != nil {
		return User{}, err
	}
	if err := a.tx.Raw().Put(ctx, storagekey.UserKey(scope, name), val); err != nil {
		return User{}, err
	}
	a.bump(collUsers(scope))
	return u, nil
}

// SetUserPassword overwrites a user's password hash in place.
func (a *Accessor) SetUserPassword(ctx context.Context, scope, name, passwordHash string) error {
	u, err := a.ExpectUser(ctx, scope, name)
	if err != nil {
		return err
	}
	u.PasswordHash = passwordHash
	val, err := encode(u)
	if err != nil {
		return err
	}
	if err := a.tx.Raw().Set(ctx, storagekey.UserKey(scope, name), val); err != nil {
		return err
	}
	a.bump(collUsers(scope))
	return nil
}

// RemoveUser deletes a user definition.
func (a *Accessor) RemoveUser(ctx context.Context, scope, name string) error {
	if _, err := a.ExpectUser(ctx, scope, name); err != nil {
		return err
	}
	if err := a.tx.Raw().Del(ctx, storagekey.UserKey(scope, name)); err != nil {
		return err
	}
	a.bump(collUsers(scope))
	return nil
}
