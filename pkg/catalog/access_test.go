// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/catalog"
)

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	acc, tx := newAccessor(t)
	defer tx.Cancel(ctx)

	_, err := acc.DefineUser(ctx, "root", "admin", "hash1", []string{"owner"})
	require.NoError(t, err)
	_, err = acc.DefineUser(ctx, "root", "admin", "hash1", []string{"owner"})
	require.ErrorIs(t, err, catalog.ErrUserExists)

	require.NoError(t, acc.SetUserPassword(ctx, "root", "admin", "hash2"))
	u, err := acc.ExpectUser(ctx, "root", "admin")
	require.NoError(t, err)
	require.Equal(t, "hash2", u.PasswordHash)

	require.NoError(t, acc.RemoveUser(ctx, "root", "admin"))
	_, err = acc.ExpectUser(ctx, "root", "admin")
	require.ErrorIs(t, err, catalog.ErrUserNotFound)
}

func TestAccessMethodAndGrantLifecycle(t *testing.T) {
	ctx := context.Background()
	acc, tx := newAccessor(t)
	defer tx.Cancel(ctx)

	scope := "db:ns:db"
	_, err := acc.DefineAccessMethod(ctx, scope, catalog.AccessMethod{
		Name: "user",
		Kind: catalog.AccessRecord,
	})
	require.NoError(t, err)

	g, err := acc.IssueGrant(ctx, scope, "user", catalog.Grant{
		ID:         "abc123",
		Scope:      scope,
		AccessName: "user",
		SecretHash: "deadbeef",
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, "abc123", g.ID)

	got, err := acc.ExpectGrant(ctx, scope, "user", "abc123")
	require.NoError(t, err)
	require.False(t, got.Revoked)

	require.NoError(t, acc.RevokeGrant(ctx, scope, "user", "abc123"))
	got, err = acc.ExpectGrant(ctx, scope, "user", "abc123")
	require.NoError(t, err)
	require.True(t, got.Revoked)

	require.NoError(t, acc.RemoveAccessMethod(ctx, scope, "user"))
	_, err = acc.ExpectAccessMethod(ctx, scope, "user")
	require.ErrorIs(t, err, catalog.ErrAccessNotFound)
	// Removing the access method sweeps its grants too.
	_, err = acc.ExpectGrant(ctx, scope, "user", "abc123")
	require.ErrorIs(t, err, catalog.ErrGrantNotFound)
}

func TestPurgeExpiredGrants(t *testing.T) {
	ctx := context.Background()
	acc, tx := newAccessor(t)
	defer tx.Cancel(ctx)

	scope := "db:ns:db"
	_, err := acc.DefineAccessMethod(ctx, scope, catalog.AccessMethod{Name: "user", Kind: catalog.AccessRecord})
	require.NoError(t, err)

	_, err = acc.IssueGrant(ctx, scope, "user", catalog.Grant{ID: "expired", ExpiresAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	_, err = acc.IssueGrant(ctx, scope, "user", catalog.Grant{ID: "live", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	n, err := acc.PurgeExpiredGrants(ctx, scope, "user", time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok, err := acc.GetGrant(ctx, scope, "user", "expired")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = acc.GetGrant(ctx, scope, "user", "live")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLiveQuerySubscriptionDualIndex(t *testing.T) {
	ctx := context.Background()
	acc, tx := newAccessor(t)
	defer tx.Cancel(ctx)

	sub := catalog.Subscription{ID: "lq1", NodeID: "node1", Namespace: "ns", Database: "db", Table: "person"}
	require.NoError(t, acc.DefineSubscription(ctx, 42, sub))

	byNode, err := acc.AllLiveByNode(ctx, "node1")
	require.NoError(t, err)
	require.Len(t, byNode, 1)

	byTable, err := acc.AllLiveByTable(ctx, 42)
	require.NoError(t, err)
	require.Len(t, byTable, 1)

	require.NoError(t, acc.RemoveSubscription(ctx, 42, "node1", "lq1"))

	byNode, err = acc.AllLiveByNode(ctx, "node1")
	require.NoError(t, err)
	require.Empty(t, byNode)
}
