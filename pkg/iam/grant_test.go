// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package iam_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/iam"
)

func TestBearerKeyRoundTrip(t *testing.T) {
	grantID, err := iam.NewGrantID()
	require.NoError(t, err)

	key, secretHash, err := iam.IssueBearerKey(true, grantID)
	require.NoError(t, err)

	parsed, err := iam.ParseBearerKey(key)
	require.NoError(t, err)
	require.True(t, parsed.Refresh)
	require.Equal(t, grantID, parsed.GrantID)

	grant := catalog.Grant{SecretHash: secretHash, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, iam.VerifyBearerKey(parsed, grant, time.Now()))
}

func TestVerifyBearerKeyRevokedOrExpired(t *testing.T) {
	grantID, err := iam.NewGrantID()
	require.NoError(t, err)
	key, secretHash, err := iam.IssueBearerKey(false, grantID)
	require.NoError(t, err)
	parsed, err := iam.ParseBearerKey(key)
	require.NoError(t, err)

	revoked := catalog.Grant{SecretHash: secretHash, Revoked: true}
	require.Error(t, iam.VerifyBearerKey(parsed, revoked, time.Now()))

	expired := catalog.Grant{SecretHash: secretHash, ExpiresAt: time.Now().Add(-time.Minute)}
	require.Error(t, iam.VerifyBearerKey(parsed, expired, time.Now()))
}

func TestParseBearerKeyRejectsWrongLengthSegments(t *testing.T) {
	grantID, err := iam.NewGrantID()
	require.NoError(t, err)
	key, _, err := iam.IssueBearerKey(false, grantID)
	require.NoError(t, err)

	parts := strings.SplitN(key, "-", 4)
	require.Len(t, parts, 4)
	grant, secret := parts[2], parts[3]

	_, err = iam.ParseBearerKey(strings.Join([]string{"sdb", "access", grant[:len(grant)-1], secret}, "-"))
	require.Error(t, err)

	_, err = iam.ParseBearerKey(strings.Join([]string{"sdb", "access", grant, secret[:len(secret)-1]}, "-"))
	require.Error(t, err)

	_, err = iam.ParseBearerKey(strings.Join([]string{"sdb", "access", grant, secret + "x"}, "-"))
	require.Error(t, err)
}

func TestVerifyBearerKeyWrongSecret(t *testing.T) {
	grantID, err := iam.NewGrantID()
	require.NoError(t, err)
	_, secretHash, err := iam.IssueBearerKey(false, grantID)
	require.NoError(t, err)

	_, otherSecretHash, err := iam.IssueBearerKey(false, grantID)
	require.NoError(t, err)
	require.NotEqual(t, secretHash, otherSecretHash)

	otherKey, _, err := iam.IssueBearerKey(false, grantID)
	require.NoError(t, err)
	parsed, err := iam.ParseBearerKey(otherKey)
	require.NoError(t, err)

	grant := catalog.Grant{SecretHash: secretHash}
	require.Error(t, iam.VerifyBearerKey(parsed, grant, time.Now()))
}
