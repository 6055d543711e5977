// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package iam_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/coredb/pkg/errs2"
	"storj.io/coredb/pkg/iam"
)

func TestIssueAndVerifyJWT(t *testing.T) {
	key := []byte("test-signing-key")
	tok, err := iam.IssueJWT("coredb", "ns", "db", "user:alice", time.Hour, key)
	require.NoError(t, err)

	claims, err := iam.VerifyJWT(tok, key)
	require.NoError(t, err)
	require.Equal(t, "ns", claims.Namespace)
	require.Equal(t, "db", claims.Database)
	require.Equal(t, "user:alice", claims.Subject)
}

func TestVerifyJWTExpired(t *testing.T) {
	key := []byte("test-signing-key")
	tok, err := iam.IssueJWT("coredb", "ns", "db", "user:alice", -time.Second, key)
	require.NoError(t, err)

	_, err = iam.VerifyJWT(tok, key)
	require.Error(t, err)
	require.True(t, errs2.ExpiredSession.Has(err))
}

func TestVerifyJWTWrongKey(t *testing.T) {
	tok, err := iam.IssueJWT("coredb", "ns", "db", "user:alice", time.Hour, []byte("key-a"))
	require.NoError(t, err)

	_, err = iam.VerifyJWT(tok, []byte("key-b"))
	require.Error(t, err)
}
