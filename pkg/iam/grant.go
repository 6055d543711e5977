// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package iam

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"storj.io/coredb/pkg/catalog"
	"storj.io/coredb/pkg/errs2"
)

// Bearer keys follow "sdb-<kind>-<grant-id>-<secret>", grounded on
// original_source's access.rs bearer-key construction: a short,
// human-recognizable prefix identifying the token kind, the grant id
// (used to look up the Grant row without scanning), and a random
// secret whose hash is the only thing ever persisted.
const (
	bearerPrefix       = "sdb"
	bearerKindAccess   = "access"
	bearerKindRefresh  = "refresh"
	grantIDLen         = 12
	secretLen          = 24
	grantIDAlphabet    = "0123456789abcdefghijklmnopqrstuvwxyz"
)

func randomAlphanumeric(n int, alphabet string) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", errs2.Internal.Wrap(err)
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// NewGrantID mints a fresh, unpredictable grant identifier.
func NewGrantID() (string, error) {
	return randomAlphanumeric(grantIDLen, grantIDAlphabet)
}

// newSecret mints the random component of a bearer key.
func newSecret() (string, error) {
	return randomAlphanumeric(secretLen, grantIDAlphabet+grantIDAlphabet) // wider pool, same charset
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IssueBearerKey mints a fresh secret, returning both the full bearer
// key string to hand to the caller (shown once) and the SHA-256 hex
// digest to persist on the Grant row — the raw secret itself is never
// stored.
func IssueBearerKey(refresh bool, grantID string) (key, secretHash string, err error) {
	secret, err := newSecret()
	if err != nil {
		return "", "", err
	}
	kind := bearerKindAccess
	if refresh {
		kind = bearerKindRefresh
	}
	key = fmt.Sprintf("%s-%s-%s-%s", bearerPrefix, kind, grantID, secret)
	return key, hashSecret(secret), nil
}

// ParsedBearerKey is a bearer key split into its addressable parts.
type ParsedBearerKey struct {
	Refresh bool
	GrantID string
	Secret  string
}

// ParseBearerKey validates the bearer key grammar and extracts its
// parts without touching storage.
func ParseBearerKey(key string) (ParsedBearerKey, error) {
	parts := strings.SplitN(key, "-", 4)
	if len(parts) != 4 || parts[0] != bearerPrefix {
		return ParsedBearerKey{}, errs2.AccessBearerMissingKey.New("malformed bearer key")
	}
	var refresh bool
	switch parts[1] {
	case bearerKindAccess:
		refresh = false
	case bearerKindRefresh:
		refresh = true
	default:
		return ParsedBearerKey{}, errs2.AccessBearerMissingKey.New("malformed bearer key")
	}
	if len(parts[2]) != grantIDLen || len(parts[3]) != secretLen {
		return ParsedBearerKey{}, errs2.AccessBearerMissingKey.New("malformed bearer key")
	}
	return ParsedBearerKey{Refresh: refresh, GrantID: parts[2], Secret: parts[3]}, nil
}

// VerifyBearerKey reports whether the parsed key's secret matches
// grant's stored hash, in constant time, and that the grant has not
// been revoked or expired. On any mismatch it returns the single
// opaque ErrInvalidAuth sentinel (never "wrong secret" vs "revoked" vs
// "expired"), per spec.md §7/§8 property 5's anti-enumeration rule.
func VerifyBearerKey(parsed ParsedBearerKey, grant catalog.Grant, now time.Time) error {
	if grant.Revoked {
		return errs2.ErrInvalidAuth
	}
	if !grant.ExpiresAt.IsZero() && !grant.ExpiresAt.After(now) {
		return errs2.ErrInvalidAuth
	}
	want := hashSecret(parsed.Secret)
	if subtle.ConstantTimeCompare([]byte(want), []byte(grant.SecretHash)) != 1 {
		return errs2.ErrInvalidAuth
	}
	return nil
}
