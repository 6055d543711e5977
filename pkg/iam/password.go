// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package iam implements the C6 access-and-identity layer: root/ns/db
// password login, record SIGNIN/SIGNUP, JWT issuance and verification,
// bearer/refresh token rotation, and capability enforcement, per
// spec.md §4.6. It is grounded on original_source's iam/signin.rs and
// iam/verify.rs for exact semantics, and on storj's macaroon_test.go
// and satellite/console/consoleauth token/claims tests for the Go
// idiom (hash-and-compare, base64 token framing).
package iam

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"storj.io/coredb/pkg/errs2"
)

// Argon2 parameters. These match the OWASP-recommended baseline for
// argon2id and are not configurable per spec.md's closed parameter set
// (§6).
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// HashPassword returns an argon2id-encoded hash string in the
// "$argon2id$v=19$m=...,t=...,p=...$salt$hash" form, self-describing so
// VerifyPassword never needs out-of-band parameters.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errs2.Internal.Wrap(err)
	}
	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	encoded := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))
	return encoded, nil
}

// VerifyPassword reports whether password matches the encoded hash,
// re-deriving with the embedded parameters and comparing in constant
// time.
func VerifyPassword(encoded, password string) (bool, error) {
	// "", "argon2id", "v=19", "m=...,t=...,p=...", "salt", "hash"
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[1] != "argon2id" {
		return false, errs2.Internal.New("malformed password hash")
	}
	var mem, t uint32
	var p uint8
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &mem, &t, &p); err != nil {
		return false, errs2.Internal.New("malformed password hash")
	}
	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return false, errs2.Internal.Wrap(err)
	}
	want, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return false, errs2.Internal.Wrap(err)
	}
	got := argon2.IDKey([]byte(password), salt, t, mem, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
