// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

package iam

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"storj.io/coredb/pkg/errs2"
)

// Claims is the JWT payload minted on a successful signin, per spec.md
// §4.6: "{iss, iat, nbf, exp, jti, ns?, db?, id}".
type Claims struct {
	jwt.RegisteredClaims
	Namespace string `json:"ns,omitempty"`
	Database  string `json:"db,omitempty"`
	Subject   string `json:"id"`
}

// IssueJWT signs a Claims payload with HS512 using key, valid from now
// until now+sessionDuration.
func IssueJWT(issuer, ns, db, subject string, sessionDuration time.Duration, key []byte) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionDuration)),
			ID:        uuid.NewString(),
		},
		Namespace: ns,
		Database:  db,
		Subject:   subject,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", errs2.Internal.Wrap(err)
	}
	return signed, nil
}

// VerifyJWT parses and validates a token string against key, returning
// its Claims. Any failure (expired, not-yet-valid, bad signature,
// malformed) collapses to errs2.ExpiredSession/ErrInvalidAuth at the
// caller per spec.md §7's "any auth failure that is not explicitly a
// user error is reported as InvalidAuth" rule — this function itself
// distinguishes expiry only so the caller can choose the precise
// class.
func VerifyJWT(tokenString string, key []byte) (*Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errs2.UnexpectedAuth.New("unexpected signing method")
		}
		return key, nil
	})
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, errs2.ExpiredSession.Wrap(err)
		}
		return nil, errs2.UnexpectedAuth.Wrap(err)
	}
	if !tok.Valid {
		return nil, errs2.UnexpectedAuth.New("invalid token")
	}
	return &claims, nil
}
