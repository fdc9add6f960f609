// Copyright (c) 2026 Castellan Authors. All rights reserved.

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, JWT signing) from
// the domain logic. The [TokenCodec] is a pure encode/decode pair with no
// side effects: session-store validity is a separate concern handled by the
// authentication service.
package sec

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// # Decode Failure Classes

var (
	// ErrTokenExpired marks a token whose embedded expiry has passed.
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenMalformed marks a structurally invalid or badly signed token.
	ErrTokenMalformed = errors.New("sec: token malformed")

	// ErrTokenIncomplete marks a token missing required claims.
	ErrTokenIncomplete = errors.New("sec: token missing required claims")
)

// # Claims

// TokenClaims is the payload embedded inside every bearer token: the subject
// user id, the session UUID, and the standard expiry instants.
type TokenClaims struct {
	jwt.RegisteredClaims

	// SessionUUID ties the token to one revocable session.
	SessionUUID string `json:"session_uuid"`
}

// TokenPayload is the decoded, validated content of a bearer token.
type TokenPayload struct {
	UserID      int64
	SessionUUID string
	ExpiresAt   time.Time
}

// # Codec

// TokenCodec signs and verifies bearer tokens with a shared secret.
//
// Encode and Decode are deterministic for a fixed secret, algorithm, and
// clock, and never perform I/O.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	issuer string

	// now is the clock source, replaceable in tests.
	now func() time.Time
}

// NewTokenCodec constructs a codec for the given shared secret and HMAC
// algorithm identifier (HS256, HS384, or HS512).
func NewTokenCodec(secret, algorithm, issuer string) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("sec: token secret must not be empty")
	}

	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("sec: unknown signing algorithm %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("sec: unsupported signing algorithm %q (HMAC family required)", algorithm)
	}

	return &TokenCodec{
		secret: []byte(secret),
		method: method,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// WithClock overrides the codec's time source. Intended for tests.
func (codec *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	codec.now = now
	return codec
}

// Encode serializes (user id, session UUID, expiry) into a signed token string.
func (codec *TokenCodec) Encode(userID int64, sessionUUID string, expiresAt time.Time) (string, error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    codec.issuer,
			IssuedAt:  jwt.NewNumericDate(codec.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionUUID: sessionUUID,
	}

	token := jwt.NewWithClaims(codec.method, claims)
	signed, err := token.SignedString(codec.secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signed, nil
}

// Decode verifies signature and expiry and extracts the payload.
//
// Failure classes:
//   - [ErrTokenExpired]: embedded expiry has passed.
//   - [ErrTokenMalformed]: bad structure, bad signature, or wrong algorithm.
//   - [ErrTokenIncomplete]: subject or session UUID claim is missing.
func (codec *TokenCodec) Decode(tokenString string) (*TokenPayload, error) {
	claims := &TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
			}
			return codec.secret, nil
		},
		jwt.WithValidMethods([]string{codec.method.Alg()}),
		jwt.WithTimeFunc(codec.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.Subject == "" || claims.SessionUUID == "" || claims.ExpiresAt == nil {
		return nil, ErrTokenIncomplete
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrTokenIncomplete
	}

	return &TokenPayload{
		UserID:      userID,
		SessionUUID: claims.SessionUUID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
