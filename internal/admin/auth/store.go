// Copyright (c) 2026 Castellan Authors. All rights reserved.

package auth

import (
	"context"
	"time"

	"github.com/castellan-io/castellan/internal/admin/identity"
)

// # Session Store

// SessionStore tracks live sessions. Every token is stored under its
// (user id, session UUID) pair; a token absent from the store is dead even
// if its signature and expiry still verify.
//
// Getters report absence via found=false — a missing key is an expected
// outcome, not an error. The error return is reserved for store connectivity.
type SessionStore interface {
	PutAccess(ctx context.Context, userID int64, sessionUUID, token string, ttl time.Duration) error
	GetAccess(ctx context.Context, userID int64, sessionUUID string) (token string, found bool, err error)
	DeleteAccess(ctx context.Context, userID int64, sessionUUID string) error

	PutRefresh(ctx context.Context, userID int64, sessionUUID, token string, ttl time.Duration) error
	GetRefresh(ctx context.Context, userID int64, sessionUUID string) (token string, found bool, err error)
	DeleteRefresh(ctx context.Context, userID int64, sessionUUID string) error

	PutMeta(ctx context.Context, userID int64, sessionUUID string, meta SessionMeta, ttl time.Duration) error
	DeleteMeta(ctx context.Context, userID int64, sessionUUID string) error

	// DeleteAllForUser revokes every session of one user across all three
	// key families. Used by the single-login sweep.
	DeleteAllForUser(ctx context.Context, userID int64) error
}

// # Identity Cache

// IdentityCache short-circuits the relational identity lookup on the hot
// authentication path.
type IdentityCache interface {
	Get(ctx context.Context, userID int64) (ident *identity.Identity, found bool, err error)
	Set(ctx context.Context, ident *identity.Identity, ttl time.Duration) error
	Invalidate(ctx context.Context, userID int64) error
}
