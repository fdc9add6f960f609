// Copyright (c) 2026 Castellan Authors. All rights reserved.

// Package auth implements credential verification, token issuance, refresh
// rotation, and bearer-token authentication.
//
// # Architecture
//
// A session is the unit of revocation: every login mints a fresh session
// UUID, and both tokens of the pair carry it. Signed tokens are only half the
// story — a token is live only while its exact string sits in the session
// store under (user id, session UUID). Deleting those keys revokes the
// session instantly, regardless of the embedded expiry.
package auth

import "time"

// TokenPair is the result of a login or refresh: one access token and one
// refresh token bound to the same session.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_token_expire_time"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_token_expire_time"`
	SessionUUID      string    `json:"session_uuid"`
}

// LoginInput carries the credentials plus the request attributes recorded in
// the login log.
type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// SessionMeta is the auxiliary record stored alongside each session.
type SessionMeta struct {
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	LoginTime time.Time `json:"login_time"`
}
