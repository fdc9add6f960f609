// Copyright (c) 2026 Castellan Authors. All rights reserved.

/*
Package identity defines the read model of the authenticated subject.

It holds the stable user attributes the auth core needs for its decisions
(status flags, department, assigned roles) and the storage contract for
loading them. The user-management subsystem owns the underlying tables;
this package only reads them, except for last-login-time updates.
*/
package identity

import "time"

// # Status Flags

// Status values shared by users, departments, roles, and menus.
const (
	StatusDisabled = 0
	StatusEnabled  = 1
)

// # Domain Entities

// Identity represents a back-office user's stable authorization attributes.
type Identity struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`

	// PasswordHash is empty when no password has been set for the account.
	PasswordHash string `json:"-"`

	Status int `json:"status"`

	// IsSuperuser grants the administrator override: every authorization
	// check short-circuits to allow.
	IsSuperuser bool `json:"is_superuser"`

	// IsStaff permits mutating back-office operations.
	IsStaff bool `json:"is_staff"`

	// IsMultiLogin permits concurrent sessions. When false, a new login
	// revokes every prior session for this user.
	IsMultiLogin bool `json:"is_multi_login"`

	// Dept is nil when the user has no department assignment.
	Dept *Dept `json:"dept,omitempty"`

	// Roles is the unordered set of assigned roles. Zero roles is a
	// permitted state: role assignment is optional.
	Roles []Role `json:"roles"`

	LastLoginTime *time.Time `json:"last_login_time,omitempty"`
}

// Dept is the department a user belongs to.
type Dept struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status int    `json:"status"`
}

// Role carries the attributes the auth core reads. Menu assignments are
// resolved through [Store.EnabledPermissions], never loaded eagerly here.
type Role struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status int    `json:"status"`
}

// # Derived Checks

// IsActive reports whether the account itself is enabled.
func (i *Identity) IsActive() bool { return i.Status == StatusEnabled }

// HasEnabledRole reports whether at least one assigned role is enabled.
// It returns false for a user with zero roles; callers that treat zero
// roles as permitted must check len(Roles) first.
func (i *Identity) HasEnabledRole() bool {
	for _, role := range i.Roles {
		if role.Status == StatusEnabled {
			return true
		}
	}
	return false
}

// # Session Principal

// Principal binds a resolved identity to the session it authenticated with.
// The session UUID is required for logout and per-session revocation.
type Principal struct {
	Identity    *Identity
	SessionUUID string
}
