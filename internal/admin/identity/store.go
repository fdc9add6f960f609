// Copyright (c) 2026 Castellan Authors. All rights reserved.

package identity

import (
	"context"
	"time"
)

// Store defines the read contract against the user-management schema.
//
// # Error Mapping
//
// Lookup methods return apperr.NotFound when no row matches; every other
// failure is a storage error the caller must surface as a 5xx.
type Store interface {

	// FindByUsername returns the identity for a login name, with department
	// and roles attached.
	FindByUsername(ctx context.Context, username string) (*Identity, error)

	// FindByID returns the identity for a user id, with department and
	// roles attached.
	FindByID(ctx context.Context, id int64) (*Identity, error)

	// EnabledPermissions returns the union of permission strings granted
	// through the user's enabled roles' enabled menus. Disabled roles,
	// disabled menus, and menus without a permission string contribute
	// nothing. The result carries no duplicates.
	EnabledPermissions(ctx context.Context, userID int64) ([]string, error)

	// UserIDsForRole returns the ids of every user assigned to the role.
	// Used to invalidate permission caches after a role-menu mutation.
	UserIDsForRole(ctx context.Context, roleID int64) ([]int64, error)

	// UpdateLastLogin records a successful login instant.
	UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error
}
