// Copyright (c) 2026 Castellan Authors. All rights reserved.

// Package rbac implements permission resolution and authorization decisions.
//
// # Architecture
//
// The package has two halves. The [Resolver] answers "which permission codes
// does user N hold?" through a read-through cache backed by the relational
// role/menu tables. The [Engine] answers "may this principal perform this
// request?" by walking a fixed sequence of gates over the resolved set.
//
// Cache entries are invalidated, never mutated: any change to a user's roles,
// a role's menus, or a menu's permission code deletes the affected entries so
// the next request recomputes from the source of truth.
package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// # Interfaces

// Cache stores resolved permission sets keyed by user id.
//
// Get distinguishes a cached empty set (found=true, empty slice) from a cache
// miss (found=false): users with zero permissions are cached too.
type Cache interface {
	Get(ctx context.Context, userID int64) (perms []string, found bool, err error)
	Set(ctx context.Context, userID int64, perms []string, ttl time.Duration) error
	Invalidate(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
}

// PermissionSource is the relational source of truth for permission codes.
type PermissionSource interface {
	// EnabledPermissions returns the distinct permission codes reachable from
	// the user's enabled roles through enabled menus.
	EnabledPermissions(ctx context.Context, userID int64) ([]string, error)

	// UserIDsForRole returns every user assigned to the given role, used to
	// fan out role-level invalidations.
	UserIDsForRole(ctx context.Context, roleID int64) ([]int64, error)
}

// # Resolver

// Resolver resolves a user's permission set with a read-through cache.
type Resolver struct {
	source PermissionSource
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewResolver wires a resolver over the given source and cache. Entries are
// cached for ttl; a non-positive ttl caches without expiry.
func NewResolver(source PermissionSource, cache Cache, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Permissions returns the user's permission codes, consulting the cache first.
//
// A cache read or write failure degrades to the relational source rather than
// failing the request; a source failure is returned to the caller.
func (r *Resolver) Permissions(ctx context.Context, userID int64) ([]string, error) {
	perms, found, err := r.cache.Get(ctx, userID)
	if err != nil {
		r.logger.WarnContext(ctx, "permission cache read failed, falling through",
			slog.Int64("user_id", userID), slog.String("error", err.Error()))
	} else if found {
		return perms, nil
	}

	perms, err = r.source.EnabledPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac_resolve_permissions_failed: %w", err)
	}

	if err := r.cache.Set(ctx, userID, perms, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "permission cache write failed",
			slog.Int64("user_id", userID), slog.String("error", err.Error()))
	}

	return perms, nil
}

// InvalidateUser drops the cached permission set for one user.
func (r *Resolver) InvalidateUser(ctx context.Context, userID int64) error {
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("rbac_invalidate_user_failed: %w", err)
	}
	return nil
}

// InvalidateRole drops the cached permission sets of every user holding the
// role. Used when a role's menu grants change.
func (r *Resolver) InvalidateRole(ctx context.Context, roleID int64) error {
	userIDs, err := r.source.UserIDsForRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("rbac_invalidate_role_failed: %w", err)
	}

	for _, userID := range userIDs {
		if err := r.cache.Invalidate(ctx, userID); err != nil {
			return fmt.Errorf("rbac_invalidate_role_failed: %w", err)
		}
	}
	return nil
}

// InvalidateAll drops every cached permission set. Used when a menu's
// permission code itself changes, which can affect any number of roles.
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	if err := r.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("rbac_invalidate_all_failed: %w", err)
	}
	return nil
}
