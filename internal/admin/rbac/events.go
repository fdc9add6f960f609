// Copyright (c) 2026 Castellan Authors. All rights reserved.

package rbac

import (
	"context"
	"fmt"
)

// # Invalidation Events

// Event is an administrative change that invalidates cached permission sets.
type Event interface {
	// eventScope describes the blast radius, used only for error messages.
	eventScope() string
}

// UserRolesChanged signals that one user's role assignments changed.
type UserRolesChanged struct {
	UserID int64
}

func (UserRolesChanged) eventScope() string { return "user" }

// RoleMenusChanged signals that one role's menu grants changed, affecting
// every user holding that role.
type RoleMenusChanged struct {
	RoleID int64
}

func (RoleMenusChanged) eventScope() string { return "role" }

// MenuPermissionChanged signals that a menu's permission code or status
// changed. The affected role set is unknown, so the whole cache is dropped.
type MenuPermissionChanged struct{}

func (MenuPermissionChanged) eventScope() string { return "all" }

// HandleEvent applies the invalidation an event demands.
func (r *Resolver) HandleEvent(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case UserRolesChanged:
		return r.InvalidateUser(ctx, e.UserID)
	case RoleMenusChanged:
		return r.InvalidateRole(ctx, e.RoleID)
	case MenuPermissionChanged:
		return r.InvalidateAll(ctx)
	default:
		return fmt.Errorf("rbac_unknown_event: scope %q", event.eventScope())
	}
}
