// Copyright (c) 2026 Castellan Authors. All rights reserved.

package rbac

import (
	"context"
	"fmt"
	"net/http"

	"github.com/castellan-io/castellan/internal/admin/identity"
	"github.com/castellan-io/castellan/internal/platform/apperr"
)

// # Decision Engine

// PermissionResolver yields the effective permission codes for a user.
type PermissionResolver interface {
	Permissions(ctx context.Context, userID int64) ([]string, error)
}

// EngineConfig tunes the authorization gates.
type EngineConfig struct {
	// MenuMode enables menu-derived permission checking. When false the
	// engine stops after the account and staff gates.
	MenuMode bool

	// ExemptPaths are request paths that bypass authorization entirely.
	ExemptPaths []string

	// ExemptPermissions are permission codes granted to every authenticated
	// principal without a cache lookup.
	ExemptPermissions []string
}

// Engine makes the authorization decision for one request. The gate order is
// fixed: exemption, authentication, superuser bypass, active-role check,
// staff check for mutating methods, then the permission-set membership test.
type Engine struct {
	resolver PermissionResolver

	menuMode          bool
	exemptPaths       map[string]struct{}
	exemptPermissions map[string]struct{}
}

// NewEngine builds the decision engine.
func NewEngine(resolver PermissionResolver, cfg EngineConfig) *Engine {
	engine := &Engine{
		resolver:          resolver,
		menuMode:          cfg.MenuMode,
		exemptPaths:       make(map[string]struct{}, len(cfg.ExemptPaths)),
		exemptPermissions: make(map[string]struct{}, len(cfg.ExemptPermissions)),
	}
	for _, path := range cfg.ExemptPaths {
		engine.exemptPaths[path] = struct{}{}
	}
	for _, perm := range cfg.ExemptPermissions {
		engine.exemptPermissions[perm] = struct{}{}
	}
	return engine
}

// isMutating reports whether the HTTP method changes state. The staff gate
// only applies to these.
func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Decide returns nil when the principal may perform the request, or the
// apperr describing exactly which gate rejected it.
//
// ident may be nil for anonymous requests; only exempt paths pass then.
func (e *Engine) Decide(ctx context.Context, ident *identity.Identity, required, method, path string) error {
	if _, exempt := e.exemptPaths[path]; exempt {
		return nil
	}

	if ident == nil {
		return apperr.Unauthenticated("authentication required")
	}

	if ident.IsSuperuser {
		return nil
	}

	// A user with roles but none enabled is locked out; a user with no roles
	// at all simply holds an empty permission set.
	if len(ident.Roles) > 0 && !ident.HasEnabledRole() {
		return apperr.NoActiveRole()
	}

	if isMutating(method) && !ident.IsStaff {
		return apperr.StaffRequired()
	}

	if !e.menuMode || required == "" {
		return nil
	}

	if _, exempt := e.exemptPermissions[required]; exempt {
		return nil
	}

	perms, err := e.resolver.Permissions(ctx, ident.ID)
	if err != nil {
		return apperr.Internal(fmt.Errorf("rbac_decide_failed: %w", err))
	}

	for _, perm := range perms {
		if perm == required {
			return nil
		}
	}

	return apperr.PermissionDenied()
}
