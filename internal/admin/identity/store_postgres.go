// Copyright (c) 2026 Castellan Authors. All rights reserved.

// PostgreSQL implementation of the identity read model.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.

package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/castellan-io/castellan/internal/platform/dberr"
)

// PostgresStore implements [Store] using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL implementation of the identity [Store].
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const identityColumns = `
	u.id, u.uuid, u.username, u.nickname, COALESCE(u.password, ''),
	u.status, u.is_superuser, u.is_staff, u.is_multi_login, u.last_login_time,
	d.id, d.name, d.status`

// FindByUsername returns the identity for a login name.
func (store *PostgresStore) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM sys_user u
		LEFT JOIN sys_dept d ON d.id = u.dept_id
		WHERE u.username = $1`

	return store.findOne(ctx, query, username)
}

// FindByID returns the identity for a user id.
func (store *PostgresStore) FindByID(ctx context.Context, id int64) (*Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM sys_user u
		LEFT JOIN sys_dept d ON d.id = u.dept_id
		WHERE u.id = $1`

	return store.findOne(ctx, query, id)
}

// findOne hydrates a single identity row plus its role set.
func (store *PostgresStore) findOne(ctx context.Context, query string, arg any) (*Identity, error) {
	ident := &Identity{}

	var (
		deptID     *int64
		deptName   *string
		deptStatus *int
	)

	err := store.pool.QueryRow(ctx, query, arg).Scan(
		&ident.ID,
		&ident.UUID,
		&ident.Username,
		&ident.Nickname,
		&ident.PasswordHash,
		&ident.Status,
		&ident.IsSuperuser,
		&ident.IsStaff,
		&ident.IsMultiLogin,
		&ident.LastLoginTime,
		&deptID,
		&deptName,
		&deptStatus,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "User", "identity_store_find")
	}

	if deptID != nil {
		ident.Dept = &Dept{ID: *deptID, Name: *deptName, Status: *deptStatus}
	}

	roles, err := store.rolesForUser(ctx, ident.ID)
	if err != nil {
		return nil, err
	}
	ident.Roles = roles

	return ident, nil
}

// rolesForUser loads the full role set of a user, enabled or not. The
// caller decides how disabled roles affect the verdict.
func (store *PostgresStore) rolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	const query = `
		SELECT r.id, r.name, r.status
		FROM sys_role r
		JOIN sys_user_role ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id`

	rows, err := store.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("identity_store_roles_failed: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Status); err != nil {
			return nil, fmt.Errorf("identity_store_roles_scan_failed: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity_store_roles_rows_failed: %w", err)
	}

	return roles, nil
}

// EnabledPermissions resolves the effective permission-string set from the
// source of truth. The filters mirror the authorization contract: disabled
// roles and disabled or permissionless menus contribute nothing.
func (store *PostgresStore) EnabledPermissions(ctx context.Context, userID int64) ([]string, error) {
	const query = `
		SELECT DISTINCT m.perms
		FROM sys_menu m
		JOIN sys_role_menu rm ON rm.menu_id = m.id
		JOIN sys_role r       ON r.id = rm.role_id
		JOIN sys_user_role ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		  AND r.status = $2
		  AND m.status = $2
		  AND m.perms IS NOT NULL
		  AND m.perms <> ''
		ORDER BY m.perms`

	rows, err := store.pool.Query(ctx, query, userID, StatusEnabled)
	if err != nil {
		return nil, fmt.Errorf("identity_store_permissions_failed: %w", err)
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("identity_store_permissions_scan_failed: %w", err)
		}
		permissions = append(permissions, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity_store_permissions_rows_failed: %w", err)
	}

	return permissions, nil
}

// UserIDsForRole returns every user currently assigned to the role.
func (store *PostgresStore) UserIDsForRole(ctx context.Context, roleID int64) ([]int64, error) {
	const query = `
		SELECT ur.user_id
		FROM sys_user_role ur
		WHERE ur.role_id = $1
		ORDER BY ur.user_id`

	rows, err := store.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("identity_store_role_users_failed: %w", err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("identity_store_role_users_scan_failed: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity_store_role_users_rows_failed: %w", err)
	}

	return userIDs, nil
}

// UpdateLastLogin records the login instant on the user row.
func (store *PostgresStore) UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error {
	const query = `UPDATE sys_user SET last_login_time = $1 WHERE id = $2`

	if _, err := store.pool.Exec(ctx, query, at, userID); err != nil {
		return fmt.Errorf("identity_store_last_login_failed: %w", err)
	}
	return nil
}
