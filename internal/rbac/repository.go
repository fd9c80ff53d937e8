package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aegis-admin/aegis/internal/platform/db"
	"github.com/aegis-admin/aegis/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles, permissions
// and their junctions. The composite primary keys on user_roles and
// role_permissions are the real duplicate-assignment safety net; the
// coordinator's existence checks only pre-empt the common case.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, is_active, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, is_active, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// CreateRole inserts a new role. Name uniqueness spans active and inactive
// roles; violations surface as ErrDuplicate.
func (r *Repository) CreateRole(ctx context.Context, name string, isActive bool) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, is_active) VALUES ($1, $2)
		 RETURNING id, name, is_active, created_at, updated_at`, name, isActive).
		Scan(&role.ID, &role.Name, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if isUniqueViolation(err) {
		return Role{}, fmt.Errorf("role %q: %w", name, shared.ErrDuplicate)
	}
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates name and status.
func (r *Repository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	var updated Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, is_active = $3, updated_at = NOW() WHERE id = $1
		 RETURNING id, name, is_active, created_at, updated_at`, role.ID, role.Name, role.IsActive).
		Scan(&updated.ID, &updated.Name, &updated.IsActive, &updated.CreatedAt, &updated.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	if isUniqueViolation(err) {
		return Role{}, fmt.Errorf("role %q: %w", role.Name, shared.ErrDuplicate)
	}
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// GetPermission fetches a permission by id.
func (r *Repository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, is_active, created_at, updated_at FROM permissions WHERE id = $1`, id).
		Scan(&perm.ID, &perm.Name, &perm.IsActive, &perm.CreatedAt, &perm.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, shared.ErrNotFound
	}
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// ListPermissions returns all permissions ordered by name.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, is_active, created_at, updated_at FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.IsActive, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// CreatePermission inserts a new permission.
func (r *Repository) CreatePermission(ctx context.Context, name string, isActive bool) (Permission, error) {
	var perm Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, is_active) VALUES ($1, $2)
		 RETURNING id, name, is_active, created_at, updated_at`, name, isActive).
		Scan(&perm.ID, &perm.Name, &perm.IsActive, &perm.CreatedAt, &perm.UpdatedAt)
	if isUniqueViolation(err) {
		return Permission{}, fmt.Errorf("permission %q: %w", name, shared.ErrDuplicate)
	}
	if err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// UserExists reports whether the user record is present.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

// ListRolesForUser returns every role the user holds, active or not. The
// resolver applies the status filter so its walk owns the semantics.
func (r *Repository) ListRolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.is_active, r.created_at, r.updated_at
		 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListPermissionsForRole returns every permission linked to the role,
// active or not.
func (r *Repository) ListPermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.is_active, p.created_at, p.updated_at
		 FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.IsActive, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// ListRolePermissionIDs returns the raw permission ids linked to the role.
func (r *Repository) ListRolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UserRoleExists checks for the association row.
func (r *Repository) UserRoleExists(ctx context.Context, key UserRoleKey) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role_id = $2)`,
		key.UserID, key.RoleID).Scan(&exists)
	return exists, err
}

// CreateUserRole inserts the association row.
func (r *Repository) CreateUserRole(ctx context.Context, key UserRoleKey) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, key.UserID, key.RoleID)
	if isUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// DeleteUserRole removes the association row, reporting whether it existed.
func (r *Repository) DeleteUserRole(ctx context.Context, key UserRoleKey) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, key.UserID, key.RoleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RolePermissionExists checks for the association row.
func (r *Repository) RolePermissionExists(ctx context.Context, key RolePermissionKey) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_permissions WHERE role_id = $1 AND permission_id = $2)`,
		key.RoleID, key.PermissionID).Scan(&exists)
	return exists, err
}

// CreateRolePermission inserts the association row.
func (r *Repository) CreateRolePermission(ctx context.Context, key RolePermissionKey) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
		key.RoleID, key.PermissionID)
	if isUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// DeleteRolePermission removes the association row, reporting whether it
// existed.
func (r *Repository) DeleteRolePermission(ctx context.Context, key RolePermissionKey) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		key.RoleID, key.PermissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ApplyPermissionDiff adds and removes role↔permission rows in a single
// transaction so a replace never leaves a half-applied set behind.
func (r *Repository) ApplyPermissionDiff(ctx context.Context, roleID int64, add, remove []int64) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, id := range add {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
				 ON CONFLICT DO NOTHING`, roleID, id); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			if _, err := tx.Exec(ctx,
				`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = ANY($2)`,
				roleID, remove); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListUserIDsForRoles returns the distinct member ids across the roles.
func (r *Repository) ListUserIDsForRoles(ctx context.Context, roleIDs []int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM user_roles WHERE role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteSessionsForUsers removes every session row of the given users,
// live and expired alike, returning the count removed.
func (r *Repository) DeleteSessionsForUsers(ctx context.Context, userIDs []int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
