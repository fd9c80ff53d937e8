package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/aegis-admin/aegis/internal/shared"
)

// BatchStore is the capability set the coordinator mutates junctions through.
// Create methods must surface unique-constraint violations as
// shared.ErrDuplicate; the coordinator's own existence checks are advisory
// and a concurrent batch can win the race.
type BatchStore interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	UserExists(ctx context.Context, userID int64) (bool, error)

	UserRoleExists(ctx context.Context, key UserRoleKey) (bool, error)
	CreateUserRole(ctx context.Context, key UserRoleKey) error
	DeleteUserRole(ctx context.Context, key UserRoleKey) (bool, error)

	RolePermissionExists(ctx context.Context, key RolePermissionKey) (bool, error)
	CreateRolePermission(ctx context.Context, key RolePermissionKey) error
	DeleteRolePermission(ctx context.Context, key RolePermissionKey) (bool, error)
}

// Coordinator applies batched role↔user and permission↔role mutations.
// Each item is processed independently; one failing item never rolls back
// the others. Cancellation stops processing and leaves prior items applied.
type Coordinator struct {
	store BatchStore
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(store BatchStore) *Coordinator {
	return &Coordinator{store: store}
}

// AssignPermissionsToRole links each permission to the role. The role lookup
// is batch-level: a missing role aborts the whole batch with ErrNotFound.
func (c *Coordinator) AssignPermissionsToRole(ctx context.Context, roleID int64, permissionIDs []int64) (BatchResult, error) {
	if _, err := c.store.GetRole(ctx, roleID); err != nil {
		return BatchResult{}, fmt.Errorf("role %d: %w", roleID, err)
	}
	var result BatchResult
	for _, id := range permissionIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		c.assignPermission(ctx, &result, roleID, id)
	}
	return result, nil
}

// RemovePermissionsFromRole unlinks each permission from the role. Missing
// associations are reported as unchanged, never as failures.
func (c *Coordinator) RemovePermissionsFromRole(ctx context.Context, roleID int64, permissionIDs []int64) (BatchResult, error) {
	if _, err := c.store.GetRole(ctx, roleID); err != nil {
		return BatchResult{}, fmt.Errorf("role %d: %w", roleID, err)
	}
	var result BatchResult
	for _, id := range permissionIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		c.removePermission(ctx, &result, roleID, id)
	}
	return result, nil
}

// AssignRolesToUser links each role to the user.
func (c *Coordinator) AssignRolesToUser(ctx context.Context, userID int64, roleIDs []int64) (BatchResult, error) {
	ok, err := c.store.UserExists(ctx, userID)
	if err != nil {
		return BatchResult{}, err
	}
	if !ok {
		return BatchResult{}, fmt.Errorf("user %d: %w", userID, shared.ErrNotFound)
	}
	var result BatchResult
	for _, id := range roleIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		c.assignRole(ctx, &result, userID, id)
	}
	return result, nil
}

// RemoveRolesFromUser unlinks each role from the user.
func (c *Coordinator) RemoveRolesFromUser(ctx context.Context, userID int64, roleIDs []int64) (BatchResult, error) {
	ok, err := c.store.UserExists(ctx, userID)
	if err != nil {
		return BatchResult{}, err
	}
	if !ok {
		return BatchResult{}, fmt.Errorf("user %d: %w", userID, shared.ErrNotFound)
	}
	var result BatchResult
	for _, id := range roleIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		c.removeRole(ctx, &result, userID, id)
	}
	return result, nil
}

func (c *Coordinator) assignPermission(ctx context.Context, result *BatchResult, roleID, permissionID int64) {
	defer recoverItem(result, permissionID)

	perm, err := c.store.GetPermission(ctx, permissionID)
	if errors.Is(err, shared.ErrNotFound) {
		result.fail(permissionID, "permission does not exist")
		return
	}
	if err != nil {
		result.fail(permissionID, err.Error())
		return
	}
	if !perm.IsActive {
		result.fail(permissionID, "permission is inactive")
		return
	}
	key := RolePermissionKey{RoleID: roleID, PermissionID: permissionID}
	exists, err := c.store.RolePermissionExists(ctx, key)
	if err != nil {
		result.fail(permissionID, err.Error())
		return
	}
	if exists {
		result.unchanged(permissionID, perm.Name)
		return
	}
	switch err := c.store.CreateRolePermission(ctx, key); {
	case err == nil:
		result.succeed(permissionID, perm.Name)
	case errors.Is(err, shared.ErrDuplicate):
		// A concurrent batch inserted the pair first.
		result.unchanged(permissionID, perm.Name)
	default:
		result.fail(permissionID, err.Error())
	}
}

func (c *Coordinator) removePermission(ctx context.Context, result *BatchResult, roleID, permissionID int64) {
	defer recoverItem(result, permissionID)

	name := ""
	if perm, err := c.store.GetPermission(ctx, permissionID); err == nil {
		name = perm.Name
	}
	deleted, err := c.store.DeleteRolePermission(ctx, RolePermissionKey{RoleID: roleID, PermissionID: permissionID})
	if err != nil {
		result.fail(permissionID, err.Error())
		return
	}
	if !deleted {
		result.unchanged(permissionID, name)
		return
	}
	result.succeed(permissionID, name)
}

func (c *Coordinator) assignRole(ctx context.Context, result *BatchResult, userID, roleID int64) {
	defer recoverItem(result, roleID)

	role, err := c.store.GetRole(ctx, roleID)
	if errors.Is(err, shared.ErrNotFound) {
		result.fail(roleID, "role does not exist")
		return
	}
	if err != nil {
		result.fail(roleID, err.Error())
		return
	}
	if !role.IsActive {
		result.fail(roleID, "role is inactive")
		return
	}
	key := UserRoleKey{UserID: userID, RoleID: roleID}
	exists, err := c.store.UserRoleExists(ctx, key)
	if err != nil {
		result.fail(roleID, err.Error())
		return
	}
	if exists {
		result.unchanged(roleID, role.Name)
		return
	}
	switch err := c.store.CreateUserRole(ctx, key); {
	case err == nil:
		result.succeed(roleID, role.Name)
	case errors.Is(err, shared.ErrDuplicate):
		result.unchanged(roleID, role.Name)
	default:
		result.fail(roleID, err.Error())
	}
}

func (c *Coordinator) removeRole(ctx context.Context, result *BatchResult, userID, roleID int64) {
	defer recoverItem(result, roleID)

	name := ""
	if role, err := c.store.GetRole(ctx, roleID); err == nil {
		name = role.Name
	}
	deleted, err := c.store.DeleteUserRole(ctx, UserRoleKey{UserID: userID, RoleID: roleID})
	if err != nil {
		result.fail(roleID, err.Error())
		return
	}
	if !deleted {
		result.unchanged(roleID, name)
		return
	}
	result.succeed(roleID, name)
}

// recoverItem converts a per-item panic into a recorded failure so the rest
// of the batch keeps going.
func recoverItem(result *BatchResult, id int64) {
	if r := recover(); r != nil {
		result.fail(id, fmt.Sprintf("panic: %v", r))
	}
}

func (r *BatchResult) succeed(id int64, name string) {
	r.Succeeded = append(r.Succeeded, BatchItem{ID: id, Name: name})
}

func (r *BatchResult) unchanged(id int64, name string) {
	r.Unchanged = append(r.Unchanged, BatchItem{ID: id, Name: name})
}

func (r *BatchResult) fail(id int64, message string) {
	r.Failed = append(r.Failed, BatchFailure{ID: id, Message: message})
}
