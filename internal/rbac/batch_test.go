package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aegis-admin/aegis/internal/shared"
)

func TestAssignPermissionsMixedOutcomes(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)
	store.addPermission(10, "articles.edit", true)
	store.addPermission(11, "articles.publish", true)
	store.grants[RolePermissionKey{RoleID: 1, PermissionID: 11}] = struct{}{}

	coordinator := NewCoordinator(store)
	result, err := coordinator.AssignPermissionsToRole(context.Background(), 1, []int64{10, 11, 99})
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 1)
	require.Equal(t, int64(10), result.Succeeded[0].ID)
	require.Len(t, result.Unchanged, 1)
	require.Equal(t, int64(11), result.Unchanged[0].ID)
	require.Len(t, result.Failed, 1)
	require.Equal(t, int64(99), result.Failed[0].ID)
	require.False(t, result.IsFullySuccessful())
	require.True(t, result.HasSucceeded())
}

func TestAssignPermissionsMissingRoleAbortsBatch(t *testing.T) {
	store := newMemoryStore()
	store.addPermission(10, "articles.edit", true)

	coordinator := NewCoordinator(store)
	_, err := coordinator.AssignPermissionsToRole(context.Background(), 42, []int64{10})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, store.grants)
}

func TestAssignPermissionsInactivePermissionFails(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)
	store.addPermission(10, "articles.edit", false)

	coordinator := NewCoordinator(store)
	result, err := coordinator.AssignPermissionsToRole(context.Background(), 1, []int64{10})
	require.NoError(t, err)
	require.Empty(t, result.Succeeded)
	require.Len(t, result.Failed, 1)
	require.Contains(t, result.Failed[0].Message, "inactive")
}

func TestAssignPermissionsConcurrentInsertIsUnchanged(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)
	store.addPermission(10, "articles.edit", true)
	// Existence check says no, but the insert hits the unique constraint.
	store.createGrantErr[10] = shared.ErrDuplicate

	coordinator := NewCoordinator(store)
	result, err := coordinator.AssignPermissionsToRole(context.Background(), 1, []int64{10})
	require.NoError(t, err)
	require.Empty(t, result.Succeeded)
	require.Empty(t, result.Failed)
	require.Len(t, result.Unchanged, 1)
}

func TestAssignPermissionsItemErrorDoesNotStopBatch(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)
	store.addPermission(10, "a", true)
	store.addPermission(11, "b", true)
	store.createGrantErr[10] = errors.New("connection reset")

	coordinator := NewCoordinator(store)
	result, err := coordinator.AssignPermissionsToRole(context.Background(), 1, []int64{10, 11})
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	require.Len(t, result.Succeeded, 1)
	require.Equal(t, int64(11), result.Succeeded[0].ID)
}

func TestRemovePermissionsIdempotent(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)
	store.addPermission(10, "articles.edit", true)
	store.grants[RolePermissionKey{RoleID: 1, PermissionID: 10}] = struct{}{}

	coordinator := NewCoordinator(store)
	first, err := coordinator.RemovePermissionsFromRole(context.Background(), 1, []int64{10})
	require.NoError(t, err)
	require.Len(t, first.Succeeded, 1)

	second, err := coordinator.RemovePermissionsFromRole(context.Background(), 1, []int64{10})
	require.NoError(t, err)
	require.Empty(t, second.Succeeded)
	require.Empty(t, second.Failed)
	require.Len(t, second.Unchanged, 1)
}

func TestAssignRolesToUser(t *testing.T) {
	store := newMemoryStore()
	store.users[7] = true
	store.addRole(1, "editor", true)
	store.addRole(2, "dormant", false)

	coordinator := NewCoordinator(store)
	result, err := coordinator.AssignRolesToUser(context.Background(), 7, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 1)
	require.Equal(t, "editor", result.Succeeded[0].Name)
	require.Len(t, result.Failed, 2)
}

func TestAssignRolesMissingUserAborts(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)

	coordinator := NewCoordinator(store)
	_, err := coordinator.AssignRolesToUser(context.Background(), 7, []int64{1})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, store.links)
}

func TestBatchStopsOnCancelledContext(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)
	store.addPermission(10, "a", true)
	store.addPermission(11, "b", true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coordinator := NewCoordinator(store)
	result, err := coordinator.AssignPermissionsToRole(ctx, 1, []int64{10, 11})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, result.Succeeded)
	require.Empty(t, store.grants)
}
