package rbac

import (
	"context"
	"sort"

	"github.com/aegis-admin/aegis/internal/shared"
)

// memoryStore implements ServiceStore and SessionSweepStore for tests.
type memoryStore struct {
	roles    map[int64]Role
	perms    map[int64]Permission
	users    map[int64]bool
	links    map[UserRoleKey]struct{}
	grants   map[RolePermissionKey]struct{}
	sessions map[int64]int

	nextRoleID int64
	nextPermID int64

	createGrantErr map[int64]error
	deleteUsers    [][]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles:          make(map[int64]Role),
		perms:          make(map[int64]Permission),
		users:          make(map[int64]bool),
		links:          make(map[UserRoleKey]struct{}),
		grants:         make(map[RolePermissionKey]struct{}),
		sessions:       make(map[int64]int),
		createGrantErr: make(map[int64]error),
	}
}

func (s *memoryStore) addRole(id int64, name string, active bool) Role {
	role := Role{ID: id, Name: name, IsActive: active}
	s.roles[id] = role
	return role
}

func (s *memoryStore) addPermission(id int64, name string, active bool) Permission {
	perm := Permission{ID: id, Name: name, IsActive: active}
	s.perms[id] = perm
	return perm
}

func (s *memoryStore) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (s *memoryStore) GetPermission(ctx context.Context, id int64) (Permission, error) {
	perm, ok := s.perms[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return perm, nil
}

func (s *memoryStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	return s.users[userID], nil
}

func (s *memoryStore) UserRoleExists(ctx context.Context, key UserRoleKey) (bool, error) {
	_, ok := s.links[key]
	return ok, nil
}

func (s *memoryStore) CreateUserRole(ctx context.Context, key UserRoleKey) error {
	if _, ok := s.links[key]; ok {
		return shared.ErrDuplicate
	}
	s.links[key] = struct{}{}
	return nil
}

func (s *memoryStore) DeleteUserRole(ctx context.Context, key UserRoleKey) (bool, error) {
	if _, ok := s.links[key]; !ok {
		return false, nil
	}
	delete(s.links, key)
	return true, nil
}

func (s *memoryStore) RolePermissionExists(ctx context.Context, key RolePermissionKey) (bool, error) {
	_, ok := s.grants[key]
	return ok, nil
}

func (s *memoryStore) CreateRolePermission(ctx context.Context, key RolePermissionKey) error {
	if err, ok := s.createGrantErr[key.PermissionID]; ok {
		return err
	}
	if _, ok := s.grants[key]; ok {
		return shared.ErrDuplicate
	}
	s.grants[key] = struct{}{}
	return nil
}

func (s *memoryStore) DeleteRolePermission(ctx context.Context, key RolePermissionKey) (bool, error) {
	if _, ok := s.grants[key]; !ok {
		return false, nil
	}
	delete(s.grants, key)
	return true, nil
}

func (s *memoryStore) CreateRole(ctx context.Context, name string, isActive bool) (Role, error) {
	for _, role := range s.roles {
		if role.Name == name {
			return Role{}, shared.ErrDuplicate
		}
	}
	s.nextRoleID++
	role := Role{ID: s.nextRoleID, Name: name, IsActive: isActive}
	s.roles[role.ID] = role
	return role, nil
}

func (s *memoryStore) UpdateRole(ctx context.Context, role Role) (Role, error) {
	if _, ok := s.roles[role.ID]; !ok {
		return Role{}, shared.ErrNotFound
	}
	s.roles[role.ID] = role
	return role, nil
}

func (s *memoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryStore) CreatePermission(ctx context.Context, name string, isActive bool) (Permission, error) {
	for _, perm := range s.perms {
		if perm.Name == name {
			return Permission{}, shared.ErrDuplicate
		}
	}
	s.nextPermID++
	perm := Permission{ID: s.nextPermID, Name: name, IsActive: isActive}
	s.perms[perm.ID] = perm
	return perm, nil
}

func (s *memoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	out := make([]Permission, 0, len(s.perms))
	for _, perm := range s.perms {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryStore) ListRolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	var out []int64
	for key := range s.grants {
		if key.RoleID == roleID {
			out = append(out, key.PermissionID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *memoryStore) ApplyPermissionDiff(ctx context.Context, roleID int64, add, remove []int64) error {
	for _, id := range add {
		if err, ok := s.createGrantErr[id]; ok {
			return err
		}
		s.grants[RolePermissionKey{RoleID: roleID, PermissionID: id}] = struct{}{}
	}
	for _, id := range remove {
		delete(s.grants, RolePermissionKey{RoleID: roleID, PermissionID: id})
	}
	return nil
}

func (s *memoryStore) ListRolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	var out []Role
	for key := range s.links {
		if key.UserID != userID {
			continue
		}
		if role, ok := s.roles[key.RoleID]; ok {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) ListPermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	var out []Permission
	for key := range s.grants {
		if key.RoleID != roleID {
			continue
		}
		if perm, ok := s.perms[key.PermissionID]; ok {
			out = append(out, perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) ListUserIDsForRoles(ctx context.Context, roleIDs []int64) ([]int64, error) {
	var out []int64
	for key := range s.links {
		for _, roleID := range roleIDs {
			if key.RoleID == roleID {
				out = append(out, key.UserID)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *memoryStore) DeleteSessionsForUsers(ctx context.Context, userIDs []int64) (int64, error) {
	s.deleteUsers = append(s.deleteUsers, append([]int64(nil), userIDs...))
	var removed int64
	for _, id := range userIDs {
		removed += int64(s.sessions[id])
		s.sessions[id] = 0
	}
	return removed, nil
}
