package rbac

import (
	"context"
	"sort"
)

// ResolverStore is the read capability the resolver walks.
type ResolverStore interface {
	ListRolesForUser(ctx context.Context, userID int64) ([]Role, error)
	ListPermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error)
}

// Resolver computes a user's effective permission set by walking the
// role and permission junctions. It has no side effects and is safe for
// concurrent use.
type Resolver struct {
	store ResolverStore
}

// NewResolver constructs a Resolver.
func NewResolver(store ResolverStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the sorted, deduplicated set of permission names granted
// to the user through active roles. A user with no roles yields an empty
// set, not an error.
func (r *Resolver) Resolve(ctx context.Context, userID int64) ([]string, error) {
	perms, err := r.walk(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		names[p.Name] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ResolveIDs returns the sorted, deduplicated permission ids for the user.
func (r *Resolver) ResolveIDs(ctx context.Context, userID int64) ([]int64, error) {
	perms, err := r.walk(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{}, len(perms))
	for _, p := range perms {
		ids[p.ID] = struct{}{}
	}
	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// walk collects permissions from every active role the user holds, skipping
// inactive roles and inactive permissions. Duplicates are left for the
// callers to fold.
func (r *Resolver) walk(ctx context.Context, userID int64) ([]Permission, error) {
	roles, err := r.store.ListRolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var perms []Permission
	for _, role := range roles {
		if !role.IsActive {
			continue
		}
		granted, err := r.store.ListPermissionsForRole(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range granted {
			if !p.IsActive {
				continue
			}
			perms = append(perms, p)
		}
	}
	return perms, nil
}
