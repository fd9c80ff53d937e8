package rbac

import "time"

// Role represents a high-level permission grouping. Inactive roles grant
// nothing even when junction rows reference them.
type Role struct {
	ID        int64
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission represents an atomic capability. Inactive permissions are never
// granted even when linked to a role.
type Permission struct {
	ID        int64
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRoleKey identifies a user↔role association. The pair is the whole
// identity of the junction row.
type UserRoleKey struct {
	UserID int64
	RoleID int64
}

// RolePermissionKey identifies a role↔permission association.
type RolePermissionKey struct {
	RoleID       int64
	PermissionID int64
}

// BatchItem records a single processed id, with the resolved display name
// when the lookup succeeded.
type BatchItem struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// BatchFailure records a single failed id together with the reason.
type BatchFailure struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// BatchResult itemizes the outcome of a bulk assignment or removal.
// Unchanged holds already-associated pairs on assignment and not-associated
// pairs on removal; neither counts as a failure.
type BatchResult struct {
	Succeeded []BatchItem    `json:"succeeded"`
	Unchanged []BatchItem    `json:"unchanged"`
	Failed    []BatchFailure `json:"failed"`
}

// IsFullySuccessful reports whether no item failed. Unchanged items do not
// count toward failure.
func (r BatchResult) IsFullySuccessful() bool {
	return len(r.Failed) == 0
}

// HasSucceeded reports whether at least one association was actually written
// or removed, which is what decides whether invalidation must run.
func (r BatchResult) HasSucceeded() bool {
	return len(r.Succeeded) > 0
}
