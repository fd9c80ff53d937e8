package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/aegis-admin/aegis/internal/shared"
)

// ServiceStore extends the coordinator's capabilities with the lookups and
// writes the role service needs.
type ServiceStore interface {
	BatchStore
	CreateRole(ctx context.Context, name string, isActive bool) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreatePermission(ctx context.Context, name string, isActive bool) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListRolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	ApplyPermissionDiff(ctx context.Context, roleID int64, add, remove []int64) error
}

// Metrics is the counter surface the service reports into.
type Metrics interface {
	ObserveBatchItems(succeeded, unchanged, failed int)
	ObserveSessionsInvalidated(count int64)
}

// NavigationRefresher schedules a rebuild of cached navigation blobs after a
// permission-affecting change.
type NavigationRefresher interface {
	EnqueueNavigationRefresh(ctx context.Context) error
}

// Service orchestrates RBAC mutations. Every path that changes a user's
// effective permission set sweeps the affected sessions; no-op updates are
// detected and skipped so idle submissions do not log anyone out.
type Service struct {
	store       ServiceStore
	coordinator *Coordinator
	cascade     *Cascade
	audit       shared.AuditRecorder
	metrics     Metrics
	nav         NavigationRefresher
	logger      *slog.Logger
}

// NewService constructs a Service. audit, metrics and nav may be nil.
func NewService(store ServiceStore, coordinator *Coordinator, cascade *Cascade, audit shared.AuditRecorder, metrics Metrics, nav NavigationRefresher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		coordinator: coordinator,
		cascade:     cascade,
		audit:       audit,
		metrics:     metrics,
		nav:         nav,
		logger:      logger,
	}
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// CreateRole inserts a new role. Duplicate names surface as ErrDuplicate
// regardless of active status.
func (s *Service) CreateRole(ctx context.Context, name string, isActive bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("role name required: %w", shared.ErrValidation)
	}
	role, err := s.store.CreateRole(ctx, name, isActive)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.create", "role", role.ID, nil)
	return role, nil
}

// UpdateRole updates name and status. Toggling the status changes the
// effective permissions of every holder, so the role's sessions are swept.
func (s *Service) UpdateRole(ctx context.Context, role Role) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, fmt.Errorf("role name required: %w", shared.ErrValidation)
	}
	existing, err := s.store.GetRole(ctx, role.ID)
	if err != nil {
		return Role{}, err
	}
	updated, err := s.store.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	if existing.IsActive != updated.IsActive {
		s.invalidateRoles(ctx, updated.ID)
	}
	s.record(ctx, "role.update", "role", updated.ID, map[string]any{"active": updated.IsActive})
	return updated, nil
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// CreatePermission inserts a new permission.
func (s *Service) CreatePermission(ctx context.Context, name string, isActive bool) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("permission name required: %w", shared.ErrValidation)
	}
	perm, err := s.store.CreatePermission(ctx, name, isActive)
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, "permission.create", "permission", perm.ID, nil)
	return perm, nil
}

// ReplacePermissions makes the role's permission set exactly permissionIDs.
// The sorted id lists before and after are compared first: an identical set
// performs no junction writes and no invalidation.
func (s *Service) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) (bool, error) {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return false, fmt.Errorf("role %d: %w", roleID, err)
	}

	desired := uniqueIDs(append([]int64(nil), permissionIDs...))
	for _, id := range desired {
		if _, err := s.store.GetPermission(ctx, id); err != nil {
			return false, fmt.Errorf("permission %d: %w", id, err)
		}
	}

	before, err := s.store.ListRolePermissionIDs(ctx, roleID)
	if err != nil {
		return false, err
	}
	sortIDs(before)
	after := append([]int64(nil), desired...)
	sortIDs(after)
	if equalIDs(before, after) {
		return false, nil
	}

	keep := make(map[int64]struct{}, len(after))
	for _, id := range after {
		keep[id] = struct{}{}
	}
	existing := make(map[int64]struct{}, len(before))
	for _, id := range before {
		existing[id] = struct{}{}
	}
	var add, remove []int64
	for _, id := range after {
		if _, ok := existing[id]; !ok {
			add = append(add, id)
		}
	}
	for _, id := range before {
		if _, ok := keep[id]; !ok {
			remove = append(remove, id)
		}
	}
	// The store applies the whole diff in one transaction.
	if err := s.store.ApplyPermissionDiff(ctx, roleID, add, remove); err != nil {
		return false, err
	}

	s.record(ctx, "role.permissions.replace", "role", roleID, map[string]any{"permissions": after})
	s.invalidateRoles(ctx, roleID)
	s.refreshNavigation(ctx)
	return true, nil
}

// AssignPermissionsToRole applies a bulk assignment and sweeps the role's
// sessions when at least one item actually landed.
func (s *Service) AssignPermissionsToRole(ctx context.Context, roleID int64, permissionIDs []int64) (BatchResult, error) {
	result, err := s.coordinator.AssignPermissionsToRole(ctx, roleID, permissionIDs)
	if err != nil {
		return result, err
	}
	s.observeBatch(result)
	if result.HasSucceeded() {
		s.record(ctx, "role.permissions.assign", "role", roleID, map[string]any{"count": len(result.Succeeded)})
		s.invalidateRoles(ctx, roleID)
		s.refreshNavigation(ctx)
	}
	return result, nil
}

// RemovePermissionsFromRole applies a bulk removal with the same policy.
func (s *Service) RemovePermissionsFromRole(ctx context.Context, roleID int64, permissionIDs []int64) (BatchResult, error) {
	result, err := s.coordinator.RemovePermissionsFromRole(ctx, roleID, permissionIDs)
	if err != nil {
		return result, err
	}
	s.observeBatch(result)
	if result.HasSucceeded() {
		s.record(ctx, "role.permissions.remove", "role", roleID, map[string]any{"count": len(result.Succeeded)})
		s.invalidateRoles(ctx, roleID)
		s.refreshNavigation(ctx)
	}
	return result, nil
}

// AssignRolesToUser applies a bulk role grant. Only the target user's own
// sessions go stale, so only those are swept.
func (s *Service) AssignRolesToUser(ctx context.Context, userID int64, roleIDs []int64) (BatchResult, error) {
	result, err := s.coordinator.AssignRolesToUser(ctx, userID, roleIDs)
	if err != nil {
		return result, err
	}
	s.observeBatch(result)
	if result.HasSucceeded() {
		s.record(ctx, "user.roles.assign", "user", userID, map[string]any{"count": len(result.Succeeded)})
		s.invalidateUser(ctx, userID)
	}
	return result, nil
}

// RemoveRolesFromUser applies a bulk role revocation.
func (s *Service) RemoveRolesFromUser(ctx context.Context, userID int64, roleIDs []int64) (BatchResult, error) {
	result, err := s.coordinator.RemoveRolesFromUser(ctx, userID, roleIDs)
	if err != nil {
		return result, err
	}
	s.observeBatch(result)
	if result.HasSucceeded() {
		s.record(ctx, "user.roles.remove", "user", userID, map[string]any{"count": len(result.Succeeded)})
		s.invalidateUser(ctx, userID)
	}
	return result, nil
}

// InvalidateByRole exposes the cascade for administrative use.
func (s *Service) InvalidateByRole(ctx context.Context, roleID int64) (int64, error) {
	count, err := s.cascade.InvalidateByRole(ctx, roleID)
	if err == nil && s.metrics != nil {
		s.metrics.ObserveSessionsInvalidated(count)
	}
	return count, err
}

func (s *Service) invalidateRoles(ctx context.Context, roleIDs ...int64) {
	count, err := s.cascade.InvalidateByRoles(ctx, roleIDs)
	if err != nil {
		s.logger.Error("invalidate sessions", slog.Any("error", err), slog.Any("roles", roleIDs))
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSessionsInvalidated(count)
	}
}

func (s *Service) invalidateUser(ctx context.Context, userID int64) {
	count, err := s.cascade.InvalidateByUser(ctx, userID)
	if err != nil {
		s.logger.Error("invalidate user sessions", slog.Any("error", err), slog.Int64("user", userID))
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSessionsInvalidated(count)
	}
}

func (s *Service) refreshNavigation(ctx context.Context) {
	if s.nav == nil {
		return
	}
	if err := s.nav.EnqueueNavigationRefresh(ctx); err != nil {
		s.logger.Warn("enqueue navigation refresh", slog.Any("error", err))
	}
}

func (s *Service) observeBatch(result BatchResult) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveBatchItems(len(result.Succeeded), len(result.Unchanged), len(result.Failed))
}

func (s *Service) record(ctx context.Context, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actorID := int64(0)
	if claims := shared.ClaimsFromContext(ctx); claims != nil {
		actorID = claims.UserID
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err), slog.String("action", action))
	}
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
