package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-admin/aegis/internal/platform/httpx"
)

// Handler wires HTTP endpoints for role and permission administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	guard     Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		guard:     guard,
	}
}

// MountRoles registers role routes.
func (h *Handler) MountRoles(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("roles.view", "roles.manage"))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("roles.manage"))
		r.Post("/", h.createRole)
		r.Put("/{id}", h.updateRole)
		r.Put("/{id}/permissions", h.replacePermissions)
		r.Post("/{id}/permissions/batch", h.assignPermissions)
		r.Delete("/{id}/permissions/batch", h.removePermissions)
		r.Post("/{id}/sessions/invalidate", h.invalidateSessions)
	})
}

// MountUsers registers the user-side batch routes.
func (h *Handler) MountUsers(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("users.manage"))
		r.Post("/{id}/roles/batch", h.assignRoles)
		r.Delete("/{id}/roles/batch", h.removeRoles)
	})
}

// MountPermissions registers permission routes.
func (h *Handler) MountPermissions(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("permissions.view", "permissions.manage"))
		r.Get("/", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny("permissions.manage"))
		r.Post("/", h.createPermission)
	})
}

type roleResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type permissionResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`
}

type batchRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
}

type batchResponse struct {
	Succeeded       []BatchItem    `json:"succeeded"`
	Unchanged       []BatchItem    `json:"unchanged"`
	Failed          []BatchFailure `json:"failed"`
	FullySuccessful bool           `json:"fullySuccessful"`
}

func toBatchResponse(result BatchResult) batchResponse {
	resp := batchResponse{
		Succeeded:       result.Succeeded,
		Unchanged:       result.Unchanged,
		Failed:          result.Failed,
		FullySuccessful: result.IsFullySuccessful(),
	}
	if resp.Succeeded == nil {
		resp.Succeeded = []BatchItem{}
	}
	if resp.Unchanged == nil {
		resp.Unchanged = []BatchItem{}
	}
	if resp.Failed == nil {
		resp.Failed = []BatchFailure{}
	}
	return resp
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:        role.ID,
		Name:      role.Name,
		IsActive:  role.IsActive,
		CreatedAt: role.CreatedAt,
		UpdatedAt: role.UpdatedAt,
	}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, role := range roles {
		out[i] = toRoleResponse(role)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

type roleRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=64"`
	IsActive *bool  `json:"isActive"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, active)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	role, err := h.service.UpdateRole(r.Context(), Role{ID: id, Name: req.Name, IsActive: active})
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		PermissionIDs []int64 `json:"permissionIds" validate:"required,dive,gt=0"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	changed, err := h.service.ReplacePermissions(r.Context(), id, req.PermissionIDs)
	if err != nil {
		h.fail(w, "replace permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (h *Handler) assignPermissions(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.service.AssignPermissionsToRole)
}

func (h *Handler) removePermissions(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.service.RemovePermissionsFromRole)
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.service.AssignRolesToUser)
}

func (h *Handler) removeRoles(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.service.RemoveRolesFromUser)
}

// runBatch decodes the shared batch payload and responds 200 with the
// itemized result even when some items failed; only the batch-level target
// lookup maps to an error status.
func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, targetID int64, ids []int64) (BatchResult, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := apply(r.Context(), id, req.IDs)
	if err != nil {
		h.fail(w, "batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBatchResponse(result))
}

func (h *Handler) invalidateSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	count, err := h.service.InvalidateByRole(r.Context(), id)
	if err != nil {
		h.fail(w, "invalidate sessions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"removed": count})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	out := make([]permissionResponse, len(perms))
	for i, perm := range perms {
		out[i] = permissionResponse{ID: perm.ID, Name: perm.Name, IsActive: perm.IsActive}
	}
	httpx.JSON(w, http.StatusOK, out)
}

type permissionRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=64"`
	IsActive *bool  `json:"isActive"`
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Name, active)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, permissionResponse{ID: perm.ID, Name: perm.Name, IsActive: perm.IsActive})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed json body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
