package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/aegis-admin/aegis/internal/shared"
	_ "github.com/aegis-admin/aegis/internal/testing/guard"
)

func adminClaims() *shared.Claims {
	return &shared.Claims{
		UserID:      1,
		Name:        "Admin",
		Permissions: []string{"roles.manage", "roles.view", "users.manage", "permissions.manage", "permissions.view"},
	}
}

func newTestRouter(store *memoryStore, claims *shared.Claims) http.Handler {
	svc, _, _ := newTestService(store)
	handler := NewHandler(nil, svc, Middleware{})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if claims != nil {
				req = req.WithContext(shared.ContextWithClaims(req.Context(), claims))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/roles", handler.MountRoles)
	r.Route("/users", handler.MountUsers)
	r.Route("/permissions", handler.MountPermissions)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateRoleEndpoint(t *testing.T) {
	router := newTestRouter(newMemoryStore(), adminClaims())

	rec := doJSON(t, router, http.MethodPost, "/roles", `{"name":"editor"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		IsActive bool   `json:"isActive"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "editor", resp.Name)
	require.True(t, resp.IsActive)

	rec = doJSON(t, router, http.MethodPost, "/roles", `{"name":"editor"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateRoleValidation(t *testing.T) {
	router := newTestRouter(newMemoryStore(), adminClaims())

	rec := doJSON(t, router, http.MethodPost, "/roles", `{"name":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/roles", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRoleNotFound(t *testing.T) {
	router := newTestRouter(newMemoryStore(), adminClaims())

	rec := doJSON(t, router, http.MethodGet, "/roles/99", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/roles/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchAssignEndpointItemizesOutcome(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)
	store.addPermission(10, "a", true)
	store.addPermission(11, "b", true)
	store.grants[RolePermissionKey{RoleID: 1, PermissionID: 11}] = struct{}{}
	router := newTestRouter(store, adminClaims())

	rec := doJSON(t, router, http.MethodPost, "/roles/1/permissions/batch", `{"ids":[10,11,99]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Succeeded       []BatchItem    `json:"succeeded"`
		Unchanged       []BatchItem    `json:"unchanged"`
		Failed          []BatchFailure `json:"failed"`
		FullySuccessful bool           `json:"fullySuccessful"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Succeeded, 1)
	require.Len(t, resp.Unchanged, 1)
	require.Len(t, resp.Failed, 1)
	require.False(t, resp.FullySuccessful)
}

func TestBatchAssignMissingRoleIs404(t *testing.T) {
	router := newTestRouter(newMemoryStore(), adminClaims())

	rec := doJSON(t, router, http.MethodPost, "/roles/42/permissions/batch", `{"ids":[1]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchRequiresIDs(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)
	router := newTestRouter(store, adminClaims())

	rec := doJSON(t, router, http.MethodPost, "/roles/1/permissions/batch", `{"ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchAssignRolesToUserEndpoint(t *testing.T) {
	store := newMemoryStore()
	store.users[7] = true
	store.addRole(1, "editor", true)
	router := newTestRouter(store, adminClaims())

	rec := doJSON(t, router, http.MethodPost, "/users/7/roles/batch", `{"ids":[1]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, linked := store.links[UserRoleKey{UserID: 7, RoleID: 1}]
	require.True(t, linked)
}

func TestRoutesRequirePermission(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)

	viewer := &shared.Claims{UserID: 2, Permissions: []string{"roles.view"}}
	router := newTestRouter(store, viewer)

	rec := doJSON(t, router, http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/roles", `{"name":"ops"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	anonymous := newTestRouter(store, nil)
	rec = doJSON(t, anonymous, http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvalidateSessionsEndpoint(t *testing.T) {
	store := newMemoryStore()
	store.addRole(1, "editor", true)
	store.links[UserRoleKey{UserID: 5, RoleID: 1}] = struct{}{}
	store.sessions[5] = 2
	router := newTestRouter(store, adminClaims())

	rec := doJSON(t, router, http.MethodPost, "/roles/1/sessions/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(2), resp["removed"])
}
