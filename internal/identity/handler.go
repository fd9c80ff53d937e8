package identity

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/aegis-admin/aegis/internal/nav"
	"github.com/aegis-admin/aegis/internal/platform/httpx"
	"github.com/aegis-admin/aegis/internal/shared"
)

// NavigationSource builds the navigation tree surfaced on whoami.
type NavigationSource interface {
	BuildNavigationForType(ctx context.Context, userID, userTypeID int64) ([]nav.Node, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	nav       NavigationSource
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. nav may be nil; whoami then
// omits the navigation tree.
func NewHandler(logger *slog.Logger, service *Service, nav NavigationSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		nav:       nav,
		validator: validator.New(),
	}
}

// MountPublicRoutes registers the unauthenticated auth routes.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
}

// MountRoutes registers the token-guarded auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/whoami", h.handleWhoami)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed json body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	token, err := h.service.Login(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		// ErrInvalidCredentials maps to a flat 401 with no hint whether the
		// identity or the secret was wrong.
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	claims := shared.ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	resp := map[string]any{
		"id":          claims.UserID,
		"name":        claims.Name,
		"email":       claims.Email,
		"userType":    map[string]any{"id": claims.UserTypeID, "name": claims.UserTypeName},
		"permissions": claims.Permissions,
	}
	if h.nav != nil {
		tree, err := h.nav.BuildNavigationForType(r.Context(), claims.UserID, claims.UserTypeID)
		if err != nil {
			h.logger.Warn("build navigation", slog.Any("error", err))
		} else {
			resp["navigation"] = tree
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := shared.ClaimsFromContext(r.Context())
	if claims == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	if err := h.service.Logout(r.Context(), claims.SessionID); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
