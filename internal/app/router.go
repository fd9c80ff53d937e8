package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/aegis-admin/aegis/internal/identity"
	"github.com/aegis-admin/aegis/internal/nav"
	"github.com/aegis-admin/aegis/internal/observability"
	"github.com/aegis-admin/aegis/internal/rbac"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	TokenIssuer     *identity.TokenIssuer
	IdentityHandler *identity.Handler
	RBACHandler     *rbac.Handler
	NavHandler      *nav.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		// Login gets a tighter per-IP budget than the rest of the API.
		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			params.IdentityHandler.MountPublicRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(identity.TokenMiddleware(params.TokenIssuer))
			params.IdentityHandler.MountRoutes(r)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(identity.TokenMiddleware(params.TokenIssuer))
		if params.RBACHandler != nil {
			r.Route("/roles", params.RBACHandler.MountRoles)
			r.Route("/users", params.RBACHandler.MountUsers)
			r.Route("/permissions", params.RBACHandler.MountPermissions)
		}
		if params.NavHandler != nil {
			r.Route("/navigation", params.NavHandler.MountRoutes)
		}
	})

	return r
}
