package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taskforge-hq/taskforge/internal/audit"
	"github.com/taskforge-hq/taskforge/internal/engine"
	"github.com/taskforge-hq/taskforge/internal/hierarchy"
	"github.com/taskforge-hq/taskforge/internal/observability"
	"github.com/taskforge-hq/taskforge/internal/roles"
	"github.com/taskforge-hq/taskforge/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	DecisionHandler  *engine.Handler
	RolesHandler     *roles.Handler
	HierarchyHandler *hierarchy.Handler
	AuditHandler     *audit.Handler
	JobsHandler      *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router for the authorization service.
// Decision traffic lives under /v1/authz; the admin surface under
// /v1/admin is guarded by the static admin token.
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

	r.Route("/v1/authz", params.DecisionHandler.MountRoutes)

	r.Route("/v1/admin", func(r chi.Router) {
		if params.Config != nil {
			r.Use(AdminTokenMiddleware(params.Config.AdminTokenHash, params.Logger))
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.HierarchyHandler != nil {
			r.Route("/orgs", params.HierarchyHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
