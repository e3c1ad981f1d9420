package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/toolcrib/toolcrib/internal/inventory"
	"github.com/toolcrib/toolcrib/internal/observability"
	"github.com/toolcrib/toolcrib/internal/platform/httpx"
	"github.com/toolcrib/toolcrib/internal/rbac"
	"github.com/toolcrib/toolcrib/internal/tools"
	"github.com/toolcrib/toolcrib/jobs"
)

// Pinger reports storage liveness for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	DB               Pinger
	RBACMiddleware   rbac.Middleware
	ToolsHandler     *tools.Handler
	InventoryHandler *inventory.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with toolcrib defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		RBAC:    params.RBACMiddleware,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				params.Logger.Warn("healthz database ping", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.ToolsHandler != nil {
		r.Route("/tools", params.ToolsHandler.MountRoutes)
	}
	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
