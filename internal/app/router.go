package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rewearify/rewearify/internal/authapi"
	"github.com/rewearify/rewearify/internal/observability"
	"github.com/rewearify/rewearify/internal/platform/httpx"
	"github.com/rewearify/rewearify/internal/portal"
	"github.com/rewearify/rewearify/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Portal     *portal.Handler
	AuthAPI    *authapi.Handler
	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
	// RateLimit overrides the global per-IP budget.
	RateLimit int
}

// NewRouter constructs the chi.Router with ReWearify defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:    params.Logger,
		Config:    params.Config,
		Metrics:   params.Metrics,
		RateLimit: params.RateLimit,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthAPI != nil {
		params.AuthAPI.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Portal != nil {
		params.Portal.MountRoutes(r)
	}

	return r
}
