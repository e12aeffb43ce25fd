package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/facturia/facturia/internal/observability"
	"github.com/facturia/facturia/internal/platform/httpx"
	"github.com/facturia/facturia/internal/submission"
)

const readinessTimeout = 3 * time.Second

// ReadinessCheck probes one dependency for /readyz.
type ReadinessCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            zerolog.Logger
	Config            *Config
	SubmissionHandler *submission.Handler
	Readiness         []ReadinessCheck
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with FacturIA defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not allowed on "+r.URL.Path)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("FacturIA backend is running"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", readinessHandler(params.Readiness))

	if params.SubmissionHandler != nil {
		r.Route("/api", params.SubmissionHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func readinessHandler(checks []ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			err := check.Probe(ctx)
			cancel()
			if err != nil {
				hlog.FromRequest(r).Warn().Err(err).Str("dependency", check.Name).Msg("readiness probe failed")
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":     "unavailable",
					"dependency": check.Name,
				})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
