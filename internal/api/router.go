// Package api exposes the pipeline over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/content-pipeline/internal/observability"
	"github.com/spherical/content-pipeline/internal/pipeline"
	"github.com/spherical/content-pipeline/internal/state"
	"github.com/spherical/content-pipeline/internal/storage"
)

// Deps are the components the handlers use.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Tracker      *state.Tracker
	Backend      storage.Backend
	Metrics      *observability.Metrics
	Logger       *observability.Logger
	// SourcePath is processed when a request names no source.
	SourcePath string
	// SourceRoot widens the paths a request may name to everything beneath it.
	SourceRoot     string
	AuthToken      string
	RequestTimeout time.Duration
}

// NewRouter creates the API router with all routes configured.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = observability.Nop()
	}
	logger := d.Logger.WithComponent("api")

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	if d.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(d.RequestTimeout))
	}

	h := &Handler{
		orch:       d.Orchestrator,
		tracker:    d.Tracker,
		backend:    d.Backend,
		sourcePath: d.SourcePath,
		sources:    newSourcePolicy(d.SourcePath, d.SourceRoot),
		logger:     logger,
	}

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(Auth(AuthConfig{Token: d.AuthToken}))

		r.Post("/process", h.Process)
		r.Get("/state", h.State)
		r.Get("/freshness", h.Freshness)
		r.Get("/artifacts/{format}", h.Artifact)
	})

	return r
}

func requestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Dur("duration", time.Since(start)).
				Msg("Request served")
		})
	}
}
