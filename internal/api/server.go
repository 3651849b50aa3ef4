// Package api exposes the analyzer over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/client-analyzer/internal/config"
	"github.com/sells-group/client-analyzer/internal/ingest"
	"github.com/sells-group/client-analyzer/internal/metrics"
	"github.com/sells-group/client-analyzer/internal/query"
	"github.com/sells-group/client-analyzer/internal/store"
)

// Server holds the handlers' dependencies.
type Server struct {
	cfg      config.ServerConfig
	pipeline *ingest.Pipeline
	query    *query.Service
	store    store.Store
	metrics  *metrics.Metrics
	cache    Pinger
}

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithCache reports the export cache in /health. A cache outage degrades the
// check but does not fail it, since exports work without the cache.
func WithCache(c Pinger) Option {
	return func(s *Server) { s.cache = c }
}

// New creates a Server. m may be nil.
func New(cfg config.ServerConfig, p *ingest.Pipeline, q *query.Service, st store.Store, m *metrics.Metrics, opts ...Option) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 16 << 20
	}
	s := &Server{cfg: cfg, pipeline: p, query: q, store: st, metrics: m}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(s.metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/clients", s.listClients)
		r.Get("/uploads", s.listUploads)
		r.Get("/uploads/{id}", s.getUpload)
		r.Get("/uploads/{id}/results", s.getResults)
		r.Get("/uploads/{id}/errors", s.rowErrors)
		r.Get("/uploads/{id}/export", s.export)

		r.Group(func(r chi.Router) {
			if s.cfg.RateLimitRPS > 0 {
				r.Use(newRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst).Middleware)
			}
			r.Use(middleware.Timeout(2 * time.Minute))

			r.Post("/score", s.score)
			r.Post("/uploads", s.ingest)
			r.Post("/uploads/{id}/process", s.process)
			r.Delete("/uploads/{id}", s.deleteUpload)
		})
	})

	return r
}
