package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/siepe-rag/internal/ingest"
	"github.com/JakeFAU/siepe-rag/internal/metrics"
	"github.com/JakeFAU/siepe-rag/internal/rag"
	"github.com/JakeFAU/siepe-rag/internal/retrieval"
)

// JobService starts crawl jobs and reports their progress.
type JobService interface {
	Submit(ctx context.Context, params rag.JobParameters) (string, error)
	Get(id string) (rag.Job, error)
}

// DocumentIngester ingests one local PDF.
type DocumentIngester interface {
	Ingest(ctx context.Context, path string) (ingest.Result, error)
}

// Answerer answers questions against the stored corpus.
type Answerer interface {
	Answer(ctx context.Context, q retrieval.Question) (retrieval.Answer, error)
}

// ReadyFunc reports whether downstream dependencies can serve traffic.
type ReadyFunc func(ctx context.Context) error

// Config tunes server behavior.
type Config struct {
	AuthEnabled    bool
	AuthToken      string
	CORSEnabled    bool
	AllowedOrigins []string
	RequestTimeout time.Duration
	// TempDir holds uploads while they are ingested. Empty means os.TempDir.
	TempDir        string
	MaxUploadBytes int64
	DefaultTopK    int
}

// Deps are the services the handlers call.
type Deps struct {
	Jobs     JobService
	Ingester DocumentIngester
	Answerer Answerer
	Ready    ReadyFunc
	Logger   *zap.Logger
}

// Server wires HTTP handlers to the crawl, ingest and retrieval services.
type Server struct {
	router   chi.Router
	cfg      Config
	jobs     JobService
	ingester DocumentIngester
	answerer Answerer
	ready    ReadyFunc
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 3
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		jobs:     deps.Jobs,
		ingester: deps.Ingester,
		answerer: deps.Answerer,
		ready:    deps.Ready,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	if cfg.CORSEnabled {
		r.Use(corsMiddleware(cfg.AllowedOrigins))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		if cfg.AuthEnabled {
			r.Use(bearerAuthMiddleware(cfg.AuthToken, logger))
		}
		r.Route("/crawl/jobs", func(r chi.Router) {
			r.Post("/", s.submitCrawlJob)
			r.Get("/{job_id}", s.getCrawlJob)
		})
		r.Post("/documents", s.uploadDocuments)
		r.Post("/query", s.query)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
