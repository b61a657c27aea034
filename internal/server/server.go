// Package server provides the HTTP API for glyphseek.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/glyphseek/internal/artifact"
	"github.com/hyperjump/glyphseek/internal/config"
	"github.com/hyperjump/glyphseek/internal/loader"
	"github.com/hyperjump/glyphseek/internal/metrics"
	"github.com/hyperjump/glyphseek/internal/models"
	"github.com/hyperjump/glyphseek/internal/search"
	"github.com/hyperjump/glyphseek/internal/status"
)

// StatusSource reports embedding provider readiness.
type StatusSource interface {
	Status() models.ProviderStatus
	Subscribe() *status.Subscription[models.ProviderStatus]
}

// Server is the HTTP server for the glyphseek API.
type Server struct {
	engine   *search.Engine
	provider StatusSource
	metrics  *metrics.Metrics
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	encoded  *loader.Lazy[[]byte]
}

// NewServer creates a server with the given dependencies. m may be nil.
func NewServer(
	engine *search.Engine,
	provider StatusSource,
	m *metrics.Metrics,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		provider: provider,
		metrics:  m,
		config:   cfg,
		logger:   logger,
	}
	s.encoded = loader.New(func(ctx context.Context) ([]byte, error) {
		a, err := s.engine.Corpus(ctx)
		if err != nil {
			return nil, err
		}
		return artifact.Encode(a)
	})
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// The status stream stays open; it must not inherit the request timeout.
	r.Get("/api/v1/status/stream", s.handleStatusStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/search", s.handleSearch)
		r.Get("/api/v1/search", s.handleSearchGet)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/corpus.cbor", s.handleCorpus)
		r.Get("/health", s.handleHealth)
		if s.metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs each request and records it on the metrics, labelled by
// route pattern rather than raw path.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		took := time.Since(start)
		s.metrics.ObserveHTTP(route, r.Method, status, took)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", took),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
