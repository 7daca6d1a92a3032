package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"nifty-go/internal/registry"
)

// HTTPMetrics records served requests and exposes a scrape endpoint.
type HTTPMetrics interface {
	ObserveHTTP(method, route string, code int, elapsed time.Duration)
	Handler() http.Handler
}

// Server exposes the registry operations over HTTP.
type Server struct {
	svc     *registry.Service
	logger  registry.Logger
	metrics HTTPMetrics
	health  func(context.Context) error
}

// Options configures optional parts of the server.
type Options struct {
	Metrics HTTPMetrics // nil disables /metrics

	// Health is called by /health/ready; nil means always ready.
	Health func(context.Context) error
}

func NewServer(svc *registry.Service, logger registry.Logger, opts Options) *Server {
	return &Server{
		svc:     svc,
		logger:  logger,
		metrics: opts.Metrics,
		health:  opts.Health,
	}
}

// Router builds the chi router.
//
// Routes:
//   - GET /health, GET /health/ready
//   - GET /metrics
//   - /api/v1/folders, /api/v1/files, /api/v1/namespace, /api/v1/operations
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.liveness)
	r.Get("/health/ready", s.readiness)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.bearerCredential)

		r.Route("/folders", func(r chi.Router) {
			r.Get("/", s.listFolders)
			r.Post("/", s.createFolder)
			r.Put("/{name}", s.renameFolder)
			r.Delete("/{name}", s.deleteFolder)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.listFiles)
			r.Post("/", s.uploadFile)
			r.Get("/{token}", s.getFile)
			r.Get("/{token}/content", s.readContent)
			r.Put("/{token}/folder", s.moveFile)
			r.Post("/{token}/transfer", s.transferToken)
			r.Get("/{token}/history", s.tokenHistory)
		})

		r.Get("/namespace", s.getNamespace)
		r.Get("/operations", s.listOperations)
	})

	return r
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListenConfig holds the listener settings for Serve.
type ListenConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. If ln is nil, a listener on cfg.Addr is opened.
func (s *Server) Serve(ctx context.Context, ln net.Listener, cfg ListenConfig) error {
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", cfg.Addr, err)
		}
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
