// Package server exposes health, status and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"robotrader/internal/logging"
	"robotrader/internal/resilience"
)

// Config holds the health server settings.
type Config struct {
	Enabled bool   `mapstructure:"enabled" default:"true"`
	Host    string `mapstructure:"host" default:"0.0.0.0"`
	Port    int    `mapstructure:"port" default:"8080" validate:"gt=0,lt=65536"`
}

// StatusFunc returns a JSON-serializable status document.
type StatusFunc func(ctx context.Context) (interface{}, error)

// Options wires the server's handlers.
type Options struct {
	Health  *resilience.HealthMonitor
	Ready   func() bool
	Status  StatusFunc
	Metrics http.Handler
}

// Server is the health and status HTTP server.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger zerolog.Logger
}

// New creates a server. Routes are registered immediately.
func New(cfg Config, opts Options, logger zerolog.Logger) *Server {
	log := logging.WithComponent(logger, "http")
	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
			Handler:           NewRouter(opts, log),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}
}

// NewRouter builds the route table.
func NewRouter(opts Options, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	if opts.Health != nil {
		r.Get("/health", opts.Health.HealthHTTPHandler())
		r.Get("/health/live", opts.Health.LivenessHTTPHandler())
	} else {
		r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
		})
	}

	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		ready := opts.Ready == nil || opts.Ready()
		if ready && opts.Health != nil {
			ready = opts.Health.IsReady()
		}
		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if opts.Status != nil {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			doc, err := opts.Status(req.Context())
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, doc)
		})
	}

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("HTTP request")
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Health server listening")
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down health server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
