package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lorenzopantano/orbvision/internal/auth"
	"github.com/lorenzopantano/orbvision/internal/health"
	"github.com/lorenzopantano/orbvision/internal/metrics"
	"github.com/lorenzopantano/orbvision/internal/tle"
)

// Config holds server configuration.
type Config struct {
	Addr        string
	Auth        auth.Config
	CORSOrigins []string
	TrustProxy  bool

	// In-flight catalog requests allowed per client IP and in total.
	// Zero selects 4 and 256.
	MaxInflightPerIP int
	MaxInflightTotal int

	// WriteTimeout must exceed the upstream catalog timeout or slow fetches
	// are cut off mid-response. Defaults to 45s.
	WriteTimeout time.Duration
}

// Catalog answers element-set queries. *catalog.Service implements it.
type Catalog interface {
	Lines(ctx context.Context, req tle.Request) ([]string, error)
	Elements(ctx context.Context, req tle.Request) ([]tle.ElementSet, error)
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	readiness  *health.Readiness
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, cat Catalog, logger *slog.Logger) *Server {
	readiness := &health.Readiness{}
	h := &handlers{catalog: cat, logger: logger}

	limiter := newInflightLimiter(cfg.MaxInflightPerIP, cfg.MaxInflightTotal)

	// Build middleware chain: metrics -> cors -> correlation id -> logging -> auth -> limit -> router.
	var handler http.Handler = newRouter(h, readiness)
	handler = limitMiddleware(limiter, cfg.TrustProxy, logger)(handler)
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = correlationIDMiddleware(newCorrelationID)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = metrics.Middleware(handler)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 45 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       120 * time.Second,
		},
		readiness: readiness,
		logger:    logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown fails readiness, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.readiness.SetDraining()
	return s.httpServer.Shutdown(ctx)
}
