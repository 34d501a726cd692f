// Package server builds the HTTP server: the chi router, its middleware
// stack and the listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/nurseiq/internal/frontdoor"
)

const (
	defaultRequestTimeout = 60 * time.Second
	serviceName           = "nurseiq"
)

// Config configures the server.
type Config struct {
	Port           int
	RequestTimeout time.Duration
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	http   *http.Server
}

// New creates a server with the standard middleware stack. Routes are added
// with Register and Mount.
func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	})

	return &Server{
		Router: r,
		Port:   cfg.Port,
		logger: logger,
	}
}

// Register adds frontdoor handlers. API routes carry the PHI security headers.
func (s *Server) Register(regs []frontdoor.HandlerRegistration) {
	s.Router.Group(func(r chi.Router) {
		r.Use(SecurityHeadersMiddleware)

		for _, reg := range regs {
			method := reg.Method
			if method == "" {
				method = http.MethodPost
			}

			switch method {
			case http.MethodGet:
				r.Get(reg.Path, reg.Handler)
			case http.MethodPost:
				r.Post(reg.Path, reg.Handler)
			default:
				r.Method(method, reg.Path, reg.Handler)
			}

			s.logger.Info("registered handler",
				slog.String("method", method),
				slog.String("path", reg.Path))
		}
	})
}

// Mount serves a static directory at the root path.
func (s *Server) Mount(dir string) {
	s.Router.Handle("/*", http.FileServer(http.Dir(dir)))
	s.logger.Info("serving static files", slog.String("dir", dir))
}

// Start listens in the background. Listener errors other than a clean
// shutdown are logged.
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("HTTP server listening", slog.Int("port", s.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
