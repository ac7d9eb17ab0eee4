// Package api serves research runs and archived reports over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ncolesummers/company-research-agent/pkg/config"
	"github.com/ncolesummers/company-research-agent/pkg/domain"
	"github.com/ncolesummers/company-research-agent/pkg/observability"
	"github.com/ncolesummers/company-research-agent/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Service is what the server needs from the research graph
type Service interface {
	domain.ResearchService
	Health() workflow.HealthStatus
}

// Server exposes a Service over HTTP
type Server struct {
	config         config.APIConfig
	service        Service
	limiter        *RunLimiter
	requestTimeout time.Duration
	telemetry      *observability.Telemetry
	logger         *observability.StructuredLogger
	router         chi.Router
}

// NewServer creates the server and mounts its routes
func NewServer(cfg config.APIConfig, service Service, telemetry *observability.Telemetry) *Server {
	if telemetry == nil {
		telemetry = observability.NewNoopTelemetry()
	}
	s := &Server{
		config:         cfg,
		service:        service,
		limiter:        NewRunLimiter(cfg.MaxConcurrentRuns),
		requestTimeout: config.MustDuration(cfg.RequestTimeout),
		telemetry:      telemetry,
		logger:         observability.NewStructuredLogger("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.traced)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/research", func(r chi.Router) {
		r.Post("/", s.handleResearch)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleReport)
	})
	return r
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx ends, then drains in-flight requests
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "API server listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	s.logger.Info(ctx, "API server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// traced wraps each request in a span and logs its outcome
func (s *Server) traced(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ctx, span := s.telemetry.StartSpan(r.Context(), "http.request",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		s.logger.Info(ctx, "HTTP request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"request_id":  middleware.GetReqID(ctx),
			"duration_ms": time.Since(started).Milliseconds(),
		})
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	methods := strings.Join(s.config.CORS.AllowedMethods, ", ")
	headers := strings.Join(s.config.CORS.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, allowed := range s.config.CORS.AllowedOrigins {
		switch {
		case allowed == "*":
			return "*"
		case origin != "" && strings.EqualFold(allowed, origin):
			return origin
		}
	}
	return ""
}
