// Package api exposes the HTTP interface for the scrape service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webintel/webintel/internal/config"
	"github.com/webintel/webintel/internal/controller"
	"github.com/webintel/webintel/internal/metrics"
	"github.com/webintel/webintel/internal/scrape"
)

// Server wires HTTP handlers to the controller and page store.
type Server struct {
	router chi.Router
	ctrl   *controller.Controller
	pages  scrape.PageStore
	logger *zap.Logger
	cfg    config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ctrl *controller.Controller, pages scrape.PageStore, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		ctrl:   ctrl,
		pages:  pages,
		logger: logger,
		cfg:    cfg,
	}

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.createRun)
		r.Get("/", s.listRuns)
		r.Route("/{run_id}", func(r chi.Router) {
			r.Get("/", s.getRun)
			r.Delete("/", s.deleteRun)
			r.Post("/pause", s.pauseRun)
			r.Post("/resume", s.resumeRun)
			r.Post("/stop", s.stopRun)
			r.Get("/pages", s.listRunPages)
		})
	})
	r.Get("/pages/{page_id}", s.getPage)
	r.Post("/vector-search", s.vectorSearch)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store answers a cheap read so readiness tracks storage health.
	if _, _, err := s.ctrl.ListJobs(r.Context(), 1, 0); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusFor maps the failure taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, scrape.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scrape.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, scrape.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, scrape.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
