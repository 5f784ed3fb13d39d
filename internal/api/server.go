package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch/internal/metrics"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

// Readiness reports scheduler liveness for /readyz.
type Readiness interface {
	Ready(now time.Time) bool
	LastHeartbeat() time.Time
}

// Server wires HTTP handlers to the scheduler and state store.
type Server struct {
	router    chi.Router
	readiness Readiness
	store     stock.StateStore
	targets   []stock.Target
	clock     stock.Clock
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	readiness Readiness,
	store stock.StateStore,
	targets []stock.Target,
	clock stock.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		readiness: readiness,
		store:     store,
		targets:   targets,
		clock:     clock,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(10 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Head("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Head("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/targets", func(r chi.Router) {
		r.Get("/", s.listTargets)
		r.Get("/{id}", s.getTarget)
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.readiness == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	payload := map[string]any{"last_heartbeat": s.readiness.LastHeartbeat()}
	if !s.readiness.Ready(s.clock.Now()) {
		payload["status"] = "stale"
		writeJSON(w, http.StatusServiceUnavailable, payload)
		return
	}
	payload["status"] = "ready"
	writeJSON(w, http.StatusOK, payload)
}

type targetStatus struct {
	Identity     string     `json:"identity"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Availability string     `json:"availability,omitempty"`
	ObservedAt   *time.Time `json:"observed_at,omitempty"`
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	out := make([]targetStatus, 0, len(s.targets))
	for _, t := range s.targets {
		status, err := s.status(r.Context(), t)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "state store unavailable")
			return
		}
		out = append(out, status)
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": out})
}

func (s *Server) getTarget(w http.ResponseWriter, r *http.Request) {
	// URL identities arrive with their slashes escaped as %2F.
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid target id")
		return
	}
	for _, t := range s.targets {
		if t.Identity() != id {
			continue
		}
		status, err := s.status(r.Context(), t)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "state store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}
	writeError(w, http.StatusNotFound, "target not found")
}

func (s *Server) status(ctx context.Context, t stock.Target) (targetStatus, error) {
	status := targetStatus{Identity: t.Identity(), Name: t.DisplayName(), URL: t.URL}
	if s.store == nil {
		return status, nil
	}
	rec, ok, err := s.store.Get(ctx, t.Identity())
	if err != nil {
		s.logger.Warn("state lookup failed", zap.String("target", t.Identity()), zap.Error(err))
		return status, err
	}
	if ok {
		observed := rec.ObservedAt
		status.Availability = string(rec.Availability)
		status.ObservedAt = &observed
	}
	return status, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned by the request middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
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

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
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
