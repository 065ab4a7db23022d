// Package api provides the HTTP API for automation workers and the operator UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/darshan-rambhia/netvault/internal/alarms"
	"github.com/darshan-rambhia/netvault/internal/auth"
	"github.com/darshan-rambhia/netvault/internal/queue"
	"github.com/darshan-rambhia/netvault/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/darshan-rambhia/netvault/docs/swagger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Error codes of the structured error body.
const (
	codeBadRequest        = "bad_request"
	codeValidation        = "validation_failed"
	codeUnauthorized      = "unauthorized"
	codeForbidden         = "forbidden"
	codeNotFound          = "not_found"
	codeInvalidTransition = "invalid_transition"
	codeUnavailable       = "unavailable"
	codeInternal          = "internal"
)

// Deps are the services the API serves.
type Deps struct {
	Store   *store.Store
	Queue   *queue.Service
	Alarms  *alarms.Service
	Users   *auth.UserAuthenticator
	Workers *auth.WorkerAuthenticator
}

// Server is the HTTP server for netvault.
type Server struct {
	store   *store.Store
	queue   *queue.Service
	alarms  *alarms.Service
	users   *auth.UserAuthenticator
	workers *auth.WorkerAuthenticator
	mux     *http.ServeMux
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(addr string, d Deps) *Server {
	srv := &Server{
		store:   d.Store,
		queue:   d.Queue,
		alarms:  d.Alarms,
		users:   d.Users,
		workers: d.Workers,
		mux:     http.NewServeMux(),
	}

	srv.registerRoutes()

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return SecurityHeadersMiddleware(RecoveryMiddleware(LoggingMiddleware(s.mux)))
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("HTTP server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	worker := RequireWorker(s.workers)
	user := RequireUser(s.users)

	// Automation workers
	s.mux.Handle("GET /api/v1/automation/executions/claim", worker(http.HandlerFunc(s.handleClaim)))
	s.mux.Handle("PATCH /api/v1/automation/executions/{id}/status", worker(http.HandlerFunc(s.handlePatchStatus)))
	s.mux.Handle("POST /api/v1/automation/backups/report", worker(http.HandlerFunc(s.handleReport)))
	s.mux.Handle("POST /api/v1/automation/executions/cleanup-stale", worker(http.HandlerFunc(s.handleCleanupStale)))

	// Operator UI
	s.mux.Handle("POST /api/v1/backups/trigger", user(http.HandlerFunc(s.handleTrigger)))
	s.mux.Handle("GET /api/v1/devices/{id}/executions", user(http.HandlerFunc(s.handleDeviceExecutions)))
	s.mux.Handle("GET /api/v1/devices/{id}/interfaces", user(http.HandlerFunc(s.handleDeviceInterfaces)))
	s.mux.Handle("GET /api/v1/alarms", user(http.HandlerFunc(s.handleListAlarms)))
	s.mux.Handle("POST /api/v1/alarms/acknowledge", user(http.HandlerFunc(s.handleAcknowledge)))
	s.mux.Handle("POST /api/v1/alarms/{id}/resolve", user(http.HandlerFunc(s.handleResolve)))
	s.mux.Handle("GET /api/v1/alarms/preferences", user(http.HandlerFunc(s.handleGetPreferences)))
	s.mux.Handle("PUT /api/v1/alarms/preferences", user(http.HandlerFunc(s.handlePutPreferences)))

	// Health check
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Prometheus
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Swagger UI
	s.mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

// errorBody is the structured error returned by every endpoint.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON marshals v to JSON into a buffer first, then writes it to the
// response. This ensures marshalling errors can be returned as a proper 500.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "Internal Server Error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		// Client disconnected after headers sent.
		slog.Debug("writing JSON response", "path", r.URL.Path, "error", err)
	}
}

// writeError writes {"error": {"code": ..., "message": ...}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	data, _ := json.Marshal(errorBody{Error: errorDetail{Code: code, Message: message}})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Debug("writing error response", "path", r.URL.Path, "error", err)
	}
}

// writeServiceError maps a service error onto a status code. Unknown errors
// are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, queue.ErrValidation), errors.Is(err, alarms.ErrInvalid):
		writeError(w, r, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, queue.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, codeInvalidTransition, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "Internal Server Error")
	}
}

// decodeJSON reads a JSON body into v. An empty body is an error unless
// allowEmpty is set, in which case v is left untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return true
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

// pathID parses a positive integer path parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// queryInt parses an optional non-negative integer query parameter; absent
// means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, r, http.StatusBadRequest, codeBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// principal returns the authenticated user. Routes behind RequireUser
// always have one.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

type healthResponse struct {
	Status string `json:"status"`
}

// @Summary Health check
// @Description Reports whether the database is reachable
// @Produce json
// @Success 200 {object} healthResponse
// @Failure 503 {object} errorBody
// @Router /healthz [get]
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		writeError(w, r, http.StatusServiceUnavailable, codeUnavailable, "database unreachable")
		return
	}
	writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok"})
}
