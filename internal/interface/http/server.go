// Package http implements the REST API of the achievement engine: the
// collection and notification endpoints for the host application, the
// leaderboard, fact ingestion and catalog administration.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/application/command"
	"github.com/alem-hub/achievement-engine/internal/application/query"
	"github.com/alem-hub/achievement-engine/internal/application/saga"
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/internal/interface/http/handlers"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxBodyBytes - maximum request body size.
	MaxBodyBytes int64

	// APIKeyHeader - header name for API key authentication.
	APIKeyHeader string

	// APIKeys - valid keys for fact ingestion and administration.
	APIKeys []string

	// Version is reported by the root and health endpoints.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: 1 << 20,
		APIKeyHeader: "X-API-Key",
		Version:      "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// CollectionReader serves a user's collection.
type CollectionReader interface {
	Handle(ctx context.Context, q query.GetCollectionQuery) (*query.GetCollectionResult, error)
}

// LeaderboardReader serves rankings.
type LeaderboardReader interface {
	Handle(ctx context.Context, q query.GetLeaderboardQuery) (*query.GetLeaderboardResult, error)
}

// UnnotifiedReader serves achievements awaiting notification.
type UnnotifiedReader interface {
	Handle(ctx context.Context, q query.GetUnnotifiedQuery) ([]query.UnnotifiedDTO, error)
}

// NotificationMarker acknowledges notifications.
type NotificationMarker interface {
	Handle(ctx context.Context, cmd command.MarkNotifiedCommand) (*command.MarkNotifiedResult, error)
}

// DefinitionUpdater changes catalog entries.
type DefinitionUpdater interface {
	Handle(ctx context.Context, cmd command.UpdateDefinitionCommand) (*command.UpdateDefinitionResult, error)
}

// Evaluator runs on-demand evaluations.
type Evaluator interface {
	EvaluateUser(ctx context.Context, scope saga.Scope, asOf time.Time, codes []achievement.Code) (*saga.RunResult, error)
	EvaluateOrganization(ctx context.Context, scope saga.Scope, asOf time.Time, codes []achievement.Code) (*saga.RunResult, error)
}

// FactIngestor publishes facts posted over HTTP.
type FactIngestor interface {
	HandleFact(ctx context.Context, payload []byte) (shared.FactRecordedEvent, error)
}

// Dependencies contains all dependencies required by HTTP handlers.
// Nil handlers leave their routes unregistered.
type Dependencies struct {
	Collection  CollectionReader
	Leaderboard LeaderboardReader
	Unnotified  UnnotifiedReader
	MarkNotify  NotificationMarker
	Definitions DefinitionUpdater
	Evaluator   Evaluator
	Facts       FactIngestor

	HealthChecker handlers.HealthChecker

	Logger *zap.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	auth       *handlers.APIKeyAuth
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		auth:   handlers.NewAPIKeyAuth(config.APIKeyHeader, config.APIKeys),
		logger: logger.OrNop(deps.Logger).With(logger.Component("http")),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewNoopHealthChecker()
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return handlers.Chain(
		s.recoveryMiddleware,
		s.requestIDMiddleware,
		s.loggingMiddleware,
		handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
	)(s.router)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)
	s.router.HandleFunc("GET /{$}", s.handleRoot)

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Host application endpoints
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.Collection != nil {
		s.router.HandleFunc("GET /api/v1/users/{userID}/achievements", s.handleGetCollection)
	}
	if s.deps.Unnotified != nil {
		s.router.HandleFunc("GET /api/v1/users/{userID}/achievements/unnotified", s.handleGetUnnotified)
	}
	if s.deps.MarkNotify != nil {
		s.router.HandleFunc("POST /api/v1/users/{userID}/achievements/notified", s.handleMarkAllNotified)
		s.router.HandleFunc("POST /api/v1/users/{userID}/achievements/{code}/notified", s.handleMarkNotified)
	}
	if s.deps.Leaderboard != nil {
		s.router.HandleFunc("GET /api/v1/organizations/{orgID}/leaderboard", s.handleGetLeaderboard)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Authenticated endpoints
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.Facts != nil {
		s.router.Handle("POST /api/v1/facts", s.auth.Middleware(http.HandlerFunc(s.handlePostFact)))
	}
	if s.deps.Evaluator != nil {
		s.router.Handle("POST /api/v1/admin/organizations/{orgID}/evaluate",
			s.auth.Middleware(http.HandlerFunc(s.handleEvaluate)))
	}
	if s.deps.Definitions != nil {
		s.router.Handle("PATCH /api/v1/admin/definitions/{code}",
			s.auth.Middleware(http.HandlerFunc(s.handleUpdateDefinition)))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// requestIDMiddleware adds a unique request ID to each request.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, s.logger.With(zap.String("request_id", requestID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			zap.String("request_id", getRequestID(r.Context())),
		)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", zap.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSONErrorWithDetails(w, status, code, message, "")
}

// writeJSONErrorWithDetails writes an error JSON response with details.
func writeJSONErrorWithDetails(w http.ResponseWriter, status int, code, message, details string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message, Details: details},
		Meta:    &ResponseMeta{Timestamp: time.Now().UTC()},
	})
}

// writeDomainError maps domain errors to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var flowErr *saga.EvaluationFlowError
	switch {
	case errors.As(err, &flowErr) && flowErr.Step == saga.StepValidate:
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_input", "Invalid request", err.Error())
	case shared.IsValidation(err):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_input", "Invalid request", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, handlers.ErrInvalidFact):
		writeJSONErrorWithDetails(w, http.StatusBadRequest, "invalid_fact", "Invalid fact payload", err.Error())
	case shared.IsRetryable(err), errors.Is(err, shared.ErrRankingComputation):
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Fact source is temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, "timeout", "Request timeout exceeded")
	default:
		logger.FromContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// getQueryParamInt extracts an integer query parameter with a default value.
func getQueryParamInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

// getQueryParamBool extracts a boolean query parameter.
func getQueryParamBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

// language prefers ?lang= over the Accept-Language header.
func language(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	return r.Header.Get("Accept-Language")
}
