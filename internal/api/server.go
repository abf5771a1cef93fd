package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mark3labs/mcp-go/server"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/engine"
	"github.com/phoenixvc/cognitive-mesh-sub011/internal/service"
	"github.com/rs/zerolog"
)

// ReadinessFunc reports whether the server's dependencies are usable.
type ReadinessFunc func(ctx context.Context) error

// Server implements the HTTP API for the memory engine
type Server struct {
	svc       *service.Service
	router    *chi.Mux
	port      int
	logger    zerolog.Logger
	metrics   http.Handler
	ready     ReadinessFunc
	sseServer *server.SSEServer
	mcpServer *server.MCPServer
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request and lifecycle logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l.With().Str("component", "api").Logger() }
}

// WithMetricsHandler mounts h at /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithReadiness sets the check behind /ready
func WithReadiness(fn ReadinessFunc) Option {
	return func(s *Server) { s.ready = fn }
}

// NewServer creates a new HTTP API server
func NewServer(svc *service.Service, port int, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		port:   port,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRouter()
	return s
}

// setupRouter configures all HTTP routes
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/openapi.json", s.handleOpenAPISpec)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	// /mcp is mounted by AddMCPServer outside the timeout group; SSE streams stay open
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post("/memories", s.handleStoreMemory)
		r.Get("/memories/{id}", s.handleGetMemory)
		r.Put("/memories/{id}", s.handleUpdateMemory)
		r.Delete("/memories/{id}", s.handleDeleteMemory)

		r.Post("/recall", s.handleRecall)
		r.Post("/recall/tags", s.handleRecallByTags)
		r.Get("/recall/recent", s.handleRecallRecent)

		r.Post("/consolidate", s.handleConsolidate)

		r.Get("/strategies/best", s.handleBestStrategy)
		r.Post("/strategies/{strategy}/performance", s.handleRecordPerformance)

		r.Get("/statistics", s.handleStatistics)
	})

	s.router = r
}

// Handler returns the router, for tests and embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", srv.Addr).
			Str("openapi", fmt.Sprintf("http://localhost%s/openapi.json", srv.Addr)).
			Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

// requestLogger replaces chi's stdout logger with a zerolog line per request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// handleHealth returns 200 OK if server is running
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	successResponse(w, map[string]string{"status": "healthy"})
}

// handleReady checks if dependencies are ready
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	successResponse(w, map[string]string{"status": "ready"})
}

// statusFor maps engine errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrDuplicateKey):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// engineError writes err with the matching status, logging server faults
func (s *Server) engineError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	errorResponse(w, code, err.Error())
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// errorResponse writes a JSON error response
func errorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// successResponse writes a JSON success response
func successResponse(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

// AddMCPServer adds MCP SSE transport to the HTTP server
func (s *Server) AddMCPServer(mcpServer *server.MCPServer) {
	s.mcpServer = mcpServer

	s.sseServer = server.NewSSEServer(
		mcpServer,
		server.WithBasePath("/mcp"),
		server.WithSSEEndpoint("/sse"),
		server.WithMessageEndpoint("/message"),
		server.WithKeepAlive(true),
		server.WithKeepAliveInterval(15*time.Second),
	)

	s.router.Mount("/mcp", s.sseServer)

	s.logger.Info().
		Str("sse", "/mcp/sse").
		Str("message", "/mcp/message").
		Dur("keepalive", 15*time.Second).
		Msg("MCP SSE transport mounted")
}
