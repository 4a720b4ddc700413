// Package api is the HTTP front door to the project store. Routes map onto
// persistence operations one to one; store error codes map onto statuses.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"genestore/internal/auth"
	"genestore/internal/errors"
	"genestore/internal/events"
	"genestore/internal/persistence"
	"genestore/internal/sequence"
	"genestore/internal/userconfig"
)

// AccessChecker answers whether a user may touch an existing project.
type AccessChecker interface {
	HasAccess(ctx context.Context, projectID, userID string) (bool, error)
}

// Deps are the services the server routes to. Store and Sequences are
// required.
type Deps struct {
	Store      *persistence.Store
	Sequences  *sequence.Store
	Auth       *auth.Manager     // nil serves every request as the default user
	Access     AccessChecker     // nil skips per-project permission checks
	UserConfig *userconfig.Store // nil disables /users/me/config
	Events     *events.Hub       // nil disables /events
}

// Server represents the HTTP API server
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	addr    string
	logger  *slog.Logger
	config  *ServerConfig
	deps    Deps
	shedder *LoadShedder
	metrics *MetricsCollector
	maxBody int64
	started time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(addr string, deps Deps, cfg *ServerConfig, logger *slog.Logger) (*Server, error) {
	if deps.Store == nil || deps.Sequences == nil {
		return nil, errors.New(errors.InvalidModel, "api: store and sequence store are required", nil)
	}
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.Auth == nil {
		manager, err := auth.NewManager(auth.DefaultManagerConfig(), nil, logger)
		if err != nil {
			return nil, err
		}
		deps.Auth = manager
	}

	s := &Server{
		addr:    addr,
		logger:  logger,
		config:  cfg,
		deps:    deps,
		router:  http.NewServeMux(),
		maxBody: cfg.maxBodyBytes(),
		started: time.Now(),
	}
	if cfg.LoadShedding.Enabled {
		s.shedder = NewLoadShedder(cfg.LoadShedding)
	}

	if cfg.Metrics.Enabled {
		s.metrics = NewMetricsCollector()
		if deps.Events != nil {
			s.metrics.dropped = deps.Events.Dropped
		}
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.applyMiddleware(s.router),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return s, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.addr, "history", s.deps.Store.HistoryBackend())

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server shut down successfully")
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// applyMiddleware wraps the handler with middleware in the correct order
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)
	handler = AuthMiddleware(s.deps.Auth, s.logger)(handler)
	handler = LoadSheddingMiddleware(s.shedder)(handler)
	handler = RecoveryMiddleware(s.logger)(handler)
	handler = MetricsMiddleware(s.metrics)(handler)
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware()(handler)
	handler = CORSMiddleware(s.config.CORS.AllowedOrigins)(handler)
	return handler
}
