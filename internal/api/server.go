// Package api exposes marionette over HTTP: the command surface test clients
// drive, the session channel the webview agent connects to, and the
// observability stream.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/marionette/internal/correlate"
	"github.com/mattjoyce/marionette/internal/dispatch"
	"github.com/mattjoyce/marionette/internal/events"
	"github.com/mattjoyce/marionette/internal/history"
	"github.com/mattjoyce/marionette/internal/mock"
	"github.com/mattjoyce/marionette/internal/session"
)

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token required on the command surface. Empty means
	// open access (local development against a loopback listen address).
	APIKey string
}

// Server is the HTTP front for the daemon.
type Server struct {
	config     Config
	dispatcher *dispatch.Dispatcher
	session    *session.Session
	mocks      *mock.Registry
	correlator *correlate.Manager
	hub        *events.Hub
	history    *history.Store
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates an API server. history may be nil when persistence is disabled.
func New(config Config, dispatcher *dispatch.Dispatcher, sess *session.Session, mocks *mock.Registry, correlator *correlate.Manager, hub *events.Hub, hist *history.Store, logger *slog.Logger) *Server {
	return &Server{
		config:     config,
		dispatcher: dispatcher,
		session:    sess,
		mocks:      mocks,
		correlator: correlator,
		hub:        hub,
		history:    hist,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// SSE streams (session, events) stay open indefinitely; no write
		// timeout on the server, handlers watch their request contexts.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Session channel. The agent runs inside a webview and cannot attach
	// Authorization headers to an EventSource, so these stay open; the listen
	// address is expected to be loopback.
	r.Get("/session/agent.js", s.handleAgentScript)
	r.Get("/session/stream", s.handleSessionStream)
	r.Post("/session/emit", s.handleSessionEmit)

	// Command surface and observability.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/command/{command}", s.handleCommand)
		r.Get("/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
