// Package api exposes the classification engine over HTTP: request intake,
// lifecycle inspection, agent and taxonomy views, learning control and a
// websocket stream of routing decisions.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/seekerlabs/seekerd/internal/agents"
	"github.com/seekerlabs/seekerd/internal/orchestrator"
	"github.com/seekerlabs/seekerd/internal/router"
	"github.com/seekerlabs/seekerd/internal/sair"
	"github.com/seekerlabs/seekerd/internal/security"
	"github.com/seekerlabs/seekerd/internal/taxonomy"
)

const version = "0.1.0"

// Server is the HTTP API server.
type Server struct {
	port       int
	orch       *orchestrator.Orchestrator
	registry   *agents.Registry
	taxonomy   *taxonomy.Store
	router     *router.Router
	loop       *sair.Loop
	jwtSecret  []byte
	logger     *slog.Logger
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer creates a new API server. jwtSecret may be nil (dev mode, no
// authentication).
func NewServer(
	port int,
	orch *orchestrator.Orchestrator,
	registry *agents.Registry,
	tax *taxonomy.Store,
	rt *router.Router,
	loop *sair.Loop,
	jwtSecret []byte,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		port:      port,
		orch:      orch,
		registry:  registry,
		taxonomy:  tax,
		router:    rt,
		loop:      loop,
		jwtSecret: jwtSecret,
		logger:    logger.With("component", "api"),
	}
}

// Handler builds the routed handler with middleware applied. Exposed for
// httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/requests", s.handleRequests)
	mux.HandleFunc("/api/requests/", s.handleRequestDetail)
	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/agents/", s.handleAgentDetail)
	mux.HandleFunc("/api/taxonomy", s.handleTaxonomy)
	mux.HandleFunc("/api/learning", s.handleLearning)
	mux.Handle("/api/learning/run",
		security.RequireRole(security.RoleOperator)(http.HandlerFunc(s.handleLearningRun)))

	// The websocket endpoint authenticates via ?token= inside its handler;
	// browsers cannot set headers on upgrades, so it bypasses the bearer
	// middleware.
	root := http.NewServeMux()
	root.HandleFunc("/api/events", s.handleEvents)
	root.Handle("/", security.AuthMiddleware(s.jwtSecret)(mux))

	return s.corsMiddleware(s.loggingMiddleware(root))
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleStatus returns daemon status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := s.taxonomy.Snapshot()
	status := map[string]interface{}{
		"version":              version,
		"uptime_seconds":       time.Since(s.startedAt).Seconds(),
		"agents":               len(s.registry.List()),
		"taxonomy_version":     snap.Version,
		"taxonomy_fingerprint": snap.Fingerprint,
		"learning_cycle":       s.loop.Status().Cycle,
	}
	writeJSON(w, http.StatusOK, status)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
