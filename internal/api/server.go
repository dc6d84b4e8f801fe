package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"taskpilot/internal/api/health"
	"taskpilot/internal/metrics"
	"taskpilot/pkg/errors"
	"taskpilot/pkg/logger"
)

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Host         string
	Port         int
	ServiceName  string
	Version      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates and configures HTTP server with all routes
func NewServer(cfg ServerConfig, handlers *Handlers, healthHandler *health.Handler, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	// Health check endpoints (Kubernetes probes)
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", healthHandler.HandleReadiness)
	mux.HandleFunc("GET /live", healthHandler.HandleLiveness)

	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", metrics.Handler())

	// Decision engine
	mux.HandleFunc("POST /chat", handlers.HandleChat)

	// Observability read path
	mux.HandleFunc("GET /decisions", handlers.HandleQueryDecisions)
	mux.HandleFunc("GET /decisions/{id}/trace", handlers.HandleDecisionTrace)
	mux.HandleFunc("GET /metrics/summary", handlers.HandleMetricsSummary)
	mux.HandleFunc("GET /logs/export", handlers.HandleExportLogs)

	// Baselines and drift
	mux.HandleFunc("POST /baselines", handlers.HandleCreateBaseline)
	mux.HandleFunc("GET /baselines", handlers.HandleListBaselines)
	mux.HandleFunc("POST /baselines/{name}/compare", handlers.HandleCompareBaseline)

	// Behavioral validation
	mux.HandleFunc("POST /validation/run", handlers.HandleRunValidation)
	mux.HandleFunc("GET /validation/reports", handlers.HandleListValidationReports)

	// Root endpoint (service info)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"service":"%s","version":"%s","status":"running"}`,
			cfg.ServiceName, cfg.Version)
	})

	port := 8080
	if cfg.Port > 0 {
		port = cfg.Port
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 60 * time.Second
	}

	log.Infof("HTTP server configured on port %d", port)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, port),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		log:        log,
	}
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("HTTP server stopped")
	return nil
}
