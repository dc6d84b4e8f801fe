package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"taskpilot/internal/adapters/ai"
	"taskpilot/internal/adapters/config"
	"taskpilot/internal/adapters/errors/noop"
	"taskpilot/internal/adapters/errors/sentry"
	"taskpilot/internal/adapters/sqlite"
	"taskpilot/internal/agents"
	"taskpilot/internal/api"
	"taskpilot/internal/api/health"
	"taskpilot/internal/metrics"
	sqliterepo "taskpilot/internal/repository/sqlite"
	"taskpilot/internal/services/baseline"
	"taskpilot/internal/services/logging"
	"taskpilot/internal/services/query"
	"taskpilot/internal/services/validation"
	"taskpilot/internal/tools"
	"taskpilot/internal/workers"
	"taskpilot/pkg/errors"
	"taskpilot/pkg/logger"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Initialize metrics
	metrics.Init()

	// Initialize log store
	db, err := sqlite.NewClient(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open log store: %v", err)
	}
	defer db.Close()
	log.Infow("Log store initialized", "path", cfg.Database.Path)

	repo := sqliterepo.NewLogRepository(db.DB())

	// Initialize services
	logService := logging.New(repo)
	queryService := query.New(repo)
	baselineService := baseline.New(repo, baseline.Config{
		DriftThreshold: cfg.Observability.DriftThreshold,
		MinSampleSize:  cfg.Observability.MinBaselineSample,
	})
	validationService := validation.New(repo, baselineService, validation.Config{
		FixturesPath: cfg.Observability.FixturesPath,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize AI provider
	provider, err := ai.NewProvider(ctx, cfg.AI, cfg.Engine.RequestTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize AI provider: %v", err)
	}
	log.Infow("AI provider initialized", "provider", provider.Name(), "model", cfg.AI.Model)

	// Initialize tools
	registry := tools.NewRegistry()
	tools.RegisterTaskTools(registry, tools.NewTaskStore())
	executor := tools.NewExecutor(registry)
	log.Infow("Tools registered", "tools", registry.List())

	// Initialize decision engine
	engine := agents.NewEngine(provider, executor, logService,
		agents.LoadConstitution(cfg.Engine.ConstitutionPath),
		agents.Config{
			Model:               cfg.AI.Model,
			MaxIterations:       cfg.Engine.MaxToolIterations,
			Temperature:         cfg.AI.Temperature,
			MaxTokens:           cfg.AI.MaxTokens,
			RequestTimeout:      cfg.Engine.RequestTimeout,
			ConfirmationTimeout: cfg.Engine.ConfirmationTimeout,
		})

	// Initialize background workers
	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewRetentionWorker(
		repo, cfg.Retention.Days, cfg.Retention.SweepInterval, cfg.Retention.SweepEnabled))
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}

	// Initialize HTTP server
	handlers := api.NewHandlers(engine, queryService, baselineService, validationService)
	healthHandler := health.New(log, db, cfg.App.Name, version)
	server := api.NewServer(api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ServiceName:  cfg.App.Name,
		Version:      version,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, healthHandler, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Info("System initialized successfully")

	waitForShutdown(cfg, cancel, server, scheduler, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(cfg *config.Config, cancel context.CancelFunc, server *api.Server, scheduler *workers.Scheduler, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
	}

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Worker shutdown error: %v", err)
	}

	cancel()

	if errorTracker != nil {
		if err := errorTracker.Flush(shutdownCtx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
