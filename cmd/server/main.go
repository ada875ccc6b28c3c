package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/api"
	"github.com/patient-insight-server/internal/config"
	"github.com/patient-insight-server/internal/database"
	"github.com/patient-insight-server/internal/domain"
	"github.com/patient-insight-server/internal/guardrail"
	"github.com/patient-insight-server/internal/repository"
	"github.com/patient-insight-server/internal/service"
	"github.com/patient-insight-server/internal/session"
	"github.com/patient-insight-server/internal/summary"
	"github.com/patient-insight-server/pkg/external"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := buildLogger(&cfg.Logging)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Apply schema migrations before opening the pool
	if cfg.Database.MigrationsPath != "" {
		runner, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
		if err != nil {
			log.Fatalf("Failed to create migration runner: %v", err)
		}
		if err := runner.Up(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		if err := runner.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close migration runner")
		}
	}

	// Connect to the patient record store
	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	patients := repository.NewPatientRepository(db.Pool, logger)
	summaryRows := repository.NewSummaryRepository(db.Pool, logger)

	summaries, err := summary.NewCache(&cfg.Cache, summaryRows, logger)
	if err != nil {
		log.Fatalf("Failed to create summary cache: %v", err)
	}
	defer summaries.Close()

	sessions := session.NewStore(cfg.Pipeline.ContextExpiry, logger)
	engine := external.NewEngineClient(&cfg.Engine, logger)

	incidents, err := guardrail.NewStore(&cfg.Guardrail, logger)
	if err != nil {
		log.Fatalf("Failed to open guardrail store: %v", err)
	}
	defer incidents.Close()

	pipeline, err := service.NewPipeline(&cfg.Pipeline, service.Deps{
		Source:    patients,
		Engine:    engine,
		Sessions:  sessions,
		Summaries: summaries,
		Incidents: incidents,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	server := api.NewServer(cfg, api.Deps{
		Pipeline: pipeline,
		Source:   patients,
		Checks: map[string]api.HealthChecker{
			"database": db,
			"engine":   engine,
			"cache":    summaries,
		},
	}, logger)

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting patient insight server")

	if err := server.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}

	logger.Info("Server stopped")
}

func buildLogger(cfg *domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	if strings.ToLower(cfg.Format) == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	}

	return logger
}
