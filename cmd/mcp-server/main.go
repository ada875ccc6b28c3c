// Package main runs the MCP tool server over stdio. Log output is forced
// to stderr because stdout carries the protocol stream.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/config"
	"github.com/patient-insight-server/internal/database"
	"github.com/patient-insight-server/internal/domain"
	"github.com/patient-insight-server/internal/guardrail"
	"github.com/patient-insight-server/internal/mcptool"
	"github.com/patient-insight-server/internal/repository"
	"github.com/patient-insight-server/internal/service"
	"github.com/patient-insight-server/internal/session"
	"github.com/patient-insight-server/internal/summary"
	"github.com/patient-insight-server/pkg/external"
)

func main() {
	log.SetOutput(os.Stderr)

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
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

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

	server := mcptool.NewServer(pipeline, patients, logger)

	// Start MCP server
	if err := server.Start(ctx); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}

	logger.Info("MCP server stopped")
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

	// Stdout belongs to the protocol stream.
	logger.SetOutput(os.Stderr)

	return logger
}
