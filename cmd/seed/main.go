// Package main loads the deterministic synthetic data set into the
// patient record store. Safe to rerun; each run replaces the previous
// data.
package main

import (
	"context"
	"log"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/config"
	"github.com/patient-insight-server/internal/database"
	"github.com/patient-insight-server/internal/seed"
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

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{})

	ctx := context.Background()

	// Apply schema migrations before loading data
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

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := seed.NewSeeder(db.Pool, logger).Run(ctx); err != nil {
		log.Fatalf("Seed failed: %v", err)
	}

	logger.Info("Seed completed")
}
