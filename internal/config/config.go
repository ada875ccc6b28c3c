package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/patient-insight-server/internal/domain"
)

// Manager loads and validates application configuration using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/patient-insight-server/")

	viper.SetEnvPrefix("PATIENT_INSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars cover everything
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "60s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.allowed_origins", []string{
		"http://localhost:3000",
		"http://localhost:3001",
		"http://localhost:5173",
	})
	viper.SetDefault("server.rate_limit", 10.0)
	viper.SetDefault("server.rate_burst", 20)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "patient_insight")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_conns", 25)
	viper.SetDefault("database.min_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "1h")
	viper.SetDefault("database.conn_max_idle_time", "30m")
	viper.SetDefault("database.migrations_path", "./migrations")

	// Cache defaults
	viper.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	viper.SetDefault("cache.redis_enabled", false)
	viper.SetDefault("cache.summary_size", 256)
	viper.SetDefault("cache.summary_ttl", "24h")
	viper.SetDefault("cache.pool_size", 10)

	// Generation engine defaults tuned for deterministic, grounded output
	viper.SetDefault("engine.base_url", "http://localhost:8081")
	viper.SetDefault("engine.timeout", "60s")
	viper.SetDefault("engine.max_tokens", 256)
	viper.SetDefault("engine.temperature", 0.2)
	viper.SetDefault("engine.top_p", 0.9)
	viper.SetDefault("engine.rate_limit", 2.0)
	viper.SetDefault("engine.rate_burst", 4)

	// Pipeline defaults
	viper.SetDefault("pipeline.context_expiry", "30m")
	viper.SetDefault("pipeline.retrieval_limit", 5)
	viper.SetDefault("pipeline.summary_history_limit", 10)
	viper.SetDefault("pipeline.recency_weight", 0.4)
	viper.SetDefault("pipeline.clinical_weight", 0.6)
	viper.SetDefault("pipeline.max_ambiguous_listed", 5)
	viper.SetDefault("pipeline.forbidden_words", defaultForbiddenWords)
	viper.SetDefault("pipeline.refusal_patterns", defaultRefusalPatterns)
	viper.SetDefault("pipeline.severity_patterns", defaultSeverityPatterns)
	viper.SetDefault("pipeline.factual_guard_patterns", defaultFactualGuardPatterns)
	viper.SetDefault("pipeline.temporal_keywords", defaultTemporalKeywords)
	viper.SetDefault("pipeline.summary_keywords", defaultSummaryKeywords)
	viper.SetDefault("pipeline.synthesis_patterns", defaultSynthesisPatterns)

	// Guardrail audit store defaults
	viper.SetDefault("guardrail.backend", "sqlite")
	viper.SetDefault("guardrail.sqlite_path", "./data/guardrail.db")
	viper.SetDefault("guardrail.postgres_url", "")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetCacheConfig returns cache configuration
func (m *Manager) GetCacheConfig() *domain.CacheConfig {
	return &m.config.Cache
}

// GetEngineConfig returns generation engine configuration
func (m *Manager) GetEngineConfig() *domain.EngineConfig {
	return &m.config.Engine
}

// GetPipelineConfig returns pipeline configuration
func (m *Manager) GetPipelineConfig() *domain.PipelineConfig {
	return &m.config.Pipeline
}

// GetGuardrailConfig returns guardrail store configuration
func (m *Manager) GetGuardrailConfig() *domain.GuardrailConfig {
	return &m.config.Guardrail
}

// GetLoggingConfig returns logging configuration
func (m *Manager) GetLoggingConfig() *domain.LoggingConfig {
	return &m.config.Logging
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate checks the loaded configuration field by field. Errors carry
// the viper key of the offending field and the value that was rejected.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return domain.NewValidationError("server.port", "must be between 1 and 65535", config.Server.Port)
	}

	if config.Database.Host == "" {
		return domain.NewValidationError("database.host", "is required", config.Database.Host)
	}
	if config.Database.Database == "" {
		return domain.NewValidationError("database.database", "is required", config.Database.Database)
	}
	if config.Database.Username == "" {
		return domain.NewValidationError("database.username", "is required", config.Database.Username)
	}

	if config.Engine.BaseURL == "" {
		return domain.NewValidationError("engine.base_url", "is required", config.Engine.BaseURL)
	}
	if config.Engine.MaxTokens <= 0 {
		return domain.NewValidationError("engine.max_tokens", "must be positive", config.Engine.MaxTokens)
	}

	if config.Pipeline.ContextExpiry <= 0 {
		return domain.NewValidationError("pipeline.context_expiry", "must be positive", config.Pipeline.ContextExpiry)
	}
	if config.Pipeline.RetrievalLimit <= 0 {
		return domain.NewValidationError("pipeline.retrieval_limit", "must be positive", config.Pipeline.RetrievalLimit)
	}
	if config.Pipeline.RecencyWeight < 0 {
		return domain.NewValidationError("pipeline.recency_weight", "must not be negative", config.Pipeline.RecencyWeight)
	}
	if config.Pipeline.ClinicalWeight < 0 {
		return domain.NewValidationError("pipeline.clinical_weight", "must not be negative", config.Pipeline.ClinicalWeight)
	}
	if len(config.Pipeline.ForbiddenWords) == 0 {
		return domain.NewValidationError("pipeline.forbidden_words", "must not be empty", config.Pipeline.ForbiddenWords)
	}

	switch config.Guardrail.Backend {
	case "sqlite", "postgres", "none":
	default:
		return domain.NewValidationError("guardrail.backend", "must be sqlite, postgres or none", config.Guardrail.Backend)
	}
	if config.Guardrail.Backend == "postgres" && config.Guardrail.PostgresURL == "" {
		return domain.NewValidationError("guardrail.postgres_url", "is required for the postgres backend", config.Guardrail.PostgresURL)
	}

	if config.Cache.RedisEnabled && config.Cache.RedisURL == "" {
		return domain.NewValidationError("cache.redis_url", "is required when redis is enabled", config.Cache.RedisURL)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return domain.NewValidationError("logging.level", "must be a recognized log level", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database connection string in URL form,
// as the migration runner expects it.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
