package domain

import (
	"time"
)

// Config is the complete application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Engine      EngineConfig    `mapstructure:"engine"`
	Pipeline    PipelineConfig  `mapstructure:"pipeline"`
	Guardrail   GuardrailConfig `mapstructure:"guardrail"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
}

// DatabaseConfig represents PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// MigrationsPath points at the schema migration files; empty skips
	// migrations on boot.
	MigrationsPath string `mapstructure:"migrations_path"`
}

// CacheConfig represents the summary cache tiers
type CacheConfig struct {
	RedisURL     string        `mapstructure:"redis_url"`
	RedisEnabled bool          `mapstructure:"redis_enabled"`
	SummarySize  int           `mapstructure:"summary_size"`
	SummaryTTL   time.Duration `mapstructure:"summary_ttl"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// EngineConfig represents the text generation engine endpoint
type EngineConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	RateBurst   int           `mapstructure:"rate_burst"`
}

// PipelineConfig carries the decision-layer tunables: expiry windows,
// retrieval bounds, scoring weights, and the pattern vocabularies the
// classifier and reasoner run on. Lists are data so deployments can tune
// them without a code change.
type PipelineConfig struct {
	ContextExpiry       time.Duration `mapstructure:"context_expiry"`
	RetrievalLimit      int           `mapstructure:"retrieval_limit"`
	SummaryHistoryLimit int           `mapstructure:"summary_history_limit"`
	RecencyWeight       float64       `mapstructure:"recency_weight"`
	ClinicalWeight      float64       `mapstructure:"clinical_weight"`
	MaxAmbiguousListed  int           `mapstructure:"max_ambiguous_listed"`

	ForbiddenWords       []string `mapstructure:"forbidden_words"`
	RefusalPatterns      []string `mapstructure:"refusal_patterns"`
	SeverityPatterns     []string `mapstructure:"severity_patterns"`
	FactualGuardPatterns []string `mapstructure:"factual_guard_patterns"`
	TemporalKeywords     []string `mapstructure:"temporal_keywords"`
	SummaryKeywords      []string `mapstructure:"summary_keywords"`
	SynthesisPatterns    []string `mapstructure:"synthesis_patterns"`
}

// GuardrailConfig represents the incident store backend
type GuardrailConfig struct {
	Backend     string `mapstructure:"backend"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
