package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for integrity-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (database password, embeddings API key) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8710"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	Version  string `yaml:"-"` // Set at load time, not from config

	// AnchorsPath points at the YAML registry of known memory anchors.
	AnchorsPath string `yaml:"anchors_path" env:"ANCHORS_PATH" env-default:"anchors.yaml"`

	// MigrationsPath is the directory holding SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Embeddings endpoint backing semantic suggestion search
	Embeddings EmbeddingsConfig `yaml:"embeddings"`

	// Integrity holds the scan/suggestion heuristics. The defaults mirror
	// the values the governance tooling shipped with; they are tuned
	// thresholds, not measured statistics.
	Integrity IntegrityConfig `yaml:"integrity"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"orbis"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"integrity_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// EmbeddingsConfig holds the OpenAI-compatible embeddings endpoint used by
// the semantic similarity provider. Suggestion generation is best-effort, so
// a missing endpoint disables semantic suggestions without failing startup.
type EmbeddingsConfig struct {
	Endpoint       string `yaml:"endpoint" env:"EMBEDDINGS_ENDPOINT" env-default:""`
	Model          string `yaml:"model" env:"EMBEDDINGS_MODEL" env-default:"text-embedding-3-small"`
	APIKey         string `yaml:"-" env:"EMBEDDINGS_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"EMBEDDINGS_TIMEOUT_SECONDS" env-default:"10"`
}

// IsAvailable returns true if an embeddings endpoint is configured.
func (c *EmbeddingsConfig) IsAvailable() bool {
	return c.Endpoint != ""
}

// Timeout returns the per-call provider timeout.
func (c *EmbeddingsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IntegrityConfig holds the scan and suggestion heuristics.
type IntegrityConfig struct {
	// Semantic search thresholds per issue type.
	PhaseSearchThreshold float64 `yaml:"phase_search_threshold" env:"PHASE_SEARCH_THRESHOLD" env-default:"0.6"`
	StepSearchThreshold  float64 `yaml:"step_search_threshold" env:"STEP_SEARCH_THRESHOLD" env-default:"0.7"`
	LogSearchThreshold   float64 `yaml:"log_search_threshold" env:"LOG_SEARCH_THRESHOLD" env-default:"0.5"`

	// SearchLimit caps candidates pulled from the similarity provider.
	SearchLimit int `yaml:"search_limit" env:"SEARCH_LIMIT" env-default:"10"`

	// MaxSuggestions caps ranked suggestions attached to each issue.
	MaxSuggestions int `yaml:"max_suggestions" env:"MAX_SUGGESTIONS" env-default:"5"`

	// Fixed pattern-match confidences.
	CaseFixConfidence         float64 `yaml:"case_fix_confidence" env:"CASE_FIX_CONFIDENCE" env-default:"0.9"`
	AnchorNormalizeConfidence float64 `yaml:"anchor_normalize_confidence" env:"ANCHOR_NORMALIZE_CONFIDENCE" env-default:"0.8"`
	AnchorSubstringConfidence float64 `yaml:"anchor_substring_confidence" env:"ANCHOR_SUBSTRING_CONFIDENCE" env-default:"0.7"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom reads configuration from the given YAML path. Exposed for tests.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		// No YAML file; environment variables and defaults only.
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Integrity.MaxSuggestions <= 0 {
		return fmt.Errorf("max_suggestions must be positive, got %d", c.Integrity.MaxSuggestions)
	}
	if c.Integrity.SearchLimit <= 0 {
		return fmt.Errorf("search_limit must be positive, got %d", c.Integrity.SearchLimit)
	}
	for name, v := range map[string]float64{
		"phase_search_threshold":      c.Integrity.PhaseSearchThreshold,
		"step_search_threshold":       c.Integrity.StepSearchThreshold,
		"log_search_threshold":        c.Integrity.LogSearchThreshold,
		"case_fix_confidence":         c.Integrity.CaseFixConfidence,
		"anchor_normalize_confidence": c.Integrity.AnchorNormalizeConfidence,
		"anchor_substring_confidence": c.Integrity.AnchorSubstringConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
