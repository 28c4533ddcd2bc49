// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (prefix ANSWERDESK_, runtime override)
//  2. Config file (~/.answerdesk/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generation model, embedder model
//   - Pipeline: retrieval/dedup similarity thresholds, retrieval limit
//   - Storage: PostgreSQL connection (see storage.go)
//   - Server: listen address, API token, rate limits
//   - Observability: optional OTLP trace export
//
// Security: sensitive values (password, API token) are masked in
// MarshalJSON and never logged.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidThreshold indicates a similarity threshold is out of [0, 1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidRetrievalLimit indicates the retrieval limit is out of range.
	ErrInvalidRetrievalLimit = errors.New("invalid retrieval limit")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingAPIToken indicates the serve-mode API token is not set.
	ErrMissingAPIToken = errors.New("missing API token")
)

const (
	// DefaultModelName is the default Gemini generation model.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation to 768 via OutputDimensionality; the pgvector schema uses
	// 768 (see knowledge.VectorDimension).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultRetrievalThreshold is the minimum cosine similarity for a
	// knowledge entry to count as a retrieval match. Tuned per deployment;
	// earlier deployments ran 0.70 and 0.60.
	DefaultRetrievalThreshold = 0.50

	// DefaultDedupThreshold is the cosine similarity above which a pending
	// review-queue question is considered a duplicate.
	DefaultDedupThreshold = 0.85

	// DefaultRetrievalLimit caps the number of knowledge matches per question.
	DefaultRetrievalLimit = 5
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// AI model configuration
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Pipeline tuning. Both thresholds are deployment-tuned, not constants.
	RetrievalThreshold float64 `mapstructure:"retrieval_threshold" json:"retrieval_threshold"`
	DedupThreshold     float64 `mapstructure:"dedup_threshold" json:"dedup_threshold"`
	RetrievalLimit     int     `mapstructure:"retrieval_limit" json:"retrieval_limit"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration (serve mode only)
	ServerAddr     string  `mapstructure:"server_addr" json:"server_addr"`
	APIToken       string  `mapstructure:"api_token" json:"api_token"` // SENSITIVE: masked in MarshalJSON
	TrustProxy     bool    `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Observability configuration
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig configures optional OTLP trace export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // OTLP HTTP endpoint, e.g. localhost:4318
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// MarshalJSON masks sensitive fields so Config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	a := alias(c)
	if a.PostgresPassword != "" {
		a.PostgresPassword = "***"
	}
	if a.APIToken != "" {
		a.APIToken = "***"
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ANSWERDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("retrieval_threshold", DefaultRetrievalThreshold)
	v.SetDefault("dedup_threshold", DefaultDedupThreshold)
	v.SetDefault("retrieval_limit", DefaultRetrievalLimit)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "answerdesk")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "answerdesk")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("server_addr", "127.0.0.1:3500")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_limit_rps", 1.0)
	v.SetDefault("rate_limit_burst", 10)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.service_name", "answerdesk")
}

// configDir returns the answerdesk config directory (~/.answerdesk),
// creating it with restrictive permissions if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".answerdesk")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}
