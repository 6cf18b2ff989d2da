// Package config provides application configuration with multi-source priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.talq/config.yaml, or ./config.yaml)
//  3. Default values
//
// Categories:
//   - Model: provider model name, agent turn cap
//   - Storage: PostgreSQL connection for sessions, resources and checkpoints
//   - Uploads: directory for stored CSV files, size limit, fetch timeout
//   - Server: HTTP listen address
//   - Observability: OTLP trace endpoint
//
// Sensitive values (the model API key, the Postgres password) are never
// logged. Validation fails fast with sentinel errors checkable via errors.Is.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the model API key is absent from the environment.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxTurns indicates the agent turn cap is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidUploadLimit indicates the upload size limit is out of range.
	ErrInvalidUploadLimit = errors.New("invalid upload size limit")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidUploadsDir indicates the uploads directory is empty.
	ErrInvalidUploadsDir = errors.New("invalid uploads directory")
)

const (
	// DefaultModelName is the model used when none is configured.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultMaxTurns bounds the agent's tool-call loop per execution.
	DefaultMaxTurns = 5

	// DefaultMaxUploadBytes is the upload/fetch size cap (20 MiB).
	DefaultMaxUploadBytes = 20 << 20

	// DefaultFetchTimeoutSeconds bounds URL resource ingestion.
	DefaultFetchTimeoutSeconds = 30

	// DefaultAddr is the HTTP listen address.
	DefaultAddr = "127.0.0.1:3400"
)

// Config stores application configuration.
type Config struct {
	// Model configuration
	Provider  string `mapstructure:"provider"`   // only "googleai" today
	ModelName string `mapstructure:"model_name"` // e.g. "gemini-2.5-flash"
	MaxTurns  int    `mapstructure:"max_turns"`  // agent tool-loop cap per execution

	// HTTP server
	Addr string `mapstructure:"addr"`

	// Uploads / resource ingestion
	UploadsDir          string `mapstructure:"uploads_dir"`
	MaxUploadBytes      int64  `mapstructure:"max_upload_bytes"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds"`

	// PostgreSQL storage
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Observability (empty endpoint = tracing disabled)
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load loads configuration with env > file > defaults priority.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".talq")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, filepath.Join(home, ".talq", "uploads"))
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers all default configuration values.
func setDefaults(v *viper.Viper, uploadsDir string) {
	v.SetDefault("provider", "googleai")
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("max_turns", DefaultMaxTurns)

	v.SetDefault("addr", DefaultAddr)

	v.SetDefault("uploads_dir", uploadsDir)
	v.SetDefault("max_upload_bytes", DefaultMaxUploadBytes)
	v.SetDefault("fetch_timeout_seconds", DefaultFetchTimeoutSeconds)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "talq")
	v.SetDefault("postgres_password", "talq_dev_password")
	v.SetDefault("postgres_db_name", "talq")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("otlp_endpoint", "")
}

// bindEnvVariables binds runtime override variables explicitly.
//
// NOTE: GEMINI_API_KEY is read directly by the Genkit googlegenai plugin, not
// via Viper; Validate only checks its presence.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "TALQ_MODEL_NAME")
	mustBind("addr", "TALQ_ADDR")
	mustBind("uploads_dir", "TALQ_UPLOADS_DIR")
	mustBind("max_upload_bytes", "TALQ_MAX_UPLOAD_BYTES")
	mustBind("postgres_host", "TALQ_POSTGRES_HOST")
	mustBind("postgres_port", "TALQ_POSTGRES_PORT")
	mustBind("postgres_user", "TALQ_POSTGRES_USER")
	mustBind("postgres_password", "TALQ_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "TALQ_POSTGRES_DB")
	mustBind("postgres_ssl_mode", "TALQ_POSTGRES_SSL_MODE")
	mustBind("otlp_endpoint", "TALQ_OTLP_ENDPOINT")
}

// Validate checks configuration invariants. Called by Load; exposed for tests
// and for callers that build a Config by hand.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}
	if c.MaxTurns < 1 || c.MaxTurns > 50 {
		return fmt.Errorf("%w: %d (must be 1-50)", ErrInvalidMaxTurns, c.MaxTurns)
	}
	if c.MaxUploadBytes < 1 || c.MaxUploadBytes > 1<<30 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidUploadLimit, c.MaxUploadBytes)
	}
	if strings.TrimSpace(c.UploadsDir) == "" {
		return ErrInvalidUploadsDir
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	return nil
}

// ValidateAPIKey checks that the model credential is present in the
// environment. Separated from Validate so offline commands (version, resource
// listing) and tests do not require a key.
func (c *Config) ValidateAPIKey() error {
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}

// DatabaseURL assembles the PostgreSQL connection string.
// The password is included here but must never be logged.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}
