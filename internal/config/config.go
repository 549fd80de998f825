package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// NL-to-SQL generation.
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string // override for tests / proxies; empty means the public API

	// Query execution.
	TinybirdToken string
	TinybirdHost  string
	QueryTimeout  time.Duration

	// Schema source.
	SchemaDir  string
	SchemaName string

	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport          string // "http" (default) or "stdio" (MCP)
	HTTPAddr           string // listen address for HTTP transport (default ":8000")
	RateLimitPerMinute int    // POST /query calls per client IP; 0 disables

	// Observability.
	OTelEnabled bool   // enable OpenTelemetry tracing and metrics
	AuditLog    string // path to NDJSON audit log file
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	OpenAIModel        *string
	TinybirdHost       *string
	QueryTimeout       *time.Duration
	SchemaDir          *string
	SchemaName         *string
	LogLevel           *string
	Transport          *string
	HTTPAddr           *string
	RateLimitPerMinute *int
	OTelEnabled        bool
	AuditLog           string
}

// Load builds a Config from environment variables, then applies CLI overrides,
// then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        "gpt-5",
		TinybirdToken:      os.Getenv("TINYBIRD_TOKEN"),
		TinybirdHost:       "https://api.tinybird.co",
		QueryTimeout:       30 * time.Second,
		SchemaDir:          "schemas",
		SchemaName:         "trips",
		Transport:          "http",
		HTTPAddr:           ":8000",
		RateLimitPerMinute: 10,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")

	if v := os.Getenv("TINYBIRD_HOST"); v != "" {
		cfg.TinybirdHost = v
	}

	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT value %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("SCHEMA_DIR"); v != "" {
		cfg.SchemaDir = v
	}
	if v := os.Getenv("SCHEMA_NAME"); v != "" {
		cfg.SchemaName = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE value %q: must be a non-negative integer", v)
		}
		cfg.RateLimitPerMinute = n
	}

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	cfg.AuditLog = os.Getenv("AUDIT_LOG")

	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.OpenAIModel != nil {
		cfg.OpenAIModel = *o.OpenAIModel
	}
	if o.TinybirdHost != nil {
		cfg.TinybirdHost = *o.TinybirdHost
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}
	if o.SchemaDir != nil {
		cfg.SchemaDir = *o.SchemaDir
	}
	if o.SchemaName != nil {
		cfg.SchemaName = *o.SchemaName
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	if o.RateLimitPerMinute != nil {
		if *o.RateLimitPerMinute < 0 {
			return fmt.Errorf("invalid --rate-limit value: must be a non-negative integer")
		}
		cfg.RateLimitPerMinute = *o.RateLimitPerMinute
	}

	if o.AuditLog != "" {
		cfg.AuditLog = o.AuditLog
	}
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.TinybirdToken == "" {
		return fmt.Errorf("TINYBIRD_TOKEN is required")
	}
	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive")
	}

	switch cfg.Transport {
	case "http", "stdio":
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"http\" or \"stdio\"", cfg.Transport)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
