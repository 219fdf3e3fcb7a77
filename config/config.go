// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Schema   SchemaConfig   `yaml:"schema"`
	Output   OutputConfig   `yaml:"output"`
	Export   ExportConfig   `yaml:"export"`
	Check    CheckConfig    `yaml:"check"`
	Watch    WatchConfig    `yaml:"watch"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	OpenAPI  OpenAPIConfig  `yaml:"openapi"`
}

// SchemaConfig locates the canonical schema documents.
type SchemaConfig struct {
	Dir string `yaml:"dir"`
}

// OutputConfig configures where generated files go.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Layout string `yaml:"layout"` // "per-type" or "single"
}

// ExportConfig configures declaration rendering.
type ExportConfig struct {
	Target   string `yaml:"target"`   // "typescript"
	Optional string `yaml:"optional"` // "question" or "undefined"
	Integers string `yaml:"integers"` // "number", "bigint" or "string"
	Workers  int    `yaml:"workers"`  // 0 = GOMAXPROCS
}

// CheckConfig configures the consistency checker.
type CheckConfig struct {
	Policy         string `yaml:"policy"` // path to the union policy file
	FailOnBreaking bool   `yaml:"fail_on_breaking"`
	Runs           int    `yaml:"determinism_runs"`
}

// WatchConfig configures schema directory watching.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// DatabaseConfig configures the published snapshot store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "console" or "auto"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // Enable /metrics endpoint
	Path    string `yaml:"path"`    // Custom path (default: /metrics)
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled"` // Enable /swagger endpoints
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables
// and defaults.
//
// Environment variables:
//
//	SCHEMAGATE_SCHEMA_DIR          - Schema directory (default: schemas)
//	SCHEMAGATE_OUTPUT_DIR          - Output directory (default: bindings)
//	SCHEMAGATE_OUTPUT_LAYOUT       - per-type or single (default: per-type)
//	SCHEMAGATE_EXPORT_OPTIONAL     - question or undefined (default: question)
//	SCHEMAGATE_EXPORT_INTEGERS     - number, bigint or string (default: number)
//	SCHEMAGATE_EXPORT_WORKERS      - Parallel export workers (default: GOMAXPROCS)
//	SCHEMAGATE_CHECK_POLICY        - Union policy file
//	SCHEMAGATE_CHECK_FAIL_ON_BREAKING - Exit non-zero on breaking changes
//	SCHEMAGATE_DATABASE_DRIVER     - sqlite or memory (default: sqlite)
//	SCHEMAGATE_DATABASE_DSN        - Database path (default: schemagate.db)
//	SCHEMAGATE_SERVER_HOST         - Server host (default: 0.0.0.0)
//	SCHEMAGATE_SERVER_PORT         - Server port (default: 8080)
//	SCHEMAGATE_LOG_LEVEL           - debug, info, warn, error (default: info)
//	SCHEMAGATE_LOG_FORMAT          - json or console (default: console)
//	SCHEMAGATE_METRICS_ENABLED     - Enable /metrics endpoint (default: true)
//	SCHEMAGATE_OPENAPI_ENABLED     - Enable /swagger (default: true)
func LoadFromEnv() (*Config, error) {
	cfg := Config{
		Metrics: MetricsConfig{Enabled: true},
		OpenAPI: OpenAPIConfig{Enabled: true},
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads from file when it exists and otherwise from the
// environment and defaults.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies SCHEMAGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Schema and output
	if v := os.Getenv("SCHEMAGATE_SCHEMA_DIR"); v != "" {
		cfg.Schema.Dir = v
	}
	if v := os.Getenv("SCHEMAGATE_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("SCHEMAGATE_OUTPUT_LAYOUT"); v != "" {
		cfg.Output.Layout = v
	}

	// Export
	if v := os.Getenv("SCHEMAGATE_EXPORT_TARGET"); v != "" {
		cfg.Export.Target = v
	}
	if v := os.Getenv("SCHEMAGATE_EXPORT_OPTIONAL"); v != "" {
		cfg.Export.Optional = v
	}
	if v := os.Getenv("SCHEMAGATE_EXPORT_INTEGERS"); v != "" {
		cfg.Export.Integers = v
	}
	if v := os.Getenv("SCHEMAGATE_EXPORT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Export.Workers = n
		}
	}

	// Check
	if v := os.Getenv("SCHEMAGATE_CHECK_POLICY"); v != "" {
		cfg.Check.Policy = v
	}
	if v := os.Getenv("SCHEMAGATE_CHECK_FAIL_ON_BREAKING"); v != "" {
		cfg.Check.FailOnBreaking = parseBool(v)
	}

	// Watch
	if v := os.Getenv("SCHEMAGATE_WATCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Watch.Debounce = d
		}
	}

	// Database configuration
	if v := os.Getenv("SCHEMAGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SCHEMAGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Server configuration
	if v := os.Getenv("SCHEMAGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SCHEMAGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SCHEMAGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("SCHEMAGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Logging configuration
	if v := os.Getenv("SCHEMAGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCHEMAGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("SCHEMAGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("SCHEMAGATE_METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}

	// OpenAPI configuration
	if v := os.Getenv("SCHEMAGATE_OPENAPI_ENABLED"); v != "" {
		cfg.OpenAPI.Enabled = parseBool(v)
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Schema.Dir == "" {
		cfg.Schema.Dir = "schemas"
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "bindings"
	}
	if cfg.Output.Layout == "" {
		cfg.Output.Layout = "per-type"
	}

	if cfg.Export.Target == "" {
		cfg.Export.Target = "typescript"
	}
	if cfg.Export.Optional == "" {
		cfg.Export.Optional = "question"
	}
	if cfg.Export.Integers == "" {
		cfg.Export.Integers = "number"
	}

	if cfg.Check.Runs == 0 {
		cfg.Check.Runs = 3
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 200 * time.Millisecond
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "schemagate.db"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "auto"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	validLayouts := map[string]bool{"per-type": true, "single": true}
	if !validLayouts[cfg.Output.Layout] {
		return fmt.Errorf("output.layout must be 'per-type' or 'single', got %q", cfg.Output.Layout)
	}

	if cfg.Export.Target != "typescript" {
		return fmt.Errorf("export.target must be 'typescript', got %q", cfg.Export.Target)
	}

	validOptional := map[string]bool{"question": true, "undefined": true}
	if !validOptional[cfg.Export.Optional] {
		return fmt.Errorf("export.optional must be 'question' or 'undefined', got %q", cfg.Export.Optional)
	}

	validIntegers := map[string]bool{"number": true, "bigint": true, "string": true}
	if !validIntegers[cfg.Export.Integers] {
		return fmt.Errorf("export.integers must be one of: number, bigint, string")
	}

	if cfg.Export.Workers < 0 {
		return fmt.Errorf("export.workers must not be negative")
	}

	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		return fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"json": true, "console": true, "auto": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be 'json', 'console' or 'auto', got %q", cfg.Logging.Format)
	}

	return nil
}
