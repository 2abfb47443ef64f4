package config

import (
	"time"

	"github.com/daoyou-zhang/daoyoucode/internal/ailink"
	"github.com/daoyou-zhang/daoyoucode/internal/core/breaker"
	"github.com/daoyou-zhang/daoyoucode/internal/core/ratelimit"
)

// Config represents the complete application configuration.
// Precedence, lowest first: built-in defaults, the config file
// ($XDG_CONFIG_HOME/daoyoucode/config.yaml or ./config), the optional TOML
// resilience file, environment variables, runtime overrides.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	AILink     ailink.Config    `mapstructure:"ailink"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Skills     SkillsConfig     `mapstructure:"skills"`
	Auth       AuthConfig       `mapstructure:"auth"`
	History    HistoryConfig    `mapstructure:"history"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
	Debug      DebugConfig      `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// ResilienceConfig holds admission control, fallback and breaker settings.
//
// File points at a TOML document with the same shape; tables it defines
// replace the ones loaded from YAML. TOML keeps user ids and model names
// case-sensitive.
type ResilienceConfig struct {
	File         string              `mapstructure:"file" toml:"-"`
	RateLimits   ratelimit.Config    `mapstructure:"rate_limits" toml:"rate_limits"`
	Fallbacks    map[string][]string `mapstructure:"fallbacks" toml:"fallbacks"`
	Tiers        map[string]string   `mapstructure:"tiers" toml:"tiers"`
	Breaker      breaker.Config      `mapstructure:"breaker" toml:"breaker"`
	PollInterval time.Duration       `mapstructure:"poll_interval" toml:"poll_interval"`
}

// ExecutorConfig tunes the skill executor.
type ExecutorConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// SkillsConfig locates skill definitions in addition to the built-in set.
type SkillsConfig struct {
	Dir string `mapstructure:"dir"`
}

// AuthConfig enables bearer-token authentication on the HTTP API.
// The token subject becomes the user id for per-user rate limits.
type AuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

// HistoryConfig controls persistence of execution records.
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles per Fulmen Forge Workhorse Standard:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
// - ENTERPRISE: Multiple sinks, middleware, throttling, policy enforcement (production)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	// Metrics are also available at the main HTTP port in JSON format
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
