package ailink

import "time"

// Config defines provider configuration for AILink.
//
// This is intentionally self-contained so it can later be extracted as a
// standalone library configuration subtree.
type Config struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`

	// Providers is a set of provider instances keyed by a user-defined id (slug).
	// Each instance declares its underlying provider type via AIProvider.
	Providers map[string]ProviderInstanceConfig `mapstructure:"providers"`

	// Routing pins a model name to a provider id, ahead of model lists and prefixes.
	Routing map[string]string `mapstructure:"routing"`

	// Pricing overrides or extends the built-in price table, keyed by model.
	Pricing map[string]Price `mapstructure:"pricing"`

	Cache CacheConfig `mapstructure:"cache"`
	Trace TraceConfig `mapstructure:"trace"`
}

// ProviderInstanceConfig defines a configured provider instance (e.g. "work-anthropic").
type ProviderInstanceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// AIProvider is the provider type/driver identifier: "openai", "anthropic",
	// "deepseek", "qwen", "xai" or "openai_compatible".
	AIProvider string `mapstructure:"ai_provider"`

	// SelectionPolicy controls which credential is chosen.
	// Supported values: "priority" (default), "round_robin".
	SelectionPolicy string `mapstructure:"selection_policy"`

	// DefaultCredential, if set, forces selecting the matching credential label.
	// If missing/invalid, selection falls back to SelectionPolicy.
	DefaultCredential string `mapstructure:"default_credential"`

	BaseURL string `mapstructure:"base_url"`

	// Models lists model names served by this instance.
	Models []string `mapstructure:"models"`
	// ModelPrefixes claims every model starting with one of the prefixes.
	ModelPrefixes []string `mapstructure:"model_prefixes"`
	// Aliases maps a model name to the id sent upstream (e.g. a dated snapshot).
	Aliases map[string]string `mapstructure:"aliases"`

	Credentials []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is a single credential for a provider instance.
//
// Multiple credentials enable key rotation, future load balancing, and per-key rate limit handling.
type CredentialConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Label    string `mapstructure:"label"`
	APIKey   string `mapstructure:"api_key"`
	Priority int    `mapstructure:"priority"`
}

// CacheConfig controls the response cache used for deterministic requests.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
	// Persist also writes entries to the store so they survive restarts.
	Persist bool `mapstructure:"persist"`
}

// TraceConfig enables NDJSON request tracing to a rotating file.
type TraceConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}
