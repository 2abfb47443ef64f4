// Package config provides centralized configuration management for daoyoucode.
// It layers built-in defaults, a YAML config file, an optional TOML
// resilience file, environment variables and runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/daoyou-zhang/daoyoucode/internal/appid"
)

// KeyDelimiter separates nested viper keys. Model names such as
// "gpt-3.5-turbo" contain dots, so the default "." cannot be used.
const KeyDelimiter = "::"

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// LoadOptions controls where configuration comes from.
type LoadOptions struct {
	// File is an explicit config file; when empty the XDG paths and ./config are searched.
	File string
	// Overrides are applied last, in order.
	Overrides []map[string]any
}

// Load builds the configuration. It is safe to call multiple times.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	identity, err := appid.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load app identity: %w", err)
	}

	v := NewViper()
	setDefaults(v)

	if err := readConfigFile(v, identity, opts.File); err != nil {
		return nil, err
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs(identity))
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if envOverrides == nil {
		envOverrides = map[string]any{}
	}
	applyAILinkDynamicEnvOverrides(appid.EnvPrefix(identity), envOverrides)

	for _, layer := range append([]map[string]any{envOverrides}, opts.Overrides...) {
		if len(layer) == 0 {
			continue
		}
		if err := v.MergeConfigMap(layer); err != nil {
			return nil, fmt.Errorf("failed to merge config overrides: %w", err)
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if file := strings.TrimSpace(cfg.Resilience.File); file != "" {
		fromFile, err := LoadResilienceFile(file)
		if err != nil {
			return nil, err
		}
		cfg.Resilience = mergeResilience(cfg.Resilience, fromFile)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	return cfg, nil
}

// NewViper returns a viper instance using KeyDelimiter.
func NewViper() *viper.Viper {
	return viper.NewWithOptions(viper.KeyDelimiter(KeyDelimiter))
}

// Decode unmarshals every setting held by v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, identity *appidentity.Identity, file string) error {
	if file = strings.TrimSpace(file); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range configSearchDirs(identity) {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		// It's OK if config file doesn't exist, we have defaults
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configSearchDirs returns XDG config directories, current name first.
func configSearchDirs(identity *appidentity.Identity) []string {
	configName, binaryName := appNamesForPaths(identity)
	legacyNames := []string{}
	if binaryName != configName {
		legacyNames = append(legacyNames, binaryName)
	}

	dirs := []string{}
	for _, path := range gfconfig.GetAppConfigPaths(configName, legacyNames...) {
		dir := path
		if ext := filepath.Ext(path); ext != "" {
			dir = filepath.Dir(path)
		}
		if !containsString(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// ConfigFileUsed reports the config file Load would read, or "" when none exists.
func ConfigFileUsed(ctx context.Context, file string) string {
	if strings.TrimSpace(file) != "" {
		return file
	}
	identity, err := appid.Get(ctx)
	if err != nil {
		return ""
	}
	v := NewViper()
	if err := readConfigFile(v, identity, ""); err != nil {
		return ""
	}
	return v.ConfigFileUsed()
}

func setDefaults(v *viper.Viper) {
	set := func(value any, path ...string) {
		v.SetDefault(strings.Join(path, KeyDelimiter), value)
	}

	set("localhost", "server", "host")
	set(8080, "server", "port")
	set("30s", "server", "read_timeout")
	set("90s", "server", "write_timeout")
	set("120s", "server", "idle_timeout")
	set("10s", "server", "shutdown_timeout")

	set("info", "logging", "level")
	set("SIMPLE", "logging", "profile")

	set("libsql", "store", "driver")
	set("", "store", "url")
	set("", "store", "auth_token")

	set("60s", "ailink", "default_timeout")
	set(false, "ailink", "cache", "enabled")
	set(512, "ailink", "cache", "size")
	set("1h", "ailink", "cache", "ttl")
	set(false, "ailink", "cache", "persist")
	set(50, "ailink", "trace", "max_size_mb")
	set(3, "ailink", "trace", "max_backups")

	set("60s", "executor", "default_timeout")
	set("100ms", "resilience", "poll_interval")
	set(5, "resilience", "breaker", "failure_threshold")
	set("30s", "resilience", "breaker", "cooldown")
	set(2, "resilience", "breaker", "success_threshold")
	set(1, "resilience", "breaker", "half_open_probes")

	set(true, "history", "enabled")
	set(false, "auth", "enabled")

	set(true, "metrics", "enabled")
	set(9090, "metrics", "port")
	set(true, "health", "enabled")
	set(false, "debug", "enabled")
	set(false, "debug", "pprof_enabled")
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs(identity *appidentity.Identity) []EnvVarSpec {
	prefix := appid.EnvPrefix(identity)

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// AILink config
		{Name: prefix + "AILINK_DEFAULT_PROVIDER", Path: []string{"ailink", "default_provider"}, Type: EnvString},
		{Name: prefix + "AILINK_DEFAULT_TIMEOUT", Path: []string{"ailink", "default_timeout"}, Type: EnvString},
		{Name: prefix + "AILINK_CACHE_ENABLED", Path: []string{"ailink", "cache", "enabled"}, Type: EnvBool},
		{Name: prefix + "AILINK_CACHE_TTL", Path: []string{"ailink", "cache", "ttl"}, Type: EnvString},
		{Name: prefix + "AILINK_CACHE_PERSIST", Path: []string{"ailink", "cache", "persist"}, Type: EnvBool},
		{Name: prefix + "AILINK_TRACE_PATH", Path: []string{"ailink", "trace", "path"}, Type: EnvString},

		// Resilience and execution
		{Name: prefix + "RESILIENCE_FILE", Path: []string{"resilience", "file"}, Type: EnvString},
		{Name: prefix + "EXECUTOR_DEFAULT_TIMEOUT", Path: []string{"executor", "default_timeout"}, Type: EnvString},
		{Name: prefix + "SKILLS_DIR", Path: []string{"skills", "dir"}, Type: EnvString},
		{Name: prefix + "HISTORY_ENABLED", Path: []string{"history", "enabled"}, Type: EnvBool},

		// Auth config
		{Name: prefix + "AUTH_ENABLED", Path: []string{"auth", "enabled"}, Type: EnvBool},
		{Name: prefix + "AUTH_SECRET", Path: []string{"auth", "secret"}, Type: EnvString},
		{Name: prefix + "AUTH_ISSUER", Path: []string{"auth", "issuer"}, Type: EnvString},
		{Name: prefix + "AUTH_AUDIENCE", Path: []string{"auth", "audience"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_PPROF_ENABLED", Path: []string{"debug", "pprof_enabled"}, Type: EnvBool},
	}
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "daoyoucode" if not set.
func appNamesForPaths(identity *appidentity.Identity) (configName string, binaryName string) {
	configName = "daoyoucode"
	binaryName = "daoyoucode"
	if identity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(identity.ConfigName) != "" {
		configName = identity.ConfigName
	}
	if strings.TrimSpace(identity.BinaryName) != "" {
		binaryName = identity.BinaryName
	}
	return configName, binaryName
}

func currentIdentity() *appidentity.Identity {
	identity, err := appid.Get(context.Background())
	if err != nil {
		return nil
	}
	return identity
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths(currentIdentity())
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	configName, _ := appNamesForPaths(currentIdentity())
	return gfconfig.GetAppDataDir(configName)
}

// DefaultCacheDir returns the XDG-compliant cache directory for the app.
func DefaultCacheDir() string {
	configName, _ := appNamesForPaths(currentIdentity())
	return gfconfig.GetAppCacheDir(configName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths(currentIdentity())
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}

func applyAILinkDynamicEnvOverrides(prefix string, envOverrides map[string]any) {
	providerPrefix := prefix + "AILINK_PROVIDERS_"
	routingPrefix := prefix + "AILINK_ROUTING_"

	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}

		switch {
		case strings.HasPrefix(key, providerPrefix):
			applyAILinkProviderOverride(envOverrides, key[len(providerPrefix):], value)
		case strings.HasPrefix(key, routingPrefix):
			applyAILinkRoutingOverride(envOverrides, key[len(routingPrefix):], value)
		}
	}
}

// applyAILinkRoutingOverride pins a model to a provider. Underscores in the
// variable name become hyphens: ROUTING_CLAUDE_3_OPUS targets "claude-3-opus".
func applyAILinkRoutingOverride(envOverrides map[string]any, rawModel string, providerID string) {
	model := toSlug(rawModel)
	providerID = strings.TrimSpace(providerID)
	if model == "" || providerID == "" {
		return
	}

	ailink := ensureMap(envOverrides, "ailink")
	routing := ensureMap(ailink, "routing")
	routing[model] = providerID
}

var providerSections = map[string]bool{
	"ENABLED":     true,
	"AI":          true,
	"BASE":        true,
	"MODELS":      true,
	"MODEL":       true,
	"SELECTION":   true,
	"DEFAULT":     true,
	"CREDENTIALS": true,
}

func applyAILinkProviderOverride(envOverrides map[string]any, raw string, value string) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) < 2 {
		return
	}

	section := -1
	for i, part := range parts {
		if i > 0 && providerSections[part] {
			section = i
			break
		}
	}
	if section <= 0 {
		return
	}

	providerID := strings.ToLower(strings.Join(parts[:section], "-"))
	if providerID == "" {
		return
	}

	ailink := ensureMap(envOverrides, "ailink")
	providers := ensureMap(ailink, "providers")
	provider := ensureMap(providers, providerID)

	rest := parts[section:]
	switch {
	case len(rest) == 1 && rest[0] == "ENABLED":
		provider["enabled"] = strings.EqualFold(strings.TrimSpace(value), "true")
	case len(rest) == 2 && rest[0] == "AI" && rest[1] == "PROVIDER":
		provider["ai_provider"] = strings.ToLower(strings.TrimSpace(value))
	case len(rest) == 2 && rest[0] == "DEFAULT" && rest[1] == "CREDENTIAL":
		provider["default_credential"] = strings.TrimSpace(value)
	case len(rest) == 2 && rest[0] == "SELECTION" && rest[1] == "POLICY":
		provider["selection_policy"] = strings.ToLower(strings.TrimSpace(value))
	case len(rest) == 2 && rest[0] == "BASE" && rest[1] == "URL":
		provider["base_url"] = strings.TrimSpace(value)
	case len(rest) == 1 && rest[0] == "MODELS":
		provider["models"] = splitList(value)
	case len(rest) == 2 && rest[0] == "MODEL" && rest[1] == "PREFIXES":
		provider["model_prefixes"] = splitList(value)
	case len(rest) >= 3 && rest[0] == "CREDENTIALS":
		idx, err := strconv.Atoi(rest[1])
		if err != nil || idx < 0 {
			return
		}
		field := strings.ToLower(strings.Join(rest[2:], "_"))
		if field == "" {
			return
		}

		creds := ensureSlice(provider, "credentials", idx+1)
		cred := ensureSliceMap(creds, idx)
		if field == "priority" {
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				cred[field] = parsed
			} else {
				cred[field] = strings.TrimSpace(value)
			}
			return
		}
		if field == "enabled" {
			cred[field] = strings.EqualFold(strings.TrimSpace(value), "true")
			return
		}
		cred[field] = strings.TrimSpace(value)
	}
}

func splitList(value string) []any {
	items := []any{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

func ensureSlice(parent map[string]any, key string, length int) []any {
	var existing []any
	if raw, ok := parent[key]; ok {
		existing, _ = raw.([]any)
	}
	for len(existing) < length {
		existing = append(existing, map[string]any{})
	}
	parent[key] = existing
	return existing
}

func ensureSliceMap(slice []any, idx int) map[string]any {
	if idx < 0 || idx >= len(slice) {
		return map[string]any{}
	}
	if typed, ok := slice[idx].(map[string]any); ok {
		return typed
	}
	m := map[string]any{}
	slice[idx] = m
	return m
}

func toSlug(raw string) string {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" {
			continue
		}
		clean = append(clean, p)
	}
	return strings.Join(clean, "-")
}

func containsString(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}
