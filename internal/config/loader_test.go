package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps a developer's own config and data directories out of the test.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)

		cfg, err := Load(ctx, LoadOptions{})
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("daoyoucode"), "daoyoucode.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)

		// Verify ailink defaults
		assert.Equal(t, 60*time.Second, cfg.AILink.DefaultTimeout)
		assert.False(t, cfg.AILink.Cache.Enabled)
		assert.Equal(t, 512, cfg.AILink.Cache.Size)
		assert.Equal(t, time.Hour, cfg.AILink.Cache.TTL)

		// Verify resilience defaults
		assert.Equal(t, 100*time.Millisecond, cfg.Resilience.PollInterval)
		assert.Equal(t, 5, cfg.Resilience.Breaker.FailureThreshold)
		assert.Equal(t, 30*time.Second, cfg.Resilience.Breaker.Cooldown)
		assert.Equal(t, 2, cfg.Resilience.Breaker.SuccessThreshold)
		assert.Equal(t, 1, cfg.Resilience.Breaker.HalfOpenProbes)
		assert.Nil(t, cfg.Resilience.RateLimits.Global)

		assert.Equal(t, 60*time.Second, cfg.Executor.DefaultTimeout)
		assert.True(t, cfg.History.Enabled)
		assert.False(t, cfg.Auth.Enabled)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "SIMPLE", cfg.Logging.Profile)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)
		assert.False(t, cfg.Debug.Enabled)
		assert.False(t, cfg.Debug.PprofEnabled)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, LoadOptions{Overrides: []map[string]any{overrides}})
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// Verify non-overridden values remain default
		assert.Equal(t, "SIMPLE", cfg.Logging.Profile)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("DAOYOUCODE_PORT", "3000")
		t.Setenv("DAOYOUCODE_LOG_LEVEL", "warn")
		t.Setenv("DAOYOUCODE_METRICS_ENABLED", "false")
		t.Setenv("DAOYOUCODE_AILINK_CACHE_ENABLED", "true")
		t.Setenv("DAOYOUCODE_AUTH_SECRET", "s3cret")
		t.Setenv("DAOYOUCODE_EXECUTOR_DEFAULT_TIMEOUT", "2m")

		cfg, err := Load(ctx, LoadOptions{})
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.True(t, cfg.AILink.Cache.Enabled)
		assert.Equal(t, "s3cret", cfg.Auth.Secret)
		assert.Equal(t, 2*time.Minute, cfg.Executor.DefaultTimeout)
	})

	// runtime > env > defaults
	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("DAOYOUCODE_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{
				"port": 5000,
			},
		}

		cfg, err := Load(ctx, LoadOptions{Overrides: []map[string]any{overrides}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		isolate(t)
		_, err := Load(ctx, LoadOptions{File: filepath.Join(t.TempDir(), "absent.yaml")})
		require.Error(t, err)
	})
}

func TestLoadYAMLWithDottedModelNames(t *testing.T) {
	isolate(t)
	path := writeFile(t, "config.yaml", `
ailink:
  default_provider: openai
  routing:
    gpt-3.5-turbo: openai
  providers:
    openai:
      enabled: true
      ai_provider: openai
      models: [gpt-4o, gpt-3.5-turbo]
      credentials:
        - label: default
          api_key: sk-test
          enabled: true
resilience:
  rate_limits:
    global:
      capacity: 100
      refill_rate: 10
    models:
      gpt-3.5-turbo:
        window_size: 1m
        max_requests: 60
  fallbacks:
    gpt-3.5-turbo: [gpt-4o-mini]
  poll_interval: 25ms
`)

	cfg, err := Load(context.Background(), LoadOptions{File: path})
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.AILink.Routing["gpt-3.5-turbo"])
	provider := cfg.AILink.Providers["openai"]
	assert.True(t, provider.Enabled)
	assert.Equal(t, []string{"gpt-4o", "gpt-3.5-turbo"}, provider.Models)
	require.Len(t, provider.Credentials, 1)
	assert.Equal(t, "sk-test", provider.Credentials[0].APIKey)

	require.NotNil(t, cfg.Resilience.RateLimits.Global)
	assert.Equal(t, 100, cfg.Resilience.RateLimits.Global.Capacity)
	window := cfg.Resilience.RateLimits.Models["gpt-3.5-turbo"]
	assert.Equal(t, time.Minute, window.WindowSize)
	assert.Equal(t, 60, window.MaxRequests)
	assert.Equal(t, []string{"gpt-4o-mini"}, cfg.Resilience.Fallbacks["gpt-3.5-turbo"])
	assert.Equal(t, 25*time.Millisecond, cfg.Resilience.PollInterval)

	// Defaults survive alongside the file.
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadResilienceFile(t *testing.T) {
	isolate(t)
	tomlPath := writeFile(t, "resilience.toml", `
poll_interval = "50ms"

[rate_limits.user]
capacity = 5
refill_rate = 0.5

[rate_limits.users.OpsTeam]
capacity = 50
refill_rate = 5

[rate_limits.models."claude-3-opus"]
window_size = "1m"
max_requests = 20

[fallbacks]
"claude-3-opus" = ["claude-3-5-sonnet", "gpt-4o"]

[breaker]
failure_threshold = 3
cooldown = "10s"
`)
	t.Setenv("DAOYOUCODE_RESILIENCE_FILE", tomlPath)

	cfg, err := Load(context.Background(), LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, tomlPath, cfg.Resilience.File)
	assert.Equal(t, 50*time.Millisecond, cfg.Resilience.PollInterval)
	require.NotNil(t, cfg.Resilience.RateLimits.User)
	assert.Equal(t, 0.5, cfg.Resilience.RateLimits.User.RefillRate)
	// TOML keys keep their case.
	assert.Equal(t, 50, cfg.Resilience.RateLimits.Users["OpsTeam"].Capacity)
	assert.Equal(t, time.Minute, cfg.Resilience.RateLimits.Models["claude-3-opus"].WindowSize)
	assert.Equal(t, []string{"claude-3-5-sonnet", "gpt-4o"}, cfg.Resilience.Fallbacks["claude-3-opus"])

	assert.Equal(t, 3, cfg.Resilience.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Resilience.Breaker.Cooldown)
	// Unset breaker fields keep their defaults.
	assert.Equal(t, 2, cfg.Resilience.Breaker.SuccessThreshold)
}

func TestLoadResilienceFileRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "resilience.toml", `
[breaker]
failure_treshold = 3
`)
	_, err := LoadResilienceFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_treshold")
}

func TestAILinkDynamicEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("DAOYOUCODE_AILINK_PROVIDERS_DEEPSEEK_PRIMARY_ENABLED", "true")
	t.Setenv("DAOYOUCODE_AILINK_PROVIDERS_DEEPSEEK_PRIMARY_AI_PROVIDER", "DeepSeek")
	t.Setenv("DAOYOUCODE_AILINK_PROVIDERS_DEEPSEEK_PRIMARY_MODELS", "deepseek-chat, deepseek-reasoner")
	t.Setenv("DAOYOUCODE_AILINK_PROVIDERS_DEEPSEEK_PRIMARY_MODEL_PREFIXES", "deepseek")
	t.Setenv("DAOYOUCODE_AILINK_PROVIDERS_DEEPSEEK_PRIMARY_SELECTION_POLICY", "round_robin")
	t.Setenv("DAOYOUCODE_AILINK_PROVIDERS_DEEPSEEK_PRIMARY_CREDENTIALS_0_API_KEY", "sk-one")
	t.Setenv("DAOYOUCODE_AILINK_PROVIDERS_DEEPSEEK_PRIMARY_CREDENTIALS_0_PRIORITY", "2")
	t.Setenv("DAOYOUCODE_AILINK_ROUTING_CLAUDE_3_OPUS", "anthropic")

	cfg, err := Load(context.Background(), LoadOptions{})
	require.NoError(t, err)

	provider, ok := cfg.AILink.Providers["deepseek-primary"]
	require.True(t, ok)
	assert.True(t, provider.Enabled)
	assert.Equal(t, "deepseek", provider.AIProvider)
	assert.Equal(t, "round_robin", provider.SelectionPolicy)
	assert.Equal(t, []string{"deepseek-chat", "deepseek-reasoner"}, provider.Models)
	assert.Equal(t, []string{"deepseek"}, provider.ModelPrefixes)
	require.Len(t, provider.Credentials, 1)
	assert.Equal(t, "sk-one", provider.Credentials[0].APIKey)
	assert.Equal(t, 2, provider.Credentials[0].Priority)

	assert.Equal(t, "anthropic", cfg.AILink.Routing["claude-3-opus"])
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs(nil)
	assert.NotEmpty(t, specs)

	envVarNames := make(map[string]bool)
	for _, spec := range specs {
		envVarNames[spec.Name] = true
	}

	assert.True(t, envVarNames["DAOYOUCODE_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["DAOYOUCODE_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["DAOYOUCODE_HOST"], "HOST env var must be mapped")
	assert.True(t, envVarNames["DAOYOUCODE_METRICS_PORT"], "METRICS_PORT env var must be mapped")
	assert.True(t, envVarNames["DAOYOUCODE_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, envVarNames["DAOYOUCODE_RESILIENCE_FILE"], "RESILIENCE_FILE env var must be mapped")
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("DAOYOUCODE_READ_TIMEOUT", "45s")
	t.Setenv("DAOYOUCODE_SHUTDOWN_TIMEOUT", "5m")

	cfg, err := Load(context.Background(), LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
}

func TestToSlug(t *testing.T) {
	assert.Equal(t, "claude-3-opus", toSlug("CLAUDE_3_OPUS"))
	assert.Equal(t, "gpt-4o", toSlug("_GPT__4O_"))
	assert.Equal(t, "", toSlug(""))
}
