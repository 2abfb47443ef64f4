package ailink

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/ailink/driver/anthropic"
	"github.com/daoyou-zhang/daoyoucode/internal/ailink/driver/openai"
)

func testProviders() Config {
	return Config{
		Providers: map[string]ProviderInstanceConfig{
			"claude": {
				Enabled:       true,
				AIProvider:    "anthropic",
				ModelPrefixes: []string{"claude-"},
				Aliases:       map[string]string{"claude-3-5-sonnet": "claude-3-5-sonnet-20241022"},
				Credentials:   []CredentialConfig{{Enabled: true, Label: "main", APIKey: "sk-ant"}},
			},
			"oai": {
				Enabled:       true,
				AIProvider:    "openai",
				ModelPrefixes: []string{"gpt-"},
				Credentials:   []CredentialConfig{{Enabled: true, APIKey: "sk-oai"}},
			},
			"mini": {
				Enabled:       true,
				AIProvider:    "openai_compatible",
				BaseURL:       "http://localhost:8080/v1",
				ModelPrefixes: []string{"gpt-4o-mini"},
				Credentials:   []CredentialConfig{{Enabled: true, APIKey: "local"}},
			},
			"ds": {
				Enabled:     true,
				AIProvider:  "deepseek",
				Models:      []string{"deepseek-chat", "deepseek-reasoner"},
				Credentials: []CredentialConfig{{Enabled: true, APIKey: "sk-ds"}},
			},
			"off": {
				Enabled:     false,
				AIProvider:  "openai",
				Models:      []string{"gpt-4o"},
				Credentials: []CredentialConfig{{Enabled: true, APIKey: "x"}},
			},
		},
	}
}

func TestResolveByPrefixAndAlias(t *testing.T) {
	reg := NewRegistry(testProviders())

	resolved, err := reg.Resolve("claude-3-5-sonnet")
	require.NoError(t, err)
	require.Equal(t, "claude", resolved.ProviderID)
	require.Equal(t, "claude-3-5-sonnet-20241022", resolved.Model)
	_, ok := resolved.Driver.(*anthropic.Client)
	require.True(t, ok)

	resolved, err = reg.Resolve("claude-3-5-haiku")
	require.NoError(t, err)
	require.Equal(t, "claude-3-5-haiku", resolved.Model)
}

func TestResolvePrefersLongestPrefix(t *testing.T) {
	reg := NewRegistry(testProviders())

	resolved, err := reg.Resolve("gpt-4o-mini")
	require.NoError(t, err)
	require.Equal(t, "mini", resolved.ProviderID)
	require.Equal(t, "http://localhost:8080/v1", resolved.BaseURL)

	resolved, err = reg.Resolve("gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "oai", resolved.ProviderID, "disabled instances are skipped")
	client, ok := resolved.Driver.(*openai.Client)
	require.True(t, ok)
	require.Equal(t, "https://api.openai.com/v1", client.BaseURL)
}

func TestResolveExplicitModelsAndRouting(t *testing.T) {
	cfg := testProviders()
	cfg.Routing = map[string]string{"gpt-4-turbo": "ds"}
	reg := NewRegistry(cfg)

	resolved, err := reg.Resolve("deepseek-reasoner")
	require.NoError(t, err)
	require.Equal(t, "ds", resolved.ProviderID)
	require.Equal(t, "https://api.deepseek.com/v1", resolved.BaseURL)
	require.Equal(t, "deepseek", resolved.Driver.Name())

	resolved, err = reg.Resolve("gpt-4-turbo")
	require.NoError(t, err)
	require.Equal(t, "ds", resolved.ProviderID)

	cfg.Routing = map[string]string{"gpt-4o": "off"}
	_, err = NewRegistry(cfg).Resolve("gpt-4o")
	require.ErrorContains(t, err, "disabled")
}

func TestResolveUnknownModel(t *testing.T) {
	reg := NewRegistry(testProviders())
	_, err := reg.Resolve("mistral-large")
	require.ErrorContains(t, err, "no provider routing")

	cfg := testProviders()
	cfg.DefaultProvider = "oai"
	resolved, err := NewRegistry(cfg).Resolve("mistral-large")
	require.NoError(t, err)
	require.Equal(t, "oai", resolved.ProviderID)

	_, err = reg.Resolve(" ")
	require.Error(t, err)
}

func TestResolveSingleProviderCatchesAll(t *testing.T) {
	reg := NewRegistry(Config{Providers: map[string]ProviderInstanceConfig{
		"only": {Enabled: true, AIProvider: "qwen", Credentials: []CredentialConfig{{APIKey: "k"}}},
	}})
	resolved, err := reg.Resolve("qwen-max")
	require.NoError(t, err)
	require.Equal(t, "only", resolved.ProviderID)
}

func TestResolveRejectsUnsupportedProvider(t *testing.T) {
	reg := NewRegistry(Config{Providers: map[string]ProviderInstanceConfig{
		"bad": {Enabled: true, AIProvider: "gemini", Credentials: []CredentialConfig{{APIKey: "k"}}},
	}})
	_, err := reg.Resolve("gemini-pro")
	require.ErrorContains(t, err, "unsupported ai_provider")
}

func TestSelectCredentialRoundRobin(t *testing.T) {
	cfg := ProviderInstanceConfig{
		SelectionPolicy: "round_robin",
		Credentials: []CredentialConfig{
			{Enabled: true, Label: "a", APIKey: "ka", Priority: 1},
			{Enabled: true, Label: "b", APIKey: "kb", Priority: 1},
			{Enabled: true, Label: "low", APIKey: "kl", Priority: 0},
		},
	}
	reg := NewRegistry(Config{})
	next := func(group string, n int) int { return reg.rrIndex("p:"+group, n) }

	first, _, err := selectCredential(cfg, next)
	require.NoError(t, err)
	second, _, err := selectCredential(cfg, next)
	require.NoError(t, err)
	third, _, err := selectCredential(cfg, next)
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b", "a"}, []string{first.Label, second.Label, third.Label})
}

func TestSelectCredentialDefaultLabelAndDisabled(t *testing.T) {
	cfg := ProviderInstanceConfig{
		DefaultCredential: "backup",
		Credentials: []CredentialConfig{
			{Enabled: true, Label: "main", APIKey: "km", Priority: 5},
			{Enabled: true, Label: "backup", APIKey: "kb"},
			{Enabled: false, Label: "retired", APIKey: "kr", Priority: 10},
		},
	}
	cred, key, err := selectCredential(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, "backup", cred.Label)
	require.Equal(t, "backup", key)

	cfg.DefaultCredential = ""
	cred, _, err = selectCredential(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, "main", cred.Label)

	_, _, err = selectCredential(ProviderInstanceConfig{}, nil)
	require.Error(t, err)
}

func TestDriverIsCachedPerCredential(t *testing.T) {
	reg := NewRegistry(testProviders())
	first, err := reg.Resolve("gpt-4-turbo")
	require.NoError(t, err)
	second, err := reg.Resolve("gpt-3.5-turbo")
	require.NoError(t, err)
	require.Same(t, first.Driver, second.Driver)
}
