package ailink

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/daoyou-zhang/daoyoucode/internal/ailink/driver"
	"github.com/daoyou-zhang/daoyoucode/internal/ailink/driver/anthropic"
	"github.com/daoyou-zhang/daoyoucode/internal/ailink/driver/openai"
)

// Registry routes model names to configured provider instances and caches
// one driver per provider credential.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	drivers map[string]driver.Driver
	rr      map[string]int
}

// ResolvedProvider is the provider, credential and driver chosen for a model.
type ResolvedProvider struct {
	ProviderID string
	Provider   ProviderInstanceConfig
	Credential CredentialConfig
	Driver     driver.Driver
	// Model is the upstream model id after alias resolution.
	Model   string
	BaseURL string
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	if r == nil {
		return Config{}
	}
	return r.cfg
}

// Resolve picks the provider instance for model and returns a ready driver.
func (r *Registry) Resolve(model string) (*ResolvedProvider, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	providerID, providerCfg, err := r.resolveProvider(model)
	if err != nil {
		return nil, err
	}

	cred, credKey, err := selectCredential(providerCfg, func(groupKey string, n int) int {
		return r.rrIndex(providerID+":"+groupKey, n)
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", providerID, err)
	}

	drv, baseURL, err := r.driverFor(providerID, providerCfg, cred, credKey)
	if err != nil {
		return nil, err
	}

	upstream := model
	if alias := strings.TrimSpace(providerCfg.Aliases[model]); alias != "" {
		upstream = alias
	}

	return &ResolvedProvider{
		ProviderID: providerID,
		Provider:   providerCfg,
		Credential: cred,
		Driver:     drv,
		Model:      upstream,
		BaseURL:    baseURL,
	}, nil
}

// ProviderIDs returns the enabled provider ids in sorted order.
func (r *Registry) ProviderIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.cfg.Providers))
	for id, providerCfg := range r.cfg.Providers {
		if providerCfg.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) resolveProvider(model string) (string, ProviderInstanceConfig, error) {
	if r == nil {
		return "", ProviderInstanceConfig{}, fmt.Errorf("ailink registry not configured")
	}

	if providerID, ok := r.cfg.Routing[model]; ok {
		providerID = strings.TrimSpace(providerID)
		if providerID != "" {
			providerCfg, ok := r.cfg.Providers[providerID]
			if !ok {
				return "", ProviderInstanceConfig{}, fmt.Errorf("unknown provider %q for model %q", providerID, model)
			}
			if !providerCfg.Enabled {
				return "", ProviderInstanceConfig{}, fmt.Errorf("provider %q is disabled", providerID)
			}
			return providerID, providerCfg, nil
		}
	}

	ids := r.ProviderIDs()
	for _, providerID := range ids {
		providerCfg := r.cfg.Providers[providerID]
		if contains(providerCfg.Models, model) {
			return providerID, providerCfg, nil
		}
		if _, ok := providerCfg.Aliases[model]; ok {
			return providerID, providerCfg, nil
		}
	}

	// Longest matching prefix wins so "gpt-4o" can beat "gpt-".
	bestID, bestLen := "", 0
	for _, providerID := range ids {
		for _, prefix := range r.cfg.Providers[providerID].ModelPrefixes {
			prefix = strings.TrimSpace(prefix)
			if prefix != "" && strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
				bestID, bestLen = providerID, len(prefix)
			}
		}
	}
	if bestID != "" {
		return bestID, r.cfg.Providers[bestID], nil
	}

	if id := strings.TrimSpace(r.cfg.DefaultProvider); id != "" {
		providerCfg, ok := r.cfg.Providers[id]
		if !ok {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q not configured", id)
		}
		if !providerCfg.Enabled {
			return "", ProviderInstanceConfig{}, fmt.Errorf("default provider %q is disabled", id)
		}
		return id, providerCfg, nil
	}

	switch len(ids) {
	case 0:
		return "", ProviderInstanceConfig{}, fmt.Errorf("no enabled providers configured")
	case 1:
		return ids[0], r.cfg.Providers[ids[0]], nil
	default:
		return "", ProviderInstanceConfig{}, fmt.Errorf("no provider routing configured for model %q", model)
	}
}

func selectCredential(cfg ProviderInstanceConfig, rrNext func(groupKey string, n int) int) (CredentialConfig, string, error) {
	if len(cfg.Credentials) == 0 {
		return CredentialConfig{}, "", fmt.Errorf("no credentials configured")
	}

	enabled := make([]CredentialConfig, 0, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		if !cred.Enabled && strings.TrimSpace(cred.Label) != "" {
			continue
		}
		if strings.TrimSpace(cred.APIKey) == "" {
			continue
		}
		enabled = append(enabled, cred)
	}
	if len(enabled) == 0 {
		// Credentials exist but are not usable; return first so caller can report missing key.
		cred := cfg.Credentials[0]
		key := strings.TrimSpace(cred.Label)
		if key == "" {
			key = "0"
		}
		return cred, key, nil
	}

	if label := strings.TrimSpace(cfg.DefaultCredential); label != "" {
		for _, cred := range enabled {
			if strings.EqualFold(strings.TrimSpace(cred.Label), label) {
				return cred, strings.TrimSpace(cred.Label), nil
			}
		}
	}

	policy := strings.ToLower(strings.TrimSpace(cfg.SelectionPolicy))
	if policy == "" {
		policy = "priority"
	}

	highest := enabled[0].Priority
	for _, cred := range enabled[1:] {
		if cred.Priority > highest {
			highest = cred.Priority
		}
	}
	group := make([]CredentialConfig, 0, len(enabled))
	for _, cred := range enabled {
		if cred.Priority == highest {
			group = append(group, cred)
		}
	}

	idx := 0
	if policy == "round_robin" && rrNext != nil {
		idx = rrNext(fmt.Sprintf("%d", highest), len(group))
	}
	cred := group[idx]
	key := strings.TrimSpace(cred.Label)
	if key == "" {
		key = fmt.Sprintf("p%d-%d", highest, idx)
	}
	return cred, key, nil
}

func (r *Registry) driverFor(providerID string, providerCfg ProviderInstanceConfig, cred CredentialConfig, credKey string) (driver.Driver, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drivers == nil {
		r.drivers = map[string]driver.Driver{}
	}
	driverKey := providerID
	if strings.TrimSpace(credKey) != "" {
		driverKey += ":" + credKey
	}

	providerType := strings.ToLower(strings.TrimSpace(providerCfg.AIProvider))
	baseURL := strings.TrimSpace(providerCfg.BaseURL)
	if baseURL == "" {
		if url, ok := openai.DefaultBaseURL(providerType); ok {
			baseURL = url
		}
	}

	if drv, ok := r.drivers[driverKey]; ok {
		return drv, baseURL, nil
	}

	var drv driver.Driver
	switch providerType {
	case "anthropic":
		client := anthropic.NewClient(anthropic.Options{BaseURL: baseURL, APIKey: cred.APIKey})
		client.Timeout = r.cfg.DefaultTimeout
		drv = client
	case "openai", "deepseek", "qwen", "xai", "openai_compatible":
		if baseURL == "" {
			return nil, "", fmt.Errorf("provider %q: base_url is required for %s", providerID, providerType)
		}
		client := openai.NewClient(baseURL, cred.APIKey)
		client.Timeout = r.cfg.DefaultTimeout
		client.Provider = providerType
		drv = client
	default:
		if providerType == "" {
			providerType = "(unset)"
		}
		return nil, "", fmt.Errorf("unsupported ai_provider %q for provider %q", providerType, providerID)
	}

	r.drivers[driverKey] = drv
	return drv, baseURL, nil
}

func (r *Registry) rrIndex(key string, n int) int {
	if n <= 1 {
		return 0
	}
	if r == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rr == nil {
		r.rr = map[string]int{}
	}
	idx := r.rr[key] % n
	r.rr[key] = r.rr[key] + 1
	return idx
}

func contains(values []string, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), needle) {
			return true
		}
	}
	return false
}
