package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// LoadResilienceFile decodes a TOML resilience document.
//
//	poll_interval = "50ms"
//
//	[rate_limits.global]
//	capacity = 100
//	refill_rate = 10
//
//	[rate_limits.models."gpt-3.5-turbo"]
//	window_size = "1m"
//	max_requests = 60
//
//	[fallbacks]
//	"claude-3-opus" = ["claude-3-5-sonnet", "gpt-4o"]
func LoadResilienceFile(path string) (ResilienceConfig, error) {
	var cfg ResilienceConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return ResilienceConfig{}, fmt.Errorf("failed to read resilience file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ResilienceConfig{}, fmt.Errorf("unknown keys in resilience file %s: %v", path, undecoded)
	}
	cfg.File = path
	return cfg, nil
}

// mergeResilience overlays the tables present in file onto base.
func mergeResilience(base, file ResilienceConfig) ResilienceConfig {
	out := base
	out.File = file.File

	if file.RateLimits.Global != nil {
		out.RateLimits.Global = file.RateLimits.Global
	}
	if file.RateLimits.User != nil {
		out.RateLimits.User = file.RateLimits.User
	}
	if len(file.RateLimits.Users) > 0 {
		out.RateLimits.Users = file.RateLimits.Users
	}
	if len(file.RateLimits.Models) > 0 {
		out.RateLimits.Models = file.RateLimits.Models
	}
	if len(file.Fallbacks) > 0 {
		out.Fallbacks = file.Fallbacks
	}
	if len(file.Tiers) > 0 {
		out.Tiers = file.Tiers
	}
	if file.Breaker.FailureThreshold > 0 {
		out.Breaker.FailureThreshold = file.Breaker.FailureThreshold
	}
	if file.Breaker.Cooldown > 0 {
		out.Breaker.Cooldown = file.Breaker.Cooldown
	}
	if file.Breaker.SuccessThreshold > 0 {
		out.Breaker.SuccessThreshold = file.Breaker.SuccessThreshold
	}
	if file.Breaker.HalfOpenProbes > 0 {
		out.Breaker.HalfOpenProbes = file.Breaker.HalfOpenProbes
	}
	if file.PollInterval > 0 {
		out.PollInterval = file.PollInterval
	}
	return out
}
