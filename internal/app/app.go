// Package app assembles the daoyoucode object graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/ailink"
	"github.com/daoyou-zhang/daoyoucode/internal/ailink/driver"
	"github.com/daoyou-zhang/daoyoucode/internal/config"
	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/core/breaker"
	"github.com/daoyou-zhang/daoyoucode/internal/core/engine"
	"github.com/daoyou-zhang/daoyoucode/internal/core/fallback"
	"github.com/daoyou-zhang/daoyoucode/internal/core/ratelimit"
	"github.com/daoyou-zhang/daoyoucode/internal/core/store"
	"github.com/daoyou-zhang/daoyoucode/internal/metrics"
	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

// Options adjust Build for the calling surface.
type Options struct {
	Logger *logging.Logger
	// SkipStore leaves history and the persistent cache tier off regardless of config.
	SkipStore bool
	// TracePath overrides ailink.trace.path.
	TracePath string
	// Provider replaces the ailink service, mostly for tests.
	Provider engine.ProviderClient
}

// App holds every long-lived collaborator. Build it once per process.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Skills   *skill.InMemoryRegistry
	Limiter  *ratelimit.RateLimiter
	Fallback *fallback.Strategy
	Breakers *breaker.Registry
	AILink   *ailink.Service
	Executor *engine.Executor

	closers []func() error
}

// Build wires the limiter, fallback chains, breakers, provider service,
// skill registry and executor from cfg.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	a := &App{Config: cfg}

	limiter := ratelimit.New()
	limiter.PollInterval = cfg.Resilience.PollInterval
	if err := limiter.Apply(cfg.Resilience.RateLimits); err != nil {
		return nil, fmt.Errorf("invalid rate limits: %w", err)
	}
	a.Limiter = limiter

	a.Fallback = fallback.New(fallbackChains(cfg))
	a.Fallback.Logger = opts.Logger
	a.Fallback.OnFallback = metrics.RecordFallback

	a.Breakers = breaker.NewRegistry(cfg.Resilience.Breaker)
	a.Breakers.OnStateChange = func(model string, from, to breaker.State) {
		metrics.RecordBreakerTransition(model, from.String(), to.String())
		if opts.Logger != nil {
			opts.Logger.Warn("Circuit state changed",
				zap.String("model", model),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
	}

	skills, err := skill.LoadRegistry(cfg.Skills.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load skills: %w", err)
	}
	a.Skills = skills

	if !opts.SkipStore && (cfg.History.Enabled || cfg.AILink.Cache.Persist) {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		a.Store = st
		a.closers = append(a.closers, st.Close)
	}

	tracePath := opts.TracePath
	if tracePath == "" {
		tracePath = cfg.AILink.Trace.Path
	}
	if tracePath != "" {
		cleanup, err := driver.EnableTracing(tracePath, driver.TraceOptions{
			MaxSizeMB:  cfg.AILink.Trace.MaxSizeMB,
			MaxBackups: cfg.AILink.Trace.MaxBackups,
			MaxAgeDays: cfg.AILink.Trace.MaxAgeDays,
			Compress:   cfg.AILink.Trace.Compress,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to enable tracing: %w", err)
		}
		a.closers = append(a.closers, func() error { cleanup(); return nil })
	}

	provider := opts.Provider
	if provider == nil {
		var cacheStore ailink.CacheStore
		if a.Store != nil && cfg.AILink.Cache.Persist {
			cacheStore = a.Store
		}
		a.AILink = ailink.NewService(cfg.AILink, cacheStore)
		a.AILink.Logger = opts.Logger
		provider = a.AILink
	}

	tiers := engine.DefaultTiers()
	for from, to := range cfg.Resilience.Tiers {
		tiers[from] = to
	}

	a.Executor = &engine.Executor{
		Provider:       provider,
		Limiter:        limiter,
		Fallback:       a.Fallback,
		Breaker:        a.Breakers,
		Renderer:       skill.TemplateRenderer{},
		Tiers:          tiers,
		DefaultTimeout: cfg.Executor.DefaultTimeout,
		Logger:         opts.Logger,
	}
	if a.Store != nil && cfg.History.Enabled {
		a.Executor.Recorder = a.Store
	}
	return a, nil
}

// Execute runs the named skill in full mode.
func (a *App) Execute(ctx context.Context, name string, input map[string]any, opts engine.ExecuteOptions) (*core.ExecutionResult, error) {
	sk, err := a.Skills.Get(name)
	if err != nil {
		return nil, err
	}
	return a.Executor.Execute(ctx, sk, input, opts)
}

// Followup runs the named skill in followup mode against a prior summary.
func (a *App) Followup(ctx context.Context, name string, input map[string]any, summary string, opts engine.ExecuteOptions) (*core.ExecutionResult, error) {
	sk, err := a.Skills.Get(name)
	if err != nil {
		return nil, err
	}
	return a.Executor.ExecuteFollowup(ctx, sk, input, summary, opts)
}

// Stats returns the executor's running totals.
func (a *App) Stats() engine.Stats {
	return a.Executor.Stats()
}

// SkillStats returns the totals for one skill.
func (a *App) SkillStats(name string) (engine.SkillStats, bool) {
	return a.Executor.SkillStats(name)
}

// ListSkills returns the registered skills sorted by name.
func (a *App) ListSkills() []*skill.Skill {
	return a.Skills.List()
}

// Resilience is a point-in-time view of admission, breaker and fallback state.
type Resilience struct {
	RateLimits    ratelimit.Stats    `json:"rate_limits"`
	Breakers      []breaker.Snapshot `json:"breakers"`
	BreakerConfig breaker.Config     `json:"breaker_config"`
	Fallbacks     []fallback.Info    `json:"fallbacks"`
	FallbackStats fallback.Stats     `json:"fallback_stats"`
}

// Resilience snapshots the limiter, breakers and fallback chains.
func (a *App) Resilience() Resilience {
	return Resilience{
		RateLimits:    a.Limiter.Stats(),
		Breakers:      a.Breakers.States(),
		BreakerConfig: a.Breakers.Config(),
		Fallbacks:     a.Fallback.Chains(),
		FallbackStats: a.Fallback.Stats(),
	}
}

// Reload applies the rate limits and fallback chains of cfg to the running
// app. Invalid limits leave both untouched. Breakers, providers and skills
// keep their startup configuration.
func (a *App) Reload(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := a.Limiter.Apply(cfg.Resilience.RateLimits); err != nil {
		return fmt.Errorf("invalid rate limits: %w", err)
	}
	a.Fallback.Replace(fallbackChains(cfg))
	return nil
}

// fallbackChains layers configured chains over the defaults.
func fallbackChains(cfg *config.Config) map[string][]string {
	chains := fallback.DefaultChains()
	for model, chain := range cfg.Resilience.Fallbacks {
		chains[model] = chain
	}
	return chains
}

// Close releases the store and trace file. It is safe to call more than once.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
