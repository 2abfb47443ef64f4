// Package fallback degrades a failing model to an ordered list of substitutes.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
)

// DefaultChains is the stock substitution table.
func DefaultChains() map[string][]string {
	return map[string][]string{
		"claude-3-opus":     {"claude-3-5-sonnet", "gpt-4o"},
		"claude-3-5-sonnet": {"claude-3-5-haiku", "gpt-4o-mini"},
		"gpt-4o":            {"gpt-4o-mini", "claude-3-5-sonnet"},
		"gpt-4-turbo":       {"gpt-4o", "gpt-3.5-turbo"},
		"deepseek-reasoner": {"deepseek-chat"},
		"qwen-max":          {"qwen-plus", "qwen-turbo"},
	}
}

// Info summarizes the chain configured for one model.
type Info struct {
	Model       string   `json:"model"`
	HasFallback bool     `json:"has_fallback"`
	ChainLength int      `json:"chain_length"`
	Chain       []string `json:"chain"`
}

// ModelStats counts how often a model served as a substitute.
type ModelStats struct {
	Served int64 `json:"served"`
	Failed int64 `json:"failed"`
}

// Stats are running totals across all chain walks.
type Stats struct {
	TotalCalls      int64                 `json:"total_calls"`
	FallbackUsed    int64                 `json:"fallback_used"`
	FallbackSuccess int64                 `json:"fallback_success"`
	FallbackFailed  int64                 `json:"fallback_failed"`
	Models          map[string]ModelStats `json:"models"`
}

// Strategy maps a model to the substitutes tried when it fails.
type Strategy struct {
	mu     sync.RWMutex
	chains map[string][]string

	statsMu sync.Mutex
	stats   Stats

	Logger *logging.Logger
	// OnFallback, when set, observes every walk that ended on a substitute.
	OnFallback func(requested, served string)
}

// New returns a strategy seeded with chains. A nil map yields DefaultChains.
func New(chains map[string][]string) *Strategy {
	if chains == nil {
		chains = DefaultChains()
	}
	s := &Strategy{stats: Stats{Models: map[string]ModelStats{}}}
	s.Replace(chains)
	return s
}

// Configure replaces the substitutes for model. Blank entries and repeats of
// model itself are dropped; an empty list removes the chain.
func (s *Strategy) Configure(model string, chain []string) {
	model = strings.TrimSpace(model)
	if model == "" {
		return
	}
	cleaned := clean(model, chain)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(cleaned) == 0 {
		delete(s.chains, model)
		return
	}
	s.chains[model] = cleaned
}

// Replace makes chains the complete substitution table; models missing from
// it lose their chain. Stats are kept.
func (s *Strategy) Replace(chains map[string][]string) {
	cleaned := make(map[string][]string, len(chains))
	for model, chain := range chains {
		model = strings.TrimSpace(model)
		if c := clean(model, chain); model != "" && len(c) > 0 {
			cleaned[model] = c
		}
	}
	s.mu.Lock()
	s.chains = cleaned
	s.mu.Unlock()
}

// clean drops blanks, repeats and model itself from chain.
func clean(model string, chain []string) []string {
	cleaned := make([]string, 0, len(chain))
	seen := map[string]bool{model: true}
	for _, candidate := range chain {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || seen[candidate] {
			continue
		}
		seen[candidate] = true
		cleaned = append(cleaned, candidate)
	}
	return cleaned
}

// FallbackChain returns the effective chain: model followed by its substitutes.
func (s *Strategy) FallbackChain(model string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	configured := s.chains[model]
	chain := make([]string, 0, len(configured)+1)
	chain = append(chain, model)
	return append(chain, configured...)
}

// FallbackInfo describes model's chain.
func (s *Strategy) FallbackInfo(model string) Info {
	chain := s.FallbackChain(model)
	return Info{
		Model:       model,
		HasFallback: len(chain) > 1,
		ChainLength: len(chain),
		Chain:       chain,
	}
}

// Chains lists every configured chain, sorted by model.
func (s *Strategy) Chains() []Info {
	s.mu.RLock()
	models := make([]string, 0, len(s.chains))
	for model := range s.chains {
		models = append(models, model)
	}
	s.mu.RUnlock()

	sort.Strings(models)
	out := make([]Info, 0, len(models))
	for _, model := range models {
		out = append(out, s.FallbackInfo(model))
	}
	return out
}

// ExecuteWithFallback calls each chain member in order and returns the first
// success together with the model that produced it. Any error moves on to the
// next candidate without backoff; cancellation of ctx stops the walk.
func (s *Strategy) ExecuteWithFallback(ctx context.Context, model string, call core.ProviderCall) (core.Response, string, error) {
	if call == nil {
		return core.Response{}, "", fmt.Errorf("fallback: provider call is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	chain := s.FallbackChain(model)
	s.record(func(st *Stats) { st.TotalCalls++ })

	var lastErr error
	for idx, candidate := range chain {
		if err := ctx.Err(); err != nil {
			return core.Response{}, "", err
		}

		resp, err := call(ctx, candidate)
		if err == nil {
			if candidate != model {
				s.record(func(st *Stats) {
					st.FallbackUsed++
					st.FallbackSuccess++
					m := st.Models[candidate]
					m.Served++
					st.Models[candidate] = m
				})
				s.logInfo("Served by fallback model",
					zap.String("requested_model", model),
					zap.String("model", candidate),
					zap.Int("position", idx))
				if s.OnFallback != nil {
					s.OnFallback(model, candidate)
				}
			}
			return resp, candidate, nil
		}

		lastErr = err
		if candidate != model {
			s.record(func(st *Stats) {
				m := st.Models[candidate]
				m.Failed++
				st.Models[candidate] = m
			})
		}
		if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return core.Response{}, "", ctxErr
		}

		var openErr *core.CircuitOpenError
		if errors.As(err, &openErr) {
			s.logWarn("Circuit open, skipping model",
				zap.String("requested_model", model),
				zap.String("model", candidate))
			continue
		}
		s.logWarn("Model call failed, trying next in chain",
			zap.String("requested_model", model),
			zap.String("model", candidate),
			zap.Int("remaining", len(chain)-idx-1),
			zap.Error(err))
	}

	s.record(func(st *Stats) { st.FallbackFailed++ })
	return core.Response{}, "", &core.FallbackExhaustedError{Chain: chain, Last: lastErr}
}

// Stats returns a copy of the running totals.
func (s *Strategy) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := s.stats
	out.Models = make(map[string]ModelStats, len(s.stats.Models))
	for model, stats := range s.stats.Models {
		out.Models[model] = stats
	}
	return out
}

// ResetStats zeroes the running totals.
func (s *Strategy) ResetStats() {
	s.statsMu.Lock()
	s.stats = Stats{Models: map[string]ModelStats{}}
	s.statsMu.Unlock()
}

func (s *Strategy) record(update func(*Stats)) {
	s.statsMu.Lock()
	update(&s.stats)
	s.statsMu.Unlock()
}

func (s *Strategy) logger() *logging.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return observability.CLILogger
}

func (s *Strategy) logInfo(msg string, fields ...zap.Field) {
	if logger := s.logger(); logger != nil {
		logger.Info(msg, fields...)
	}
}

func (s *Strategy) logWarn(msg string, fields ...zap.Field) {
	if logger := s.logger(); logger != nil {
		logger.Warn(msg, fields...)
	}
}
