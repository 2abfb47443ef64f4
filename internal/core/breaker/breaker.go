// Package breaker isolates failing models behind per-model circuit breakers.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
)

// Breaker guards provider calls. An open breaker returns *core.CircuitOpenError
// without invoking fn.
type Breaker interface {
	Call(ctx context.Context, model string, fn core.ProviderCall) (core.Response, error)
}

// Passthrough is a Breaker that always invokes fn.
type Passthrough struct{}

// Call invokes fn directly.
func (Passthrough) Call(ctx context.Context, model string, fn core.ProviderCall) (core.Response, error) {
	return fn(ctx, model)
}

// State is the position of one model's breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half_open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config tunes every breaker in a registry.
type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int `mapstructure:"failure_threshold" toml:"failure_threshold" json:"failure_threshold"`
	// Cooldown is how long an open breaker rejects before probing.
	Cooldown time.Duration `mapstructure:"cooldown" toml:"cooldown" json:"cooldown"`
	// SuccessThreshold half-open successes close the breaker.
	SuccessThreshold int `mapstructure:"success_threshold" toml:"success_threshold" json:"success_threshold"`
	// HalfOpenProbes bounds concurrent calls while half-open.
	HalfOpenProbes int `mapstructure:"half_open_probes" toml:"half_open_probes" json:"half_open_probes"`
}

// DefaultConfig returns the settings used for LLM providers.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		SuccessThreshold: 2,
		HalfOpenProbes:   1,
	}
}

func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaults.Cooldown
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = defaults.SuccessThreshold
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = defaults.HalfOpenProbes
	}
	return c
}

// Snapshot describes one breaker for operators.
type Snapshot struct {
	Model               string    `json:"model"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       int64     `json:"total_failures"`
	TotalSuccesses      int64     `json:"total_successes"`
	Rejected            int64     `json:"rejected"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
}

type circuit struct {
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
	lastError string

	totalFailures  int64
	totalSuccesses int64
	rejected       int64
}

// Registry keeps one breaker per model, created on first use.
type Registry struct {
	mu       sync.Mutex
	config   Config
	circuits map[string]*circuit

	// Now defaults to time.Now.
	Now func() time.Time
	// OnStateChange, when set, observes every transition.
	OnStateChange func(model string, from, to State)
}

// NewRegistry returns a registry whose breakers share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		config:   cfg.normalized(),
		circuits: make(map[string]*circuit),
	}
}

// Config returns the effective settings.
func (r *Registry) Config() Config {
	return r.config
}

// Call runs fn unless model's breaker is open.
func (r *Registry) Call(ctx context.Context, model string, fn core.ProviderCall) (core.Response, error) {
	if fn == nil {
		return core.Response{}, fmt.Errorf("breaker: provider call is required")
	}
	if err := r.admit(model); err != nil {
		return core.Response{}, err
	}

	resp, err := fn(ctx, model)
	r.record(model, err)
	return resp, err
}

// State reports the current state of model's breaker.
func (r *Registry) State(model string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.circuits[model]
	if !ok {
		return StateClosed
	}
	r.refreshLocked(model, c)
	return c.state
}

// States snapshots every breaker that has seen traffic, sorted by model.
func (r *Registry) States() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.circuits))
	for model, c := range r.circuits {
		r.refreshLocked(model, c)
		out = append(out, Snapshot{
			Model:               model,
			State:               c.state,
			ConsecutiveFailures: c.failures,
			TotalFailures:       c.totalFailures,
			TotalSuccesses:      c.totalSuccesses,
			Rejected:            c.rejected,
			OpenedAt:            c.openedAt,
			LastError:           c.lastError,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Reset closes model's breaker and clears its counters.
func (r *Registry) Reset(model string) {
	r.mu.Lock()
	c, ok := r.circuits[model]
	if ok {
		delete(r.circuits, model)
	}
	r.mu.Unlock()
	if ok && c.state != StateClosed {
		r.notify(model, c.state, StateClosed)
	}
}

func (r *Registry) admit(model string) error {
	r.mu.Lock()
	c := r.circuitLocked(model)
	from := c.state
	r.refreshLocked(model, c)
	to := c.state

	var err error
	switch c.state {
	case StateOpen:
		c.rejected++
		err = &core.CircuitOpenError{Model: model, RetryAfter: r.config.Cooldown - r.now().Sub(c.openedAt)}
	case StateHalfOpen:
		if c.inFlight >= r.config.HalfOpenProbes {
			c.rejected++
			err = &core.CircuitOpenError{Model: model}
		} else {
			c.inFlight++
		}
	default:
		c.inFlight++
	}
	r.mu.Unlock()

	if from != to {
		r.notify(model, from, to)
	}
	return err
}

func (r *Registry) record(model string, callErr error) {
	r.mu.Lock()
	c := r.circuitLocked(model)
	if c.inFlight > 0 {
		c.inFlight--
	}
	from := c.state

	switch {
	case callErr == nil:
		c.totalSuccesses++
		c.failures = 0
		if c.state == StateHalfOpen {
			c.successes++
			if c.successes >= r.config.SuccessThreshold {
				r.transitionLocked(c, StateClosed)
			}
		}
	case errors.Is(callErr, context.Canceled) || errors.Is(callErr, context.DeadlineExceeded):
		// The caller gave up; the model is not at fault.
	default:
		c.totalFailures++
		c.failures++
		c.lastError = callErr.Error()
		switch c.state {
		case StateHalfOpen:
			r.transitionLocked(c, StateOpen)
		case StateClosed:
			if c.failures >= r.config.FailureThreshold {
				r.transitionLocked(c, StateOpen)
			}
		}
	}
	to := c.state
	r.mu.Unlock()

	if from != to {
		r.notify(model, from, to)
	}
}

func (r *Registry) circuitLocked(model string) *circuit {
	c, ok := r.circuits[model]
	if !ok {
		c = &circuit{state: StateClosed}
		r.circuits[model] = c
	}
	return c
}

// refreshLocked moves an open breaker to half-open once its cooldown elapsed.
func (r *Registry) refreshLocked(_ string, c *circuit) {
	if c.state == StateOpen && r.now().Sub(c.openedAt) >= r.config.Cooldown {
		r.transitionLocked(c, StateHalfOpen)
	}
}

func (r *Registry) transitionLocked(c *circuit, to State) {
	c.state = to
	c.successes = 0
	switch to {
	case StateOpen:
		c.openedAt = r.now()
	case StateClosed:
		c.failures = 0
		c.openedAt = time.Time{}
	}
}

func (r *Registry) notify(model string, from, to State) {
	if r.OnStateChange != nil {
		r.OnStateChange(model, from, to)
	}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
