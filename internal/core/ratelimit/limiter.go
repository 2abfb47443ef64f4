package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Gate names reported in RateLimitErrors.
const (
	GateGlobal = "global"
	GateUser   = "user"
	GateModel  = "model"
)

// Config is the declarative form of a limiter setup.
type Config struct {
	Global *BucketConfig           `mapstructure:"global" toml:"global" json:"global,omitempty"`
	User   *BucketConfig           `mapstructure:"user" toml:"user" json:"user,omitempty"`
	Users  map[string]BucketConfig `mapstructure:"users" toml:"users" json:"users,omitempty"`
	Models map[string]WindowConfig `mapstructure:"models" toml:"models" json:"models,omitempty"`
}

// BucketStats is a point-in-time view of one token bucket.
type BucketStats struct {
	Capacity        int     `json:"capacity"`
	RefillRate      float64 `json:"refill_rate"`
	AvailableTokens float64 `json:"available_tokens"`
}

// WindowStats is a point-in-time view of one sliding window.
type WindowStats struct {
	WindowSize  time.Duration `json:"window_size"`
	MaxRequests int           `json:"max_requests"`
	Count       int           `json:"count"`
}

// Stats snapshots every configured gate.
type Stats struct {
	Global *BucketStats           `json:"global,omitempty"`
	Users  map[string]BucketStats `json:"users"`
	Models map[string]WindowStats `json:"models"`
}

// RateLimiter admits a request only when the global bucket, the caller's
// bucket and the model's window all have room, checked in that order.
type RateLimiter struct {
	mu            sync.Mutex
	global        *TokenBucket
	userDefault   *BucketConfig
	userOverrides map[string]BucketConfig
	users         map[string]*TokenBucket
	models        map[string]*SlidingWindowCounter

	Clock        Clock
	PollInterval time.Duration
}

// New returns a limiter with no gates; it admits everything until configured.
func New() *RateLimiter {
	return &RateLimiter{
		userOverrides: make(map[string]BucketConfig),
		users:         make(map[string]*TokenBucket),
		models:        make(map[string]*SlidingWindowCounter),
	}
}

// NewFromConfig builds a limiter and applies cfg.
func NewFromConfig(cfg Config) (*RateLimiter, error) {
	limiter := New()
	if err := limiter.Apply(cfg); err != nil {
		return nil, err
	}
	return limiter, nil
}

// Validate checks every gate in cfg without touching any limiter.
func (c Config) Validate() error {
	if c.Global != nil {
		if err := c.Global.Validate(); err != nil {
			return fmt.Errorf("global limit: %w", err)
		}
	}
	if c.User != nil {
		if err := c.User.Validate(); err != nil {
			return fmt.Errorf("user limit: %w", err)
		}
	}
	for _, userID := range sortedKeys(c.Users) {
		if strings.TrimSpace(userID) == "" {
			return fmt.Errorf("user override: user id is required")
		}
		if err := c.Users[userID].Validate(); err != nil {
			return fmt.Errorf("user override %q: %w", userID, err)
		}
	}
	for _, model := range sortedKeys(c.Models) {
		if strings.TrimSpace(model) == "" {
			return fmt.Errorf("model limit: model is required")
		}
		if err := c.Models[model].Validate(); err != nil {
			return fmt.Errorf("model limit %q: %w", model, err)
		}
	}
	return nil
}

// Apply makes cfg the complete limiter setup. Nothing changes when cfg is
// invalid. Gates whose sizing is unchanged keep their tokens and timestamps,
// resized gates start fresh, and gates absent from cfg are removed.
func (l *RateLimiter) Apply(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cfg.Global == nil {
		l.global = nil
	} else if l.global == nil || l.global.Config() != *cfg.Global {
		// Validated above.
		l.global, _ = l.newBucket(*cfg.Global, GateGlobal, "")
	}

	l.userDefault = nil
	if cfg.User != nil {
		def := *cfg.User
		l.userDefault = &def
	}
	l.userOverrides = make(map[string]BucketConfig, len(cfg.Users))
	for userID, bucket := range cfg.Users {
		l.userOverrides[strings.TrimSpace(userID)] = bucket
	}
	for userID, bucket := range l.users {
		want, ok := l.userOverrides[userID]
		if !ok && l.userDefault != nil {
			want, ok = *l.userDefault, true
		}
		if !ok || bucket.Config() != want {
			// Default-sized buckets come back on the user's next request.
			delete(l.users, userID)
		}
	}
	for userID, bucket := range l.userOverrides {
		if l.users[userID] == nil {
			l.users[userID], _ = l.newBucket(bucket, GateUser, userID)
		}
	}

	models := make(map[string]*SlidingWindowCounter, len(cfg.Models))
	for model, window := range cfg.Models {
		model = strings.TrimSpace(model)
		if current := l.models[model]; current != nil && current.Config() == window {
			models[model] = current
			continue
		}
		counter, _ := l.newWindow(window, model)
		models[model] = counter
	}
	l.models = models
	return nil
}

// ConfigureGlobalLimit installs or replaces the process-wide bucket.
func (l *RateLimiter) ConfigureGlobalLimit(capacity int, refillRate float64) error {
	bucket, err := l.newBucket(BucketConfig{Capacity: capacity, RefillRate: refillRate}, GateGlobal, "")
	if err != nil {
		return fmt.Errorf("global limit: %w", err)
	}
	l.mu.Lock()
	l.global = bucket
	l.mu.Unlock()
	return nil
}

// ConfigureUserLimit sets the bucket size for users first seen after the call.
// Buckets already created keep their original size.
func (l *RateLimiter) ConfigureUserLimit(capacity int, refillRate float64) error {
	cfg := BucketConfig{Capacity: capacity, RefillRate: refillRate}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("user limit: %w", err)
	}
	l.mu.Lock()
	l.userDefault = &cfg
	l.mu.Unlock()
	return nil
}

// ConfigureUserOverride gives one user a dedicated bucket size, replacing any
// bucket that user already holds.
func (l *RateLimiter) ConfigureUserOverride(userID string, capacity int, refillRate float64) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user override: user id is required")
	}
	cfg := BucketConfig{Capacity: capacity, RefillRate: refillRate}
	bucket, err := l.newBucket(cfg, GateUser, userID)
	if err != nil {
		return fmt.Errorf("user override %q: %w", userID, err)
	}
	l.mu.Lock()
	l.userOverrides[userID] = cfg
	l.users[userID] = bucket
	l.mu.Unlock()
	return nil
}

// ConfigureModelLimit installs or replaces the window for model.
func (l *RateLimiter) ConfigureModelLimit(model string, windowSize time.Duration, maxRequests int) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return fmt.Errorf("model limit: model is required")
	}
	window, err := l.newWindow(WindowConfig{WindowSize: windowSize, MaxRequests: maxRequests}, model)
	if err != nil {
		return fmt.Errorf("model limit %q: %w", model, err)
	}

	l.mu.Lock()
	l.models[model] = window
	l.mu.Unlock()
	return nil
}

// Acquire passes the request through every applicable gate. The timeout is
// shared: each gate gets whatever remains after the previous ones waited.
// Tokens debited by an earlier gate are not refunded when a later gate denies.
func (l *RateLimiter) Acquire(ctx context.Context, userID, model string, timeout time.Duration) error {
	if l == nil {
		return nil
	}
	global, user, window := l.gates(strings.TrimSpace(userID), strings.TrimSpace(model))
	if global == nil && user == nil && window == nil {
		return nil
	}

	clock := l.clock()
	start := clock.Now()
	remaining := func() time.Duration {
		if timeout <= 0 {
			return 0
		}
		left := timeout - clock.Now().Sub(start)
		if left <= 0 {
			// Keep a single non-blocking attempt for later gates.
			return time.Nanosecond
		}
		return left
	}

	if global != nil {
		if err := global.Acquire(ctx, 1, remaining()); err != nil {
			return err
		}
	}
	if user != nil {
		if err := user.Acquire(ctx, 1, remaining()); err != nil {
			return err
		}
	}
	if window != nil {
		if err := window.Acquire(ctx, remaining()); err != nil {
			return err
		}
	}
	return nil
}

// Stats snapshots all gates without consuming capacity.
func (l *RateLimiter) Stats() Stats {
	stats := Stats{
		Users:  map[string]BucketStats{},
		Models: map[string]WindowStats{},
	}
	if l == nil {
		return stats
	}

	l.mu.Lock()
	global := l.global
	users := make(map[string]*TokenBucket, len(l.users))
	for id, bucket := range l.users {
		users[id] = bucket
	}
	models := make(map[string]*SlidingWindowCounter, len(l.models))
	for name, window := range l.models {
		models[name] = window
	}
	l.mu.Unlock()

	if global != nil {
		snapshot := bucketStats(global)
		stats.Global = &snapshot
	}
	for id, bucket := range users {
		stats.Users[id] = bucketStats(bucket)
	}
	for name, window := range models {
		cfg := window.Config()
		stats.Models[name] = WindowStats{
			WindowSize:  cfg.WindowSize,
			MaxRequests: cfg.MaxRequests,
			Count:       window.Count(),
		}
	}
	return stats
}

// gates resolves the gates for one request, creating the user bucket on first use.
func (l *RateLimiter) gates(userID, model string) (*TokenBucket, *TokenBucket, *SlidingWindowCounter) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var user *TokenBucket
	if userID != "" {
		user = l.users[userID]
		if user == nil {
			cfg, ok := l.userOverrides[userID]
			if !ok && l.userDefault != nil {
				cfg, ok = *l.userDefault, true
			}
			if ok {
				// Validated when configured.
				user, _ = l.newBucket(cfg, GateUser, userID)
				if user != nil {
					l.users[userID] = user
				}
			}
		}
	}

	var window *SlidingWindowCounter
	if model != "" {
		window = l.models[model]
	}
	return l.global, user, window
}

func (l *RateLimiter) newBucket(cfg BucketConfig, gate, key string) (*TokenBucket, error) {
	bucket, err := NewTokenBucket(cfg)
	if err != nil {
		return nil, err
	}
	bucket.Gate = gate
	bucket.Key = key
	bucket.Clock = l.Clock
	bucket.PollInterval = l.PollInterval
	return bucket, nil
}

func (l *RateLimiter) newWindow(cfg WindowConfig, model string) (*SlidingWindowCounter, error) {
	window, err := NewSlidingWindowCounter(cfg)
	if err != nil {
		return nil, err
	}
	window.Gate = GateModel
	window.Key = model
	window.Clock = l.Clock
	window.PollInterval = l.PollInterval
	return window, nil
}

func (l *RateLimiter) clock() Clock {
	if l.Clock == nil {
		return SystemClock
	}
	return l.Clock
}

func bucketStats(bucket *TokenBucket) BucketStats {
	cfg := bucket.Config()
	return BucketStats{
		Capacity:        cfg.Capacity,
		RefillRate:      cfg.RefillRate,
		AvailableTokens: bucket.AvailableTokens(),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
