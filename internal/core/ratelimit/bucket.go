package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
)

// BucketConfig sizes a token bucket.
type BucketConfig struct {
	Capacity   int     `mapstructure:"capacity" toml:"capacity" json:"capacity"`
	RefillRate float64 `mapstructure:"refill_rate" toml:"refill_rate" json:"refill_rate"`
}

// Validate reports whether the bucket can ever admit a request.
func (c BucketConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("bucket capacity must be at least 1, got %d", c.Capacity)
	}
	if c.RefillRate < 0 || math.IsNaN(c.RefillRate) || math.IsInf(c.RefillRate, 0) {
		return fmt.Errorf("bucket refill rate must be a finite non-negative number, got %v", c.RefillRate)
	}
	return nil
}

// TokenBucket admits requests while tokens remain and refills continuously.
// It starts full.
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	config  BucketConfig

	// Gate and Key label RateLimitErrors produced by this bucket.
	Gate string
	Key  string

	Clock        Clock
	PollInterval time.Duration
}

// NewTokenBucket builds a full bucket from cfg.
func NewTokenBucket(cfg BucketConfig) (*TokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(cfg.RefillRate), cfg.Capacity),
		config:  cfg,
		Gate:    "bucket",
	}, nil
}

// Config returns the bucket sizing.
func (b *TokenBucket) Config() BucketConfig {
	if b == nil {
		return BucketConfig{}
	}
	return b.config
}

// Acquire debits tokens, waiting for a refill when the bucket is short.
// A non-positive timeout waits until ctx ends.
func (b *TokenBucket) Acquire(ctx context.Context, tokens int, timeout time.Duration) error {
	if b == nil {
		return nil
	}
	if tokens <= 0 {
		tokens = 1
	}
	if tokens > b.config.Capacity {
		return b.denied(tokens, 0)
	}

	waited, ok, err := poll(ctx, b.clock(), b.PollInterval, timeout, func(now time.Time) bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.limiter.AllowN(now, tokens)
	})
	if err != nil {
		return err
	}
	if !ok {
		return b.denied(tokens, waited)
	}
	return nil
}

// AvailableTokens reports the current level without debiting.
func (b *TokenBucket) AvailableTokens() float64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	available := b.limiter.TokensAt(b.clock().Now())
	if available < 0 {
		return 0
	}
	return math.Min(available, float64(b.config.Capacity))
}

func (b *TokenBucket) denied(tokens int, waited time.Duration) error {
	available := b.AvailableTokens()
	return &core.RateLimitError{
		Gate:       b.Gate,
		Key:        b.Key,
		Needed:     float64(tokens),
		Available:  available,
		Waited:     waited,
		RetryAfter: b.refillTime(tokens, available),
	}
}

// refillTime is how long the bucket needs to hold tokens again. Requests
// larger than capacity and buckets without refill get no estimate.
func (b *TokenBucket) refillTime(tokens int, available float64) time.Duration {
	shortfall := float64(tokens) - available
	if shortfall <= 0 || tokens > b.config.Capacity || b.config.RefillRate <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(shortfall / b.config.RefillRate * float64(time.Second)))
}

func (b *TokenBucket) clock() Clock {
	if b.Clock == nil {
		return SystemClock
	}
	return b.Clock
}
