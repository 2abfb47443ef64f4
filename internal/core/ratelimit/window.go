package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
)

// WindowConfig sizes a sliding window counter.
type WindowConfig struct {
	WindowSize  time.Duration `mapstructure:"window_size" toml:"window_size" json:"window_size"`
	MaxRequests int           `mapstructure:"max_requests" toml:"max_requests" json:"max_requests"`
}

// Validate reports whether the window can ever admit a request.
func (c WindowConfig) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %s", c.WindowSize)
	}
	if c.MaxRequests < 1 {
		return fmt.Errorf("window max requests must be at least 1, got %d", c.MaxRequests)
	}
	return nil
}

// SlidingWindowCounter admits at most MaxRequests within any trailing WindowSize.
type SlidingWindowCounter struct {
	mu       sync.Mutex
	config   WindowConfig
	requests []time.Time

	Gate string
	Key  string

	Clock        Clock
	PollInterval time.Duration
}

// NewSlidingWindowCounter builds an empty counter from cfg.
func NewSlidingWindowCounter(cfg WindowConfig) (*SlidingWindowCounter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SlidingWindowCounter{
		config:   cfg,
		requests: make([]time.Time, 0, cfg.MaxRequests),
		Gate:     "window",
	}, nil
}

// Config returns the window sizing.
func (w *SlidingWindowCounter) Config() WindowConfig {
	if w == nil {
		return WindowConfig{}
	}
	return w.config
}

// Acquire records a request, waiting for old entries to expire when full.
// A non-positive timeout waits until ctx ends.
func (w *SlidingWindowCounter) Acquire(ctx context.Context, timeout time.Duration) error {
	if w == nil {
		return nil
	}

	waited, ok, err := poll(ctx, w.clock(), w.PollInterval, timeout, func(now time.Time) bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.cleanupLocked(now)
		if len(w.requests) < w.config.MaxRequests {
			w.requests = append(w.requests, now)
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if !ok {
		count, retryAfter := w.occupancy()
		return &core.RateLimitError{
			Gate:       w.Gate,
			Key:        w.Key,
			Needed:     1,
			Available:  float64(w.config.MaxRequests - count),
			Waited:     waited,
			RetryAfter: retryAfter,
		}
	}
	return nil
}

// occupancy reports the in-window count and how long until the oldest entry
// leaves the window, which is when a full window next admits.
func (w *SlidingWindowCounter) occupancy() (int, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock().Now()
	w.cleanupLocked(now)
	count := len(w.requests)
	if count < w.config.MaxRequests {
		return count, 0
	}
	return count, max(w.requests[0].Add(w.config.WindowSize).Sub(now), time.Nanosecond)
}

// Count reports how many requests fall inside the current window.
func (w *SlidingWindowCounter) Count() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.clock().Now().Add(-w.config.WindowSize)
	count := 0
	for _, ts := range w.requests {
		if !ts.Before(cutoff) {
			count++
		}
	}
	return count
}

// cleanupLocked drops entries older than the window. Caller holds w.mu.
func (w *SlidingWindowCounter) cleanupLocked(now time.Time) {
	cutoff := now.Add(-w.config.WindowSize)
	idx := 0
	for idx < len(w.requests) && w.requests[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		w.requests = append(w.requests[:0], w.requests[idx:]...)
	}
}

func (w *SlidingWindowCounter) clock() Clock {
	if w.Clock == nil {
		return SystemClock
	}
	return w.Clock
}
