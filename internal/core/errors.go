package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout marks an execution that exceeded its overall deadline.
var ErrTimeout = errors.New("timed out")

// ValidationError reports required skill inputs missing from the context.
type ValidationError struct {
	Skill   string
	Missing []string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation failed"
	}
	return fmt.Sprintf("missing required input(s) for skill %q: %s", e.Skill, strings.Join(e.Missing, ", "))
}

// RateLimitError reports an admission denial by one rate-limit gate.
type RateLimitError struct {
	Gate      string
	Key       string
	Needed    float64
	Available float64
	Waited    time.Duration
	// RetryAfter estimates when the gate will admit again. Zero means the
	// gate gives no estimate, as for a bucket that never refills.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e == nil {
		return "rate limit exceeded"
	}
	target := e.Gate
	if e.Key != "" {
		target = fmt.Sprintf("%s %q", e.Gate, e.Key)
	}
	return fmt.Sprintf("rate limit exceeded for %s: needed %.2f, available %.2f (waited %s)",
		target, e.Needed, e.Available, e.Waited.Round(time.Millisecond))
}

// CircuitOpenError is returned when a model's circuit breaker rejects a call.
type CircuitOpenError struct {
	Model      string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e == nil {
		return "circuit breaker open"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker open for model %q (retry after %s)", e.Model, e.RetryAfter.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit breaker open for model %q", e.Model)
}

// FallbackExhaustedError reports that every model in a fallback chain failed.
type FallbackExhaustedError struct {
	Chain []string
	Last  error
}

func (e *FallbackExhaustedError) Error() string {
	if e == nil {
		return "fallback chain exhausted"
	}
	last := "unknown error"
	if e.Last != nil {
		last = e.Last.Error()
	}
	return fmt.Sprintf("all models in fallback chain failed [%s]: last error: %s", strings.Join(e.Chain, " -> "), last)
}

func (e *FallbackExhaustedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Last
}

// SkillExecutionError is the single error type surfaced by the skill executor.
// The underlying cause stays reachable through errors.Is and errors.As.
type SkillExecutionError struct {
	Skill   string
	Mode    Mode
	Message string
	Err     error
}

func (e *SkillExecutionError) Error() string {
	if e == nil {
		return "skill execution failed"
	}
	msg := fmt.Sprintf("skill %q execution failed", e.Skill)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SkillExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
