package errors

import (
	"context"
	stderrors "errors"
	"math"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/daoyou-zhang/daoyoucode/internal/ailink"
	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

// FromExecutionError maps an executor failure to an envelope. The cause is
// inspected through SkillExecutionError's Unwrap chain, most specific first.
func FromExecutionError(ctx context.Context, err error) *errors.ErrorEnvelope {
	if err == nil {
		return nil
	}
	message := err.Error()

	var validationErr *core.ValidationError
	if stderrors.As(err, &validationErr) {
		envelope := Wrap(ctx, CodeValidationFailed, nil, message)
		return envelope.WithDetails(map[string]interface{}{
			"skill":   validationErr.Skill,
			"missing": validationErr.Missing,
		})
	}

	if stderrors.Is(err, skill.ErrNotFound) {
		return Wrap(ctx, CodeNotFound, nil, message)
	}

	if stderrors.Is(err, core.ErrTimeout) {
		envelope := Wrap(ctx, CodeTimeout, nil, message)
		envelope, _ = envelope.WithSeverity(errors.SeverityMedium)
		return envelope
	}

	var limitErr *core.RateLimitError
	if stderrors.As(err, &limitErr) {
		envelope := Wrap(ctx, CodeRateLimited, nil, message)
		details := map[string]interface{}{
			"gate":      limitErr.Gate,
			"needed":    limitErr.Needed,
			"available": limitErr.Available,
		}
		if limitErr.Key != "" {
			details["key"] = limitErr.Key
		}
		if limitErr.RetryAfter > 0 {
			details["retry_after_seconds"] = int(math.Ceil(limitErr.RetryAfter.Seconds()))
		}
		return envelope.WithDetails(details)
	}

	var exhausted *core.FallbackExhaustedError
	var openErr *core.CircuitOpenError
	failure := ailink.ClassifyProviderError(err)
	switch {
	case stderrors.As(err, &exhausted):
		envelope := Wrap(ctx, CodeExternalService, nil, message)
		details := map[string]interface{}{"chain": exhausted.Chain}
		if failure != nil {
			details["provider_code"] = failure.Code
		}
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
		return envelope.WithDetails(details)
	case stderrors.As(err, &openErr):
		envelope := Wrap(ctx, CodeExternalService, nil, message)
		return envelope.WithDetails(map[string]interface{}{
			"model":         openErr.Model,
			"provider_code": "CIRCUIT_OPEN",
		})
	case failure != nil && failure.Code != "AILINK_PROVIDER_ERROR":
		envelope := Wrap(ctx, CodeExternalService, nil, message)
		envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
		return envelope.WithDetails(map[string]interface{}{"provider_code": failure.Code})
	}

	if stderrors.Is(err, context.Canceled) {
		return Wrap(ctx, CodeUnavailable, nil, "request canceled")
	}

	envelope := Wrap(ctx, CodeInternal, nil, message)
	envelope, _ = envelope.WithSeverity(errors.SeverityHigh)
	return envelope
}
