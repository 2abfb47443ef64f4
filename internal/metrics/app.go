package metrics

import (
	"time"

	"github.com/daoyou-zhang/daoyoucode/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Skill execution metrics
	ExecutionsTotal   = "skill_executions_total"
	ExecutionDuration = "skill_execution_duration_ms"

	// Resilience metrics
	AdmissionDeniedTotal   = "ratelimit_denied_total"
	FallbackTotal          = "fallback_served_total"
	BreakerTransitionTotal = "breaker_transitions_total"

	// Provider metrics
	ProviderCallsTotal  = "provider_calls_total"
	ProviderCallLatency = "provider_call_duration_ms"
	ProviderTokensTotal = "provider_tokens_total"
	ResponseCacheTotal  = "response_cache_lookups_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// RecordExecution records a finished skill execution with its outcome.
func RecordExecution(skill, mode string, success bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(
		ExecutionsTotal,
		1,
		map[string]string{
			"skill":  skill,
			"mode":   mode,
			"status": status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		ExecutionDuration,
		duration,
		map[string]string{
			"skill": skill,
			"mode":  mode,
		},
	)
}

// RecordAdmissionDenied records a request turned away by a rate-limit gate.
func RecordAdmissionDenied(gate string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			AdmissionDeniedTotal,
			1,
			map[string]string{"gate": gate},
		)
	}
}

// RecordFallback records a request served by a substitute model.
func RecordFallback(requested, served string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			FallbackTotal,
			1,
			map[string]string{
				"requested_model": requested,
				"model":           served,
			},
		)
	}
}

// RecordBreakerTransition records a circuit breaker state change.
func RecordBreakerTransition(model, from, to string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			BreakerTransitionTotal,
			1,
			map[string]string{
				"model": model,
				"from":  from,
				"to":    to,
			},
		)
	}
}

// RecordProviderCall records one request to a provider.
func RecordProviderCall(provider, model string, success bool, duration time.Duration, tokens int) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	labels := map[string]string{
		"provider": provider,
		"model":    model,
	}
	_ = observability.TelemetrySystem.Counter(
		ProviderCallsTotal,
		1,
		map[string]string{
			"provider": provider,
			"model":    model,
			"status":   status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(ProviderCallLatency, duration, labels)
	if tokens > 0 {
		_ = observability.TelemetrySystem.Counter(ProviderTokensTotal, float64(tokens), labels)
	}
}

// RecordCacheLookup records a response cache hit or miss by tier.
func RecordCacheLookup(tier string, hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	_ = observability.TelemetrySystem.Counter(
		ResponseCacheTotal,
		1,
		map[string]string{
			"tier":   tier,
			"result": result,
		},
	)
}

// RecordHealthCheck records one checker run; status is healthy, degraded or unhealthy.
func RecordHealthCheck(checkName, status string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
