package handlers

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/daoyou-zhang/daoyoucode/internal/metrics"
)

// Check results and aggregate statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// ErrDegraded marks a checker failure that should not take the service out of
// rotation, such as an open circuit breaker while fallbacks still serve.
var ErrDegraded = stderrors.New("degraded")

// Degraded returns an error that reports as "degraded" rather than "unhealthy".
func Degraded(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDegraded, fmt.Sprintf(format, args...))
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is the body of the live/ready/startup probes.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker is anything that can report its own health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthManager runs named checkers for the health endpoints and the CLI.
type HealthManager struct {
	checkers map[string]HealthChecker
	version  string
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{checkers: map[string]HealthChecker{}, version: version}
}

// RegisterChecker adds or replaces the checker called name.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.checkers[name] = checker
}

// CheckerNames lists registered checkers in sorted order.
func (hm *HealthManager) CheckerNames() []string {
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every checker once and returns per-check results and the aggregate status.
func (hm *HealthManager) Check(ctx context.Context) (map[string]string, string) {
	checks := hm.runChecks(ctx)
	return checks, aggregate(checks)
}

// runChecks runs checkers in name order; once ctx ends the rest report timeout.
func (hm *HealthManager) runChecks(ctx context.Context) map[string]string {
	checks := make(map[string]string, len(hm.checkers))
	for _, name := range hm.CheckerNames() {
		if ctx.Err() != nil {
			checks[name] = StatusTimeout
			continue
		}
		start := time.Now()
		result := classify(hm.checkers[name].CheckHealth(ctx))
		metrics.RecordHealthCheck(name, result, time.Since(start))
		checks[name] = result
	}
	return checks
}

func classify(err error) string {
	switch {
	case err == nil:
		return StatusHealthy
	case stderrors.Is(err, ErrDegraded):
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// aggregate is unhealthy if any check is, degraded if any check degraded or
// timed out, otherwise healthy.
func aggregate(checks map[string]string) string {
	status := StatusHealthy
	for _, result := range checks {
		switch result {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusTimeout:
			status = StatusDegraded
		}
	}
	return status
}

// HealthHandler serves GET /health with every check result.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, "", 5*time.Second)
}

// LivenessHandler serves GET /health/live.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, "live", 2*time.Second)
}

// ReadinessHandler serves GET /health/ready. A degraded service stays ready.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, "ready", 5*time.Second)
}

// StartupHandler serves GET /health/startup.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.serveProbe(w, r, "startup", 3*time.Second)
}

func (hm *HealthManager) serveProbe(w http.ResponseWriter, r *http.Request, probe string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	checks, status := hm.Check(ctx)
	if status == StatusUnhealthy {
		respondWithError(w, r, unhealthyEnvelope(probe, status, checks))
		return
	}

	var body any = ProbeResponse{Status: status, Timestamp: time.Now().UTC()}
	if probe == "" {
		body = HealthResponse{
			Status:    status,
			Version:   hm.version,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func unhealthyEnvelope(probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	message := "aggregate health check failed"
	if probe != "" {
		message = probe + " probe failed"
	}
	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message)

	details := map[string]interface{}{"status": status, "checks": checks}
	var failing []string
	for name, result := range checks {
		if result != StatusHealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	details["failing_checks"] = failing
	if probe != "" {
		details["probe"] = probe
	}
	return envelope.WithDetails(details)
}
