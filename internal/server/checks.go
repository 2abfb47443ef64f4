package server

import (
	"context"
	"errors"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	"github.com/daoyou-zhang/daoyoucode/internal/core/breaker"
	apperrors "github.com/daoyou-zhang/daoyoucode/internal/errors"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
	"github.com/daoyou-zhang/daoyoucode/internal/server/handlers"
)

// CheckerFunc adapts a function to handlers.HealthChecker.
type CheckerFunc func(ctx context.Context) error

// CheckHealth calls f.
func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// RegisterHealthChecks wires the standard checkers for a serving app.
func RegisterHealthChecks(hm *handlers.HealthManager, a *app.App, identity *appidentity.Identity) {
	hm.RegisterChecker("telemetry", CheckerFunc(checkTelemetry))
	RegisterRuntimeChecks(hm, a, identity)
}

// RegisterRuntimeChecks wires the checkers that do not need the telemetry
// exporter, for use outside the server.
func RegisterRuntimeChecks(hm *handlers.HealthManager, a *app.App, identity *appidentity.Identity) {
	hm.RegisterChecker("app_identity", CheckerFunc(func(context.Context) error {
		return checkIdentity(identity)
	}))
	if a == nil {
		return
	}
	hm.RegisterChecker("skills", CheckerFunc(func(context.Context) error {
		if len(a.ListSkills()) == 0 {
			return errors.New("no skills registered")
		}
		return nil
	}))
	if a.Store != nil {
		hm.RegisterChecker("store", a.Store)
	}
	if a.Breakers != nil {
		hm.RegisterChecker("breakers", CheckerFunc(func(context.Context) error {
			return checkBreakers(a.Breakers.States())
		}))
	}
	if a.AILink != nil {
		hm.RegisterChecker("providers", CheckerFunc(func(context.Context) error {
			if len(a.AILink.Providers.ProviderIDs()) == 0 {
				return errors.New("no enabled providers")
			}
			return nil
		}))
	}
}

// checkBreakers degrades the service while any model's breaker is open.
// Fallback chains may still serve, so it never reports unhealthy.
func checkBreakers(states []breaker.Snapshot) error {
	var open []string
	for _, snap := range states {
		if snap.State == breaker.StateOpen {
			open = append(open, snap.Model)
		}
	}
	if len(open) > 0 {
		return handlers.Degraded("circuit open for %s", strings.Join(open, ", "))
	}
	return nil
}

func checkTelemetry(context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return apperrors.NewInternalError("telemetry system not initialized")
	}
	return nil
}

func checkIdentity(identity *appidentity.Identity) error {
	switch {
	case identity == nil:
		return apperrors.NewConfigInvalidError("app identity not loaded")
	case identity.BinaryName == "":
		return apperrors.NewConfigInvalidError("app identity missing binary name")
	case identity.EnvPrefix == "":
		return apperrors.NewConfigInvalidError("app identity missing env prefix")
	case identity.ConfigName == "":
		return apperrors.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}
