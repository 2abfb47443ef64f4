package cmd

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	"github.com/daoyou-zhang/daoyoucode/internal/appid"
	"github.com/daoyou-zhang/daoyoucode/internal/auth"
	errwrap "github.com/daoyou-zhang/daoyoucode/internal/errors"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
	"github.com/daoyou-zhang/daoyoucode/internal/server"
	"github.com/daoyou-zhang/daoyoucode/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP API for skill execution with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read resilience settings (rate limits and fallback chains)

The server stops accepting requests, closes the store and flushes logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		overrides := map[string]any{}
		if cmd.Flags().Changed("host") {
			overrides["server"] = map[string]any{"host": serverHost}
		}
		if cmd.Flags().Changed("port") {
			serverSection, _ := overrides["server"].(map[string]any)
			if serverSection == nil {
				serverSection = map[string]any{}
			}
			serverSection["port"] = serverPort
			overrides["server"] = serverSection
		}
		cfg, err := loadConfig(ctx, overrides)
		if err != nil {
			return errwrap.Wrap(ctx, errwrap.CodeConfigInvalid, err, "config load failed")
		}

		observability.InitServerLogger(observability.ServerLoggerOptions{
			Service:   identity.BinaryName,
			Level:     cfg.Logging.Level,
			Namespace: namespace,
		})
		logger := observability.ServerLogger

		metricsPort := cfg.Metrics.Port
		if metricsPort == 0 {
			metricsPort = 9090
		}
		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.Wrap(ctx, errwrap.CodeInternal, err, "metrics initialization failed")
			}
		}

		a, err := app.Build(ctx, cfg, app.Options{Logger: logger, TracePath: traceFile})
		if err != nil {
			return errwrap.Wrap(ctx, errwrap.CodeInternal, err, "runtime initialization failed")
		}

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", metricsPort),
			zap.Int("skills", len(a.ListSkills())),
			zap.Bool("history", a.Store != nil && cfg.History.Enabled),
			zap.Bool("auth", cfg.Auth.Enabled))

		hm := handlers.NewHealthManager(versionInfo.Version)
		server.RegisterHealthChecks(hm, a, identity)

		var authSettings *auth.Settings
		if cfg.Auth.Enabled {
			if strings.TrimSpace(cfg.Auth.Secret) == "" {
				_ = a.Close()
				return errwrap.NewConfigInvalidError("auth.enabled requires auth.secret")
			}
			authSettings = &auth.Settings{
				Secret:   cfg.Auth.Secret,
				Issuer:   cfg.Auth.Issuer,
				Audience: cfg.Auth.Audience,
			}
		}

		srv := server.New(server.Options{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			MetricsPort:  metricsPort,
			Runtime:      a,
			Health:       hm,
			Build: handlers.BuildInfo{
				Version:   versionInfo.Version,
				Commit:    versionInfo.Commit,
				BuildDate: versionInfo.BuildDate,
				Identity:  identity,
			},
			Auth:          authSettings,
			AdminToken:    os.Getenv(appid.EnvVar(identity, "admin_token")),
			DisableHealth: !cfg.Health.Enabled,
			Pprof:         cfg.Debug.Enabled && cfg.Debug.PprofEnabled,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: last registered, first executed.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		if cfg.Metrics.Enabled {
			signals.OnShutdown(func(ctx context.Context) error {
				if err := observability.ShutdownMetrics(); err != nil {
					logger.Warn("Metrics exporter stop failed", zap.Error(err))
				}
				return nil
			})
		}

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Closing runtime...")
			if err := a.Close(); err != nil {
				return errwrap.Wrap(ctx, errwrap.CodeInternal, err, "runtime close failed")
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.Wrap(ctx, errwrap.CodeInternal, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading resilience settings")
			return reloadResilience(ctx, a)
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			logger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.Wrap(ctx, errwrap.CodeInternal, err, "server error")
		}
		return nil
	},
}

// reloadResilience re-reads configuration and hands the rate limits and
// fallback chains to the running app.
func reloadResilience(ctx context.Context, a *app.App) error {
	logger := observability.ServerLogger
	cfg, err := loadConfig(ctx)
	if err != nil {
		logger.Error("Failed to reload config", zap.Error(err))
		return errwrap.Wrap(ctx, errwrap.CodeConfigInvalid, err, "config reload failed")
	}
	if err := a.Reload(cfg); err != nil {
		logger.Error("Rejected reloaded resilience settings", zap.Error(err))
		return errwrap.Wrap(ctx, errwrap.CodeConfigInvalid, err, "resilience reload failed")
	}
	logger.Info("Resilience settings reloaded",
		zap.Int("fallback_overrides", len(cfg.Resilience.Fallbacks)),
		zap.Int("model_limits", len(cfg.Resilience.RateLimits.Models)))
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port (overrides server.port)")
}
