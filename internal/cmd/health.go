package cmd

import (
	"fmt"
	"sort"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	errwrap "github.com/daoyou-zhang/daoyoucode/internal/errors"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
	"github.com/daoyou-zhang/daoyoucode/internal/server"
	"github.com/daoyou-zhang/daoyoucode/internal/server/handlers"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Build the runtime from configuration and run the same checks the server exposes at /health.",
	Run: func(cmd *cobra.Command, args []string) {
		observability.CLILogger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))

		a, err := buildApp(cmd.Context(), app.Options{})
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Runtime failed to start", err)
			return
		}
		defer closeApp(a)

		hm := handlers.NewHealthManager(versionInfo.Version)
		server.RegisterRuntimeChecks(hm, a, GetAppIdentity())
		checks, status := hm.Check(cmd.Context())

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			mark := "✅"
			switch checks[name] {
			case handlers.StatusDegraded, handlers.StatusTimeout:
				mark = "⚠️"
			case handlers.StatusUnhealthy:
				mark = "❌"
			}
			observability.CLILogger.Info(fmt.Sprintf("%s %s: %s", mark, name, checks[name]))
		}

		observability.CLILogger.Info("")
		if status == handlers.StatusUnhealthy {
			closeApp(a)
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Health check failed", errwrap.NewInternalError("overall status "+status))
			return
		}
		if status == handlers.StatusDegraded {
			observability.CLILogger.Warn("⚠️  Running degraded")
			return
		}
		observability.CLILogger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
