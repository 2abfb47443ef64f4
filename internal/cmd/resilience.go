package cmd

import (
	"github.com/spf13/cobra"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	"github.com/daoyou-zhang/daoyoucode/internal/core/fallback"
	"github.com/daoyou-zhang/daoyoucode/internal/output"
)

// These commands show the configured state of a fresh runtime. Live
// counters of a running server are served at /v1/resilience.

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect rate limit configuration",
}

var rateLimitShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show global, per-user and per-model limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(a *app.App) output.Report {
			return output.RateLimitReport(a.Limiter.Stats())
		})
	},
}

var fallbackCmd = &cobra.Command{
	Use:   "fallback",
	Short: "Inspect fallback chains",
}

var fallbackShowCmd = &cobra.Command{
	Use:   "show [model]",
	Short: "Show fallback chains, or the chain for one model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(a *app.App) output.Report {
			if len(args) == 1 {
				info := a.Fallback.FallbackInfo(args[0])
				return output.FallbackReport([]fallback.Info{info}, a.Fallback.Stats())
			}
			return output.FallbackReport(a.Fallback.Chains(), a.Fallback.Stats())
		})
	},
}

var resilienceCmd = &cobra.Command{
	Use:   "resilience",
	Short: "Show rate limits, fallback chains and breaker settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(a *app.App) output.Report {
			res := a.Resilience()
			return output.Merge("Resilience", map[string]output.Report{
				"rate_limits": output.RateLimitReport(res.RateLimits),
				"fallbacks":   output.FallbackReport(res.Fallbacks, res.FallbackStats),
				"breakers":    output.BreakerReport(res.Breakers, res.BreakerConfig),
			}, "rate_limits", "fallbacks", "breakers")
		})
	},
}

func withRuntime(cmd *cobra.Command, build func(a *app.App) output.Report) error {
	a, err := buildApp(cmd.Context(), app.Options{SkipStore: true})
	if err != nil {
		return err
	}
	defer closeApp(a)
	return writeReport(cmd, build(a))
}

func init() {
	for _, c := range []*cobra.Command{rateLimitShowCmd, fallbackShowCmd, resilienceCmd} {
		addOutputFlags(c)
	}
	rateLimitCmd.AddCommand(rateLimitShowCmd)
	fallbackCmd.AddCommand(fallbackShowCmd)
	rootCmd.AddCommand(rateLimitCmd)
	rootCmd.AddCommand(fallbackCmd)
	rootCmd.AddCommand(resilienceCmd)
}
