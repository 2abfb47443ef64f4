package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/config"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()
		log := observability.CLILogger

		identity := GetAppIdentity()
		log.Info("=== " + identity.BinaryName + " Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := config.ConfigFileUsed(cmd.Context(), cfgFile)
		if configFile == "" {
			configFile = "(none, defaults and environment)"
		}
		log.Info("Configuration:")
		log.Info("  Config File:    " + configFile)
		log.Info("  Server:         " + fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  DB URL:         " + cfg.Store.URL)
		} else {
			log.Info("  DB Path:        " + cfg.Store.Path)
		}
		log.Info(fmt.Sprintf("  History:        %t", cfg.History.Enabled))
		log.Info(fmt.Sprintf("  Auth:           %t", cfg.Auth.Enabled))
		log.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		log.Info("")

		log.Info("Execution:")
		log.Info("  Default Timeout:  " + cfg.Executor.DefaultTimeout.String())
		skillsDir := cfg.Skills.Dir
		if skillsDir == "" {
			skillsDir = "(built-in only)"
		}
		log.Info("  Skills Dir:       " + skillsDir)
		log.Info("")

		res := cfg.Resilience
		log.Info("Resilience:")
		if res.File != "" {
			log.Info("  File:             " + res.File)
		}
		if res.RateLimits.Global != nil {
			log.Info(fmt.Sprintf("  Global Bucket:    capacity=%d refill=%.2f/s", res.RateLimits.Global.Capacity, res.RateLimits.Global.RefillRate))
		}
		if res.RateLimits.User != nil {
			log.Info(fmt.Sprintf("  User Bucket:      capacity=%d refill=%.2f/s", res.RateLimits.User.Capacity, res.RateLimits.User.RefillRate))
		}
		log.Info(fmt.Sprintf("  User Overrides:   %d", len(res.RateLimits.Users)))
		log.Info(fmt.Sprintf("  Model Windows:    %d", len(res.RateLimits.Models)))
		log.Info(fmt.Sprintf("  Fallback Chains:  %d configured", len(res.Fallbacks)))
		log.Info(fmt.Sprintf("  Breaker:          failures=%d cooldown=%s successes=%d",
			res.Breaker.FailureThreshold, res.Breaker.Cooldown, res.Breaker.SuccessThreshold))
		log.Info("")

		log.Info("AILink:")
		log.Info("  Default Provider: " + cfg.AILink.DefaultProvider)
		log.Info("  Default Timeout:  " + cfg.AILink.DefaultTimeout.String())
		log.Info(fmt.Sprintf("  Cache:            enabled=%t persist=%t", cfg.AILink.Cache.Enabled, cfg.AILink.Cache.Persist))
		ids := make([]string, 0, len(cfg.AILink.Providers))
		for id := range cfg.AILink.Providers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			p := cfg.AILink.Providers[id]
			keyState := "(not set)"
			if len(p.Credentials) > 0 && strings.TrimSpace(p.Credentials[0].APIKey) != "" {
				keyState = "(set)"
			}
			log.Info(fmt.Sprintf("  %s: enabled=%t ai_provider=%s api_key=%s", id, p.Enabled, p.AIProvider, keyState))
		}
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
