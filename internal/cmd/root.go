package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	"github.com/daoyou-zhang/daoyoucode/internal/appid"
	"github.com/daoyou-zhang/daoyoucode/internal/config"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string

	// App identity loaded from .fulmen/app.yaml
	appIdentity *appidentity.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the loaded app identity (only valid after initConfig)
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	// NOTE: initConfig() overwrites these from app identity.
	Use:   filepath.Base(os.Args[0]),
	Short: "Resilient skill execution for AI coding assistants",
	Long: `Run prompt skills against LLM providers behind rate limits,
fallback chains and circuit breakers.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep config loading from emitting metrics to stdout; serve installs
	// the real telemetry system.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	// Load app identity early for help text (before cobra processes --help)
	if identity, err := appid.Get(context.Background()); err == nil && identity != nil {
		appIdentity = identity
		applyIdentity(identity)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults to app identity config path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace provider requests/responses to an NDJSON file")
}

// initConfig loads the app identity and the CLI logger. Configuration itself
// is loaded per command so flags can layer on top of it.
func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity from .fulmen/app.yaml", err)
	}
	appIdentity = identity
	applyIdentity(identity)

	observability.InitCLILogger(appIdentity.BinaryName, verbose)
}

func applyIdentity(identity *appidentity.Identity) {
	if identity == nil {
		return
	}
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
		rootCmd.Long = fmt.Sprintf("%s - %s\n\nUse the subcommands to perform specific operations.", identity.BinaryName, identity.Description)
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

// loadConfig applies the --config flag and any runtime overrides on top of
// defaults, files and environment.
func loadConfig(ctx context.Context, overrides ...map[string]any) (*config.Config, error) {
	cfg, err := config.Load(ctx, config.LoadOptions{File: cfgFile, Overrides: overrides})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		observability.CLILogger.Debug("Configuration loaded",
			zap.String("file", config.ConfigFileUsed(ctx, cfgFile)),
			zap.String("store", cfg.Store.Path),
			zap.String("skills_dir", cfg.Skills.Dir))
	}
	return cfg, nil
}

// buildApp loads configuration and wires the runtime for a CLI command.
// Callers must Close the returned app.
func buildApp(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = observability.CLILogger
	}
	if opts.TracePath == "" {
		opts.TracePath = traceFile
	}
	a, err := app.Build(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	if traceFile != "" {
		observability.CLILogger.Debug("Provider tracing enabled", zap.String("file", traceFile))
	}
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		observability.CLILogger.Warn("Failed to close runtime", zap.Error(err))
	}
}
