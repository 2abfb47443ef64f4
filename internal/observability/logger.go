// Package observability owns the process loggers and the telemetry exporter.
package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

var (
	// CLILogger writes human-oriented output for commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger writes JSON lines for the HTTP service (STRUCTURED profile).
	ServerLogger *logging.Logger
)

// ServerLoggerOptions configures the structured logger used by `serve`.
type ServerLoggerOptions struct {
	Service     string
	Level       string
	Namespace   string
	Environment string
}

// InitCLILogger installs the CLI logger. Verbose lowers the level to DEBUG.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger installs the structured server logger with the
// correlation middleware enabled, so request IDs flow into every line.
func InitServerLogger(opts ServerLoggerOptions) {
	env := strings.TrimSpace(opts.Environment)
	if env == "" {
		env = "production"
	}

	static := map[string]any{}
	if opts.Namespace != "" {
		static["namespace"] = opts.Namespace
	}

	logger, err := logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: severity(opts.Level),
		Service:      opts.Service,
		Environment:  env,
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	})
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// Default returns the server logger when serving, otherwise the CLI logger.
// It may return nil before either has been initialized.
func Default() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// ExecutionFields are the fields attached to every skill execution log line.
// Empty values are omitted.
func ExecutionFields(executionID, skill, mode, userID string) []zap.Field {
	fields := make([]zap.Field, 0, 4)
	for _, kv := range [][2]string{
		{"execution_id", executionID},
		{"skill", skill},
		{"mode", mode},
		{"user_id", userID},
	} {
		if kv[1] != "" {
			fields = append(fields, zap.String(kv[0], kv[1]))
		}
	}
	return fields
}

// severity maps config levels onto gofulmen severities; unknown means INFO.
func severity(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// fatal runs before any logger exists, so it writes straight to stderr.
func fatal(code foundry.ExitCode, msg string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(code))
}
