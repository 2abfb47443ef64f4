package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	"github.com/daoyou-zhang/daoyoucode/internal/core/engine"
	errwrap "github.com/daoyou-zhang/daoyoucode/internal/errors"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
	"github.com/daoyou-zhang/daoyoucode/internal/output"
)

var (
	execInputs    []string
	execInputFile string
	execUser      string
	execTimeout   time.Duration
	execNoHistory bool
	execSummary   string
)

var execCmd = &cobra.Command{
	Use:   "exec <skill>",
	Short: "Execute a skill in full mode",
	Long: `Execute a skill against its configured model.

Inputs come from --input-file (a JSON object) and repeated --input key=value
flags, which win over the file. A value of @path reads the file contents,
so --input code=@main.go sends main.go as the code input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSkill(cmd, args[0], "")
	},
}

var followupCmd = &cobra.Command{
	Use:   "followup <skill>",
	Short: "Execute a skill as a followup turn",
	Long: `Execute a skill in followup mode. The request uses the next cheaper
model tier and carries --summary as prior context in place of the full
history. A followup needs a summary or a message input.`,
	Args: cobra.ExactArgs(1),
}

func runSkill(cmd *cobra.Command, name string, summary string) error {
	ctx := cmd.Context()
	input, err := parseInputs(execInputs, execInputFile)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, app.Options{SkipStore: execNoHistory})
	if err != nil {
		return err
	}
	defer closeApp(a)

	opts := engine.ExecuteOptions{UserID: strings.TrimSpace(execUser), Timeout: execTimeout}
	followup := cmd == followupCmd
	observability.CLILogger.Debug("Executing skill",
		zap.String("skill", name),
		zap.Bool("followup", followup),
		zap.String("user", opts.UserID),
		zap.Int("inputs", len(input)))

	var execErr error
	var report output.Report
	if followup {
		result, err := a.Followup(ctx, name, input, summary, opts)
		report, execErr = output.ResultReport(result), err
	} else {
		result, err := a.Execute(ctx, name, input, opts)
		report, execErr = output.ResultReport(result), err
	}
	if execErr != nil {
		return errwrap.FromExecutionError(ctx, execErr)
	}
	return writeReport(cmd, report)
}

// parseInputs merges a JSON object file with key=value pairs.
func parseInputs(pairs []string, file string) (map[string]any, error) {
	input := map[string]any{}
	if path := strings.TrimSpace(file); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("input file must hold a JSON object: %w", err)
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --input %q: expected key=value", pair)
		}
		if strings.HasPrefix(value, "@") {
			data, err := os.ReadFile(filepath.Clean(strings.TrimPrefix(value, "@")))
			if err != nil {
				return nil, fmt.Errorf("read input %s: %w", key, err)
			}
			value = string(data)
		}
		input[key] = value
	}
	return input, nil
}

func addExecFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&execInputs, "input", "i", nil, "Skill input as key=value (repeatable; @path reads a file)")
	cmd.Flags().StringVar(&execInputFile, "input-file", "", "JSON object with skill inputs")
	cmd.Flags().StringVar(&execUser, "user", "", "User id for per-user rate limits")
	cmd.Flags().DurationVar(&execTimeout, "timeout", 0, "Overall deadline covering admission and provider calls (default executor.default_timeout)")
	cmd.Flags().BoolVar(&execNoHistory, "no-history", false, "Do not record this execution")
	addOutputFlags(cmd)
}

func init() {
	// Assigned here: runSkill refers to followupCmd, so setting RunE in the
	// declaration would form an initialization cycle.
	followupCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runSkill(cmd, args[0], execSummary)
	}
	addExecFlags(execCmd)
	addExecFlags(followupCmd)
	followupCmd.Flags().StringVar(&execSummary, "summary", "", "Summary of the conversation so far")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(followupCmd)
}
