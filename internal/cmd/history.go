package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/core/engine"
	"github.com/daoyou-zhang/daoyoucode/internal/core/store"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
	"github.com/daoyou-zhang/daoyoucode/internal/output"
)

var (
	historyAll       bool
	historySkill     string
	historyUser      string
	historyOlderThan time.Duration
	historyLimit     int
	historyDryRun    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and prune recorded executions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded executions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		records, err := db.ListExecutions(cmd.Context(), historyQuery(false))
		if err != nil {
			return err
		}
		return writeReport(cmd, output.HistoryReport(records))
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete recorded executions",
	Long:  "Delete recorded executions. One of --all, --skill, --user or --older-than is required.",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := historyQuery(true)
		if err := query.ValidateForDelete(); err != nil {
			return err
		}

		db, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if historyDryRun {
			count, err := db.CountExecutions(cmd.Context(), query)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "would delete %d executions\n", count)
			return err
		}

		deleted, err := db.PruneExecutions(cmd.Context(), query)
		if err != nil {
			return err
		}
		observability.CLILogger.Info("Pruned execution history", zap.Int64("deleted", deleted))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d executions\n", deleted)
		return err
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats [skill]",
	Short: "Show execution statistics from recorded history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			historySkill = args[0]
		}

		db, err := openHistory(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		records, err := db.ListExecutions(cmd.Context(), historyQuery(false))
		if err != nil {
			return err
		}
		stats := engine.Aggregate(records)

		if name := strings.TrimSpace(historySkill); name != "" {
			sk, ok := stats.Skills[name]
			if !ok {
				return fmt.Errorf("no executions recorded for skill %q", name)
			}
			return writeReport(cmd, output.SkillStatsReport(name, sk))
		}
		return writeReport(cmd, output.StatsReport(stats))
	},
}

func historyQuery(forDelete bool) store.ExecutionQuery {
	query := store.ExecutionQuery{
		All:    historyAll,
		Skill:  strings.TrimSpace(historySkill),
		UserID: strings.TrimSpace(historyUser),
		Limit:  historyLimit,
	}
	if historyOlderThan > 0 {
		query.Before = time.Now().Add(-historyOlderThan)
	}
	if !forDelete && query.Skill == "" && query.UserID == "" && query.Before.IsZero() {
		query.All = true
	}
	return query
}

func addHistoryFilters(cmd *cobra.Command) {
	cmd.Flags().StringVar(&historySkill, "skill", "", "Only executions of this skill")
	cmd.Flags().StringVar(&historyUser, "user", "", "Only executions by this user")
	cmd.Flags().DurationVar(&historyOlderThan, "older-than", 0, "Only executions started before now minus this duration")
}

func init() {
	addHistoryFilters(historyListCmd)
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of executions to list")
	addOutputFlags(historyListCmd)

	addHistoryFilters(historyPruneCmd)
	historyPruneCmd.Flags().BoolVar(&historyAll, "all", false, "Delete every recorded execution")
	historyPruneCmd.Flags().BoolVar(&historyDryRun, "dry-run", false, "Only count matching executions")

	statsCmd.Flags().StringVar(&historyUser, "user", "", "Only executions by this user")
	statsCmd.Flags().DurationVar(&historyOlderThan, "older-than", 0, "Only executions started before now minus this duration")
	statsCmd.Flags().IntVar(&historyLimit, "limit", 10000, "Maximum number of executions to aggregate")
	addOutputFlags(statsCmd)

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
}

// openHistory opens the configured store for the history commands.
func openHistory(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		observability.CLILogger.Warn("history.enabled is false; showing previously recorded executions only")
	}
	return store.Open(ctx, cfg.Store)
}
