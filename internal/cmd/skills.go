package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	"github.com/daoyou-zhang/daoyoucode/internal/output"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect registered skills",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in and configured skills",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), app.Options{SkipStore: true})
		if err != nil {
			return err
		}
		defer closeApp(a)
		return writeReport(cmd, output.SkillsReport(a.ListSkills()))
	},
}

var skillsShowCmd = &cobra.Command{
	Use:   "show <skill>",
	Short: "Show one skill definition as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), app.Options{SkipStore: true})
		if err != nil {
			return err
		}
		defer closeApp(a)

		sk, err := a.Skills.Get(args[0])
		if err != nil {
			return err
		}
		rendered, err := output.Render(output.FormatJSON, output.Report{Value: sk})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

func init() {
	addOutputFlags(skillsListCmd)
	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsShowCmd)
	rootCmd.AddCommand(skillsCmd)
}
