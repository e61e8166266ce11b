package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/issuelens/internal/sourcediff"
	"github.com/steveyegge/issuelens/internal/ui"
)

var diffCmd = &cobra.Command{
	Use:     "diff <reference-file> <current-file>",
	GroupID: "issues",
	Short:   "Print the line runs between two versions of a file",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := os.ReadFile(args[0]) // #nosec G304 -- user-selected file
		if err != nil {
			return err
		}
		cur, err := os.ReadFile(args[1]) // #nosec G304 -- user-selected file
		if err != nil {
			return err
		}
		report, err := sourcediff.Diff(string(ref), string(cur))
		if err != nil {
			return fmt.Errorf("cannot correlate %s and %s: %w", args[0], args[1], err)
		}

		changedOnly, _ := cmd.Flags().GetBool("changed")
		if changedOnly {
			report = &sourcediff.Report{Runs: report.ChangedRuns(), RefLines: report.RefLines, CurLines: report.CurLines}
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), report)
		}
		return ui.RenderReport(cmd.OutOrStdout(), report)
	},
}

func init() {
	diffCmd.Flags().Bool("changed", false, "Only print inserted, deleted and modified runs")
	rootCmd.AddCommand(diffCmd)
}
