package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/issuelens/internal/filter"
	"github.com/steveyegge/issuelens/internal/orchestrator"
	"github.com/steveyegge/issuelens/internal/remap"
	"github.com/steveyegge/issuelens/internal/types"
	"github.com/steveyegge/issuelens/internal/ui"
)

// fileReport is the JSON shape of one resource's view.
type fileReport struct {
	Resource  string             `json:"resource"`
	Issues    []remap.Positioned `json:"issues"`
	Stats     types.Statistics   `json:"stats"`
	Warnings  []string           `json:"warnings,omitempty"`
	DiffError string             `json:"diff_error,omitempty"`
	Outcome   string             `json:"outcome"`
	Error     string             `json:"error,omitempty"`
}

func buildReport(ws *workspace, key string, sortBy []types.IssueSortOption) fileReport {
	rep := fileReport{Resource: key, Issues: []remap.Positioned{}}
	view, ok := ws.orch.View(key)
	if ok {
		rep.Issues = append(rep.Issues, view.Displayed...)
		filter.Sort(rep.Issues, sortBy)
		rep.Stats = view.Stats
		for _, w := range view.Warnings {
			rep.Warnings = append(rep.Warnings, w.Error())
		}
		if view.DiffErr != nil {
			rep.DiffError = view.DiffErr.Error()
		}
	} else {
		rep.Stats = types.NewStatistics()
	}
	diag := ws.orch.Diagnostics(key)
	rep.Outcome = diag.Outcome.String()
	if diag.Err != nil {
		rep.Error = diag.Err.Error()
	}
	return rep
}

func renderReport(buf *bytes.Buffer, rep fileReport, hoursPerDay, width int) error {
	if rep.Error != "" {
		fmt.Fprintf(buf, "%s %s: %s\n", ui.RenderFailIcon(), rep.Outcome, rep.Error)
	}
	if rep.DiffError != "" {
		fmt.Fprintf(buf, "%s lines not remapped: %s\n", ui.RenderWarnIcon(), rep.DiffError)
	}
	for _, w := range rep.Warnings {
		fmt.Fprintf(buf, "%s %s\n", ui.RenderWarnIcon(), w)
	}
	if err := ui.RenderIssueList(buf, rep.Resource, rep.Issues, ui.ListOptions{Width: width, HoursPerDay: hoursPerDay}); err != nil {
		return err
	}
	return ui.RenderStats(buf, rep.Stats, hoursPerDay)
}

var showCmd = &cobra.Command{
	Use:     "show <file>",
	GroupID: "issues",
	Short:   "Show a file's issues on the lines of its working copy",
	Long: `Run the analyzer for a file, then remap every issue from the reference
snapshot onto the working copy and print the filtered list.

Examples:
  lens show src/app.go
  lens show src/app.go --severity BLOCKER,CRITICAL --modified-only
  lens show src/app.go --created-after "last week" --sort severity,line`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		modeName, _ := cmd.Flags().GetString("mode")
		mode, err := orchestrator.ParseMode(modeName)
		if err != nil {
			return err
		}
		criteria, err := resolveCriteria(cmd, time.Now())
		if err != nil {
			return err
		}
		sortRaw, _ := cmd.Flags().GetString("sort")
		noPager, _ := cmd.Flags().GetBool("no-pager")

		ws, err := newWorkspace(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = ws.orch.Close() }()

		key, err := ws.key(args[0])
		if err != nil {
			return err
		}
		ws.orch.SetCriteria(criteria)
		if err := ws.loadBuffer(key); err != nil {
			return err
		}
		if _, err := ws.orch.Run(ctx, orchestrator.Request{Resource: key, Mode: mode, Trigger: orchestrator.TriggerUser}); err != nil {
			logger.Warn("analysis did not complete", "resource", key, "error", err)
		}

		rep := buildReport(ws, key, types.ParseIssueSortOrder(sortRaw))
		var buf bytes.Buffer
		if jsonOutput {
			err = outputJSON(&buf, rep)
		} else {
			err = renderReport(&buf, rep, ws.settings.HoursPerDay, ui.TerminalWidth())
		}
		if err != nil {
			return err
		}
		return ui.ToPager(cmd.OutOrStdout(), buf.String(), ui.PagerOptions{NoPager: noPager, JSON: jsonOutput})
	},
}

func init() {
	registerFilterFlags(showCmd)
	showCmd.Flags().String("mode", "full", "Analysis mode (full, incremental, exclusions)")
	showCmd.Flags().String("sort", "", "Sort order, e.g. severity,line or created:desc (default: line)")
	showCmd.Flags().Bool("no-pager", false, "Disable pager output")
	rootCmd.AddCommand(showCmd)
}
