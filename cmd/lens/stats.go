package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/issuelens/internal/orchestrator"
	"github.com/steveyegge/issuelens/internal/types"
	"github.com/steveyegge/issuelens/internal/ui"
)

type statsResult struct {
	Files []fileStats       `json:"files"`
	Total types.Statistics `json:"total"`
}

type fileStats struct {
	Resource string           `json:"resource"`
	Stats    types.Statistics `json:"stats"`
	Outcome  string           `json:"outcome"`
	Error    string           `json:"error,omitempty"`
}

// addStats accumulates b into a.
func addStats(a *types.Statistics, b types.Statistics) {
	a.Count += b.Count
	a.DebtMinutes += b.DebtMinutes
	for sev, n := range b.BySeverity {
		a.BySeverity[sev] += n
	}
	for st, n := range b.ByStatus {
		a.ByStatus[st] += n
	}
}

var statsCmd = &cobra.Command{
	Use:     "stats <file>...",
	GroupID: "issues",
	Short:   "Analyze files in parallel and summarise their issues",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		criteria, err := resolveCriteria(cmd, time.Now())
		if err != nil {
			return err
		}
		ws, err := newWorkspace(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = ws.orch.Close() }()
		ws.orch.SetCriteria(criteria)

		keys := make([]string, 0, len(args))
		for _, arg := range args {
			key, err := ws.key(arg)
			if err != nil {
				return err
			}
			if err := ws.loadBuffer(key); err != nil {
				return err
			}
			keys = append(keys, key)
		}

		// Per-file failures are reported below; the batch never stops early.
		if err := ws.orch.AnalyzeAll(ctx, keys, orchestrator.ModeFull); err != nil {
			logger.Warn("some files failed to analyze", "error", err)
		}

		res := statsResult{Total: types.NewStatistics()}
		for _, key := range keys {
			fs := fileStats{Resource: key, Stats: ws.orch.Statistics(key)}
			diag := ws.orch.Diagnostics(key)
			fs.Outcome = diag.Outcome.String()
			if diag.Err != nil {
				fs.Error = diag.Err.Error()
			}
			addStats(&res.Total, fs.Stats)
			res.Files = append(res.Files, fs)
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), res)
		}
		var buf bytes.Buffer
		hpd := ws.settings.HoursPerDay
		for _, fs := range res.Files {
			icon := ui.RenderPassIcon()
			if fs.Error != "" {
				icon = ui.RenderFailIcon()
			}
			fmt.Fprintf(&buf, "%s %s  %d issues", icon, fs.Resource, fs.Stats.Count)
			if fs.Error != "" {
				fmt.Fprintf(&buf, "  %s", ui.RenderMuted(fs.Error))
			}
			buf.WriteString("\n")
		}
		buf.WriteString(ui.RenderSeparator() + "\n")
		if err := ui.RenderStats(&buf, res.Total, hpd); err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	},
}

func init() {
	registerFilterFlags(statsCmd)
	rootCmd.AddCommand(statsCmd)
}
