package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/issuelens/internal/actions"
	"github.com/steveyegge/issuelens/internal/orchestrator"
	"github.com/steveyegge/issuelens/internal/remap"
	"github.com/steveyegge/issuelens/internal/types"
	"github.com/steveyegge/issuelens/internal/ui"
)

// selectIssues picks displayed issues by current line and rule. Zero values
// match everything.
func selectIssues(displayed []remap.Positioned, line int, rule string) []*types.Issue {
	var out []*types.Issue
	for _, p := range displayed {
		if line > 0 && p.CurrentLine != line {
			continue
		}
		if rule != "" && !strings.EqualFold(p.Issue.Rule, rule) {
			continue
		}
		out = append(out, p.Issue)
	}
	return out
}

type actResult struct {
	Action  string     `json:"action"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	View    fileReport `json:"view"`
}

var actCmd = &cobra.Command{
	Use:     "act [action] <file>",
	GroupID: "issues",
	Short:   "Apply an issue action to issues on a line of a file",
	Long: `Apply an action (mark-false-positive, mark-wont-fix, reopen, confirm,
assign, add-tag) to the displayed issues of a file selected by --line and
--rule. When tracker.command is configured the change is sent to the tracker
first; the cached issues only change if the tracker accepts it.

Use --list with just a file to print the actions that apply.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootCtx
		list, _ := cmd.Flags().GetBool("list")
		line, _ := cmd.Flags().GetInt("line")
		rule, _ := cmd.Flags().GetString("rule")
		var params actions.Params
		params.Assignee, _ = cmd.Flags().GetString("assignee")
		params.Tag, _ = cmd.Flags().GetString("tag")
		params.Comment, _ = cmd.Flags().GetString("comment")

		var actionID, file string
		switch {
		case list && len(args) == 1:
			file = args[0]
		case len(args) == 2:
			actionID, file = args[0], args[1]
		default:
			return fmt.Errorf("expected an action and a file (actions: %s)", strings.Join(actions.IDs(), ", "))
		}
		if actionID != "" {
			if _, err := actions.Lookup(actionID); err != nil {
				return err
			}
		}

		ws, err := newWorkspace(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = ws.orch.Close() }()
		key, err := ws.key(file)
		if err != nil {
			return err
		}
		if err := ws.loadBuffer(key); err != nil {
			return err
		}
		if _, err := ws.orch.Run(ctx, orchestrator.Request{Resource: key, Mode: orchestrator.ModeFull, Trigger: orchestrator.TriggerUser}); err != nil {
			return err
		}

		selected := selectIssues(ws.orch.DisplayedIssues(key), line, rule)
		if len(selected) == 0 {
			return fmt.Errorf("no issues on %s match --line %d --rule %q", key, line, rule)
		}

		if list {
			available := actions.Available(selected)
			if jsonOutput {
				ids := make([]string, len(available))
				for i, d := range available {
					ids[i] = d.ID
				}
				return outputJSON(cmd.OutOrStdout(), ids)
			}
			for _, d := range available {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", d.ID, ui.RenderMuted(d.Title))
			}
			return nil
		}

		runner := &actions.Runner{Local: ws.orch, Remote: ws.remote, Now: time.Now, Logger: logger}
		res, err := runner.Execute(ctx, actionID, key, selected, params)
		if err != nil {
			if errors.Is(err, actions.ErrNotApplicable) {
				return fmt.Errorf("%w (%d issues selected)", err, len(selected))
			}
			return err
		}

		out := actResult{Action: res.Action, Updated: res.Updated, Skipped: res.Skipped, View: buildReport(ws, key, nil)}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), out)
		}
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "%s %s: %d updated, %d skipped\n", ui.RenderPassIcon(), res.Action, res.Updated, res.Skipped)
		if err := renderReport(&buf, out.View, ws.settings.HoursPerDay, ui.TerminalWidth()); err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	},
}

func init() {
	actCmd.Flags().Bool("list", false, "List the actions that apply to the selected issues")
	actCmd.Flags().Int("line", 0, "Select issues on this line of the working copy")
	actCmd.Flags().String("rule", "", "Select issues reported by this rule")
	actCmd.Flags().String("assignee", "", "Assignee for the assign action")
	actCmd.Flags().String("tag", "", "Tag for the add-tag action")
	actCmd.Flags().String("comment", "", "Comment sent to the issue tracker")
	rootCmd.AddCommand(actCmd)
}
