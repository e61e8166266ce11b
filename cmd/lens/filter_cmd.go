package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/issuelens/internal/filter"
	"github.com/steveyegge/issuelens/internal/settings"
	"github.com/steveyegge/issuelens/internal/ui"
)

var filterCmd = &cobra.Command{
	Use:     "filter",
	GroupID: "setup",
	Short:   "Manage saved issue filters",
	Long: `Saved filters live in the settings file and can be applied to show, stats
and watch with --filter <name>. The filter named "default" is used when no
name is given.`,
}

func filterName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return settings.DefaultFilter
}

var filterSaveCmd = &cobra.Command{
	Use:   "save [name]",
	Short: "Save the given filter flags under a name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := resolveCriteria(cmd, time.Now())
		if err != nil {
			return err
		}
		store, err := openSettings()
		if err != nil {
			return err
		}
		name := filterName(args)
		if err := store.SaveFilter(name, c); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]any{"name": name, "criteria": c})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Saved filter %s\n", ui.RenderPassIcon(), name)
		return nil
	},
}

var filterShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a saved filter",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSettings()
		if err != nil {
			return err
		}
		c, err := store.LoadFilter(filterName(args))
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), c)
		}
		printCriteria(cmd, c)
		return nil
	},
}

func printCriteria(cmd *cobra.Command, c filter.Criteria) {
	out := cmd.OutOrStdout()
	if c.IsEmpty() {
		fmt.Fprintln(out, ui.RenderMuted("(no constraints)"))
		return
	}
	lists := []struct {
		label  string
		values []string
	}{
		{"status", c.Statuses},
		{"severity", c.Severities},
		{"resolution", c.Resolutions},
		{"assignee", c.Assignees},
		{"rule", c.Rules},
		{"component", c.Components},
		{"message", c.Messages},
		{"tag", c.Tags},
	}
	for _, l := range lists {
		if len(l.values) > 0 {
			fmt.Fprintf(out, "%-15s %v\n", l.label+":", l.values)
		}
	}
	if c.CreatedAfter != "" {
		fmt.Fprintf(out, "%-15s %s\n", "created-after:", c.CreatedAfter)
	}
	if c.CreatedBefore != "" {
		fmt.Fprintf(out, "%-15s %s\n", "created-before:", c.CreatedBefore)
	}
	if c.NewOnly {
		fmt.Fprintf(out, "%-15s since %s\n", "new:", c.NewSince.Format(time.RFC3339))
	}
	if c.ModifiedLinesOnly {
		fmt.Fprintf(out, "%-15s yes\n", "modified-only:")
	}
}

var filterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved filters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openSettings()
		if err != nil {
			return err
		}
		names, err := store.FilterNames()
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), names)
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("No saved filters"))
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var filterClearCmd = &cobra.Command{
	Use:   "clear [name]",
	Short: "Delete a saved filter",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSettings()
		if err != nil {
			return err
		}
		name := filterName(args)
		if _, err := store.LoadFilter(name); errors.Is(err, settings.ErrNotFound) {
			return err
		}
		if err := store.DeleteFilter(name); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted filter %s\n", ui.RenderPassIcon(), name)
		}
		return nil
	},
}

func init() {
	registerFilterFlags(filterSaveCmd)
	filterCmd.AddCommand(filterSaveCmd, filterShowCmd, filterListCmd, filterClearCmd)
	rootCmd.AddCommand(filterCmd)
}
