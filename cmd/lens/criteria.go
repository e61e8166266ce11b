package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/issuelens/internal/filter"
	"github.com/steveyegge/issuelens/internal/timeparsing"
)

// registerFilterFlags adds the issue filter flags shared by show, stats,
// watch and filter save.
func registerFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("status", nil, "Status filter (OPEN, CONFIRMED, REOPENED, RESOLVED, CLOSED)")
	f.StringSlice("severity", nil, "Severity filter (BLOCKER, CRITICAL, MAJOR, MINOR, INFO)")
	f.StringSlice("resolution", nil, "Resolution filter (FIXED, FALSE-POSITIVE, WONTFIX, REMOVED)")
	f.StringSlice("assignee", nil, "Assignee substring filter")
	f.StringSlice("rule", nil, "Rule substring filter")
	f.StringSlice("component", nil, "Resource path substring filter")
	f.StringSlice("message", nil, "Message substring filter")
	f.StringSlice("tag", nil, "Tag filter")
	f.String("created-after", "", "Only issues created on or after (e.g. -7d, 'last week', 2026-01-02)")
	f.String("created-before", "", "Only issues created on or before")
	f.Bool("new", false, "Only issues created since --new-since")
	f.String("new-since", "", "Start of the new-issue window (default: today)")
	f.Bool("modified-only", false, "Only issues on lines changed since the reference")
	f.String("filter", "", "Start from a saved filter")
}

// criteriaFromFlags merges the flags set on cmd over base.
func criteriaFromFlags(cmd *cobra.Command, base filter.Criteria, now time.Time) (filter.Criteria, error) {
	c := base
	f := cmd.Flags()
	slices := []struct {
		name string
		dst  *[]string
	}{
		{"status", &c.Statuses},
		{"severity", &c.Severities},
		{"resolution", &c.Resolutions},
		{"assignee", &c.Assignees},
		{"rule", &c.Rules},
		{"component", &c.Components},
		{"message", &c.Messages},
		{"tag", &c.Tags},
	}
	for _, s := range slices {
		if f.Changed(s.name) {
			*s.dst, _ = f.GetStringSlice(s.name)
		}
	}
	if f.Changed("created-after") {
		c.CreatedAfter, _ = f.GetString("created-after")
	}
	if f.Changed("created-before") {
		c.CreatedBefore, _ = f.GetString("created-before")
	}
	if f.Changed("modified-only") {
		c.ModifiedLinesOnly, _ = f.GetBool("modified-only")
	}
	if f.Changed("new") {
		c.NewOnly, _ = f.GetBool("new")
	}
	if f.Changed("new-since") {
		raw, _ := f.GetString("new-since")
		since, err := timeparsing.ParseBound(raw, now, false)
		if err != nil {
			return c, fmt.Errorf("--new-since: %w", err)
		}
		c.NewSince = since
	}
	if c.NewOnly && c.NewSince.IsZero() {
		y, m, d := now.Date()
		c.NewSince = time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	}
	return c, nil
}

// resolveCriteria loads --filter (if any) from the settings store and
// applies the remaining flags on top.
func resolveCriteria(cmd *cobra.Command, now time.Time) (filter.Criteria, error) {
	var base filter.Criteria
	if name, _ := cmd.Flags().GetString("filter"); name != "" {
		store, err := openSettings()
		if err != nil {
			return base, err
		}
		if base, err = store.LoadFilter(name); err != nil {
			return base, err
		}
	}
	return criteriaFromFlags(cmd, base, now)
}
