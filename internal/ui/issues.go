package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/steveyegge/issuelens/internal/filter"
	"github.com/steveyegge/issuelens/internal/remap"
	"github.com/steveyegge/issuelens/internal/sourcediff"
	"github.com/steveyegge/issuelens/internal/types"
)

// ListOptions controls issue list rendering.
type ListOptions struct {
	Width       int // Wrap width for messages; 0 disables wrapping
	HoursPerDay int
}

// FormatLine renders the current line number column. File-level issues show "file".
func FormatLine(p remap.Positioned) string {
	if p.Issue.IsFileLevel() {
		return "file"
	}
	return strconv.Itoa(p.CurrentLine)
}

// RenderIssue renders one issue as a single row.
func RenderIssue(p remap.Positioned, opts ListOptions) string {
	var b strings.Builder
	marker := " "
	if p.InChangedRegion {
		marker = RenderWarn(IconChanged)
	}
	b.WriteString(marker)
	b.WriteString(" ")
	b.WriteString(padLeft(FormatLine(p), 5))
	b.WriteString("  ")
	b.WriteString(RenderSeverity(p.Issue.Severity))
	b.WriteString(" ")
	b.WriteString(RenderAccent(p.Issue.Rule))

	msg := p.Issue.Message
	if opts.Width > 0 {
		msg = TruncateSimple(msg, max(opts.Width-40, 20))
	}
	if msg != "" {
		b.WriteString("  ")
		b.WriteString(msg)
	}

	var extras []string
	if p.Issue.Debt != "" {
		extras = append(extras, filter.FormatDebt(filter.ParseDebt(p.Issue.Debt, opts.HoursPerDay), opts.HoursPerDay))
	}
	if p.Issue.Status != "" && p.Issue.Status != types.StatusOpen {
		status := string(p.Issue.Status)
		if p.Issue.Resolution != "" {
			status += "/" + string(p.Issue.Resolution)
		}
		extras = append(extras, status)
	}
	if p.Issue.Assignee != "" {
		extras = append(extras, "@"+p.Issue.Assignee)
	}
	if len(extras) > 0 {
		b.WriteString("  ")
		b.WriteString(RenderMuted("[" + strings.Join(extras, ", ") + "]"))
	}
	return b.String()
}

// RenderIssueList writes a resource header followed by one row per issue.
func RenderIssueList(w io.Writer, resource string, issues []remap.Positioned, opts ListOptions) error {
	if _, err := fmt.Fprintf(w, "%s %s\n", RenderCategory("issues"), resource); err != nil {
		return err
	}
	if len(issues) == 0 {
		_, err := fmt.Fprintf(w, "  %s no issues\n", RenderPassIcon())
		return err
	}
	for _, p := range issues {
		if _, err := fmt.Fprintln(w, RenderIssue(p, opts)); err != nil {
			return err
		}
	}
	return nil
}

// RenderStats writes the count, the per-severity buckets and the total debt.
func RenderStats(w io.Writer, stats types.Statistics, hoursPerDay int) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d issues, debt %s\n", RenderCategory("stats"), stats.Count,
		filter.FormatDebt(stats.DebtMinutes, hoursPerDay))
	for _, sev := range types.Severities {
		fmt.Fprintf(&b, "  %s %s\n", RenderSeverity(sev), padLeft(strconv.Itoa(stats.BySeverity[sev]), 5))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderWarnings writes one line per skipped predicate or diff problem.
func RenderWarnings(w io.Writer, warnings []error) error {
	for _, warning := range warnings {
		if _, err := fmt.Fprintf(w, "%s %v\n", RenderWarnIcon(), warning); err != nil {
			return err
		}
	}
	return nil
}

// RenderReport writes a diff report run by run in 1-based line numbers.
func RenderReport(w io.Writer, report *sourcediff.Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s reference %d lines, current %d lines\n", RenderCategory("diff"), report.RefLines, report.CurLines)
	for _, run := range report.Runs {
		row := fmt.Sprintf("  %-9s ref %s  cur %s", run.Kind, formatRange(run.Ref), formatRange(run.Cur))
		switch run.Kind {
		case sourcediff.Unchanged:
			row = RenderMuted(row)
		case sourcediff.Inserted:
			row = RenderPass(row)
		case sourcediff.Deleted:
			row = RenderFail(row)
		case sourcediff.Modified:
			row = RenderWarn(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatRange(r sourcediff.Range) string {
	switch r.Len() {
	case 0:
		return padRight(fmt.Sprintf("@%d", r.Start+1), 11)
	case 1:
		return padRight(strconv.Itoa(r.Start+1), 11)
	default:
		return padRight(fmt.Sprintf("%d-%d", r.Start+1, r.End), 11)
	}
}
