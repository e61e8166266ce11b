// Package remap translates issue line numbers from reference-snapshot
// coordinates into the coordinates of the current buffer text.
package remap

import (
	"log/slog"
	"sort"

	"github.com/steveyegge/issuelens/internal/debug"
	"github.com/steveyegge/issuelens/internal/sourcediff"
	"github.com/steveyegge/issuelens/internal/types"
)

// Positioned is an issue placed against the current text. The issue itself is
// shared with the cache snapshot and must not be mutated.
type Positioned struct {
	Issue           *types.Issue `json:"issue"`
	CurrentLine     int          `json:"current_line"` // 1-based, 0 for file-level issues
	InChangedRegion bool         `json:"in_changed_region"`
}

// Remap positions issues against the current text described by report.
// Issues anchored beyond the end of the reference text are dropped and logged.
// The positioned list is stable-sorted by current line; changed holds the
// subset that falls inside inserted, deleted or modified runs.
func Remap(issues []*types.Issue, report *sourcediff.Report, logger *slog.Logger) (positioned, changed []Positioned) {
	if report == nil {
		return Identity(issues), nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	positioned = make([]Positioned, 0, len(issues))
	dropped := 0
	for _, issue := range issues {
		if issue.IsFileLevel() {
			positioned = append(positioned, Positioned{Issue: issue})
			continue
		}
		idx := issue.Line - 1
		run, ok := report.FindRef(idx)
		if !ok {
			dropped++
			logger.Warn("dropping stale issue beyond end of reference text",
				"resource", issue.Resource, "rule", issue.Rule, "line", issue.Line,
				"ref_lines", report.RefLines)
			continue
		}
		p := Positioned{Issue: issue, CurrentLine: place(run, idx, report.CurLines) + 1}
		if run.Kind != sourcediff.Unchanged {
			p.InChangedRegion = true
		}
		positioned = append(positioned, p)
	}

	sort.SliceStable(positioned, func(i, j int) bool {
		return positioned[i].CurrentLine < positioned[j].CurrentLine
	})
	for _, p := range positioned {
		if p.InChangedRegion {
			changed = append(changed, p)
		}
	}
	debug.Logf("remap: %d issues, %d positioned, %d in changed regions, %d dropped\n",
		len(issues), len(positioned), len(changed), dropped)
	return positioned, changed
}

// place returns the 0-based current line for reference index idx inside run,
// or -1 when the current text is empty and the issue becomes file-level.
func place(run sourcediff.Run, idx, curLines int) int {
	off := idx - run.Ref.Start
	switch run.Kind {
	case sourcediff.Unchanged:
		return run.Cur.Start + off
	case sourcediff.Modified:
		if off >= run.Cur.Len() {
			off = run.Cur.Len() - 1
		}
		return run.Cur.Start + off
	default:
		// Deleted: snap to the line that now follows the deletion point.
		if run.Cur.Start < curLines {
			return run.Cur.Start
		}
		return curLines - 1
	}
}

// Identity positions issues at their reference lines, with no changed
// regions. Used when no diff is available for the resource.
func Identity(issues []*types.Issue) []Positioned {
	out := make([]Positioned, len(issues))
	for i, issue := range issues {
		out[i] = Positioned{Issue: issue, CurrentLine: issue.Line}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CurrentLine < out[j].CurrentLine
	})
	return out
}

// Issues strips positions, returning the issues in positioned order.
func Issues(ps []Positioned) []*types.Issue {
	out := make([]*types.Issue, len(ps))
	for i, p := range ps {
		out[i] = p.Issue
	}
	return out
}
