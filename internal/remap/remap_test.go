package remap

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/issuelens/internal/sourcediff"
	"github.com/steveyegge/issuelens/internal/types"
)

func numbered(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	return lines
}

func text(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

func issueAt(line int, rule string) *types.Issue {
	return &types.Issue{Resource: "src/a.go", Rule: rule, Line: line}
}

func diff(t *testing.T, ref, cur []string) *sourcediff.Report {
	t.Helper()
	r, err := sourcediff.Diff(text(ref), text(cur))
	require.NoError(t, err)
	return r
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestRemapInsertionShiftsLine(t *testing.T) {
	ref := numbered(10)
	cur := append(append(append([]string{}, ref[:4]...), "new a", "new b"), ref[4:]...)

	positioned, changed := Remap([]*types.Issue{issueAt(5, "R1")}, diff(t, ref, cur), nil)

	require.Len(t, positioned, 1)
	assert.Equal(t, 7, positioned[0].CurrentLine)
	assert.False(t, positioned[0].InChangedRegion)
	assert.Empty(t, changed)
}

func TestRemapIdempotent(t *testing.T) {
	ref := numbered(30)
	issues := []*types.Issue{issueAt(0, "FILE"), issueAt(1, "R1"), issueAt(12, "R2"), issueAt(30, "R3")}

	positioned, changed := Remap(issues, diff(t, ref, ref), nil)

	require.Len(t, positioned, len(issues))
	for i, p := range positioned {
		assert.Same(t, issues[i], p.Issue)
		assert.Equal(t, issues[i].Line, p.CurrentLine)
		assert.False(t, p.InChangedRegion)
	}
	assert.Empty(t, changed)
}

func TestRemapModifiedLinesOnly(t *testing.T) {
	ref := numbered(40)
	cur := append([]string{}, ref...)
	for i := 19; i < 25; i++ {
		cur[i] = "edited " + cur[i]
	}

	var issues []*types.Issue
	for line := 1; line <= 40; line++ {
		issues = append(issues, issueAt(line, "R"))
	}

	positioned, changed := Remap(issues, diff(t, ref, cur), nil)

	assert.Len(t, positioned, 40, "every issue stays in the full list")
	require.Len(t, changed, 6)
	for i, p := range changed {
		assert.Equal(t, 20+i, p.Issue.Line)
		assert.Equal(t, 20+i, p.CurrentLine)
	}
}

func TestRemapOffsetCorrectness(t *testing.T) {
	ref := numbered(50)
	cur := append([]string{}, ref[:10]...)
	cur = append(cur, "x1", "x2", "x3")
	cur = append(cur, ref[10:30]...)
	cur = append(cur, ref[35:]...) // lines 31..35 deleted

	report := diff(t, ref, cur)
	var issues []*types.Issue
	for line := 1; line <= 50; line++ {
		issues = append(issues, issueAt(line, "R"))
	}
	positioned, _ := Remap(issues, report, nil)

	byLine := make(map[int]Positioned)
	for _, p := range positioned {
		byLine[p.Issue.Line] = p
	}
	for _, run := range report.Runs {
		if run.Kind != sourcediff.Unchanged {
			continue
		}
		for idx := run.Ref.Start; idx < run.Ref.End; idx++ {
			p := byLine[idx+1]
			assert.Equal(t, idx+1+(run.Cur.Start-run.Ref.Start), p.CurrentLine, "ref line %d", idx+1)
		}
	}
	assert.Equal(t, 14, byLine[11].CurrentLine)
	assert.Equal(t, 34, byLine[36].CurrentLine)
}

func TestRemapDeletedRunClamps(t *testing.T) {
	ref := numbered(10)
	cur := append(append([]string{}, ref[:3]...), ref[6:]...) // lines 4..6 deleted

	positioned, changed := Remap([]*types.Issue{issueAt(5, "R")}, diff(t, ref, cur), nil)

	require.Len(t, positioned, 1)
	assert.Equal(t, 4, positioned[0].CurrentLine, "snaps to the line after the deletion")
	assert.True(t, positioned[0].InChangedRegion)
	assert.Len(t, changed, 1)
}

func TestRemapDeletedAtEOFClampsToLastLine(t *testing.T) {
	ref := numbered(10)
	cur := ref[:7]

	positioned, _ := Remap([]*types.Issue{issueAt(9, "R")}, diff(t, ref, cur), nil)

	require.Len(t, positioned, 1)
	assert.Equal(t, 7, positioned[0].CurrentLine)
}

func TestRemapEmptiedBufferMakesIssuesFileLevel(t *testing.T) {
	report := diff(t, []string{"a", "b"}, nil)
	require.Zero(t, report.CurLines)

	positioned, changed := Remap([]*types.Issue{issueAt(1, "R1"), issueAt(2, "R2")}, report, nil)

	require.Len(t, positioned, 2)
	for _, p := range positioned {
		assert.Zero(t, p.CurrentLine, "no line to point at in an empty buffer")
		assert.True(t, p.InChangedRegion)
	}
	assert.Len(t, changed, 2)
}

func TestRemapModifiedRunClampsToExtent(t *testing.T) {
	ref := numbered(10)
	cur := append(append(append([]string{}, ref[:2]...), "replacement"), ref[6:]...) // 3..6 → 1 line

	positioned, _ := Remap([]*types.Issue{issueAt(6, "R")}, diff(t, ref, cur), nil)

	require.Len(t, positioned, 1)
	assert.Equal(t, 3, positioned[0].CurrentLine)
	assert.True(t, positioned[0].InChangedRegion)
}

func TestRemapDropsStaleIssues(t *testing.T) {
	ref := numbered(5)
	var buf bytes.Buffer

	positioned, _ := Remap([]*types.Issue{issueAt(3, "R1"), issueAt(9, "STALE")}, diff(t, ref, ref), quietLogger(&buf))

	require.Len(t, positioned, 1)
	assert.Equal(t, "R1", positioned[0].Issue.Rule)
	assert.Contains(t, buf.String(), "rule=STALE")
	assert.Contains(t, buf.String(), "line=9")
}

func TestRemapStableForSharedLine(t *testing.T) {
	ref := numbered(10)
	cur := append([]string{"header"}, ref...)
	issues := []*types.Issue{issueAt(4, "B"), issueAt(2, "Z"), issueAt(4, "A"), issueAt(4, "C")}

	positioned, _ := Remap(issues, diff(t, ref, cur), nil)

	var got []string
	for _, p := range positioned {
		got = append(got, fmt.Sprintf("%s@%d", p.Issue.Rule, p.CurrentLine))
	}
	assert.Equal(t, []string{"Z@3", "B@5", "A@5", "C@5"}, got)
}

func TestRemapNilReportFallsBackToIdentity(t *testing.T) {
	issues := []*types.Issue{issueAt(8, "R2"), issueAt(3, "R1")}

	positioned, changed := Remap(issues, nil, nil)

	assert.Nil(t, changed)
	assert.Equal(t, []*types.Issue{issues[1], issues[0]}, Issues(positioned))
	assert.Equal(t, 3, positioned[0].CurrentLine)
}
