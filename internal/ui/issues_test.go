package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/issuelens/internal/remap"
	"github.com/steveyegge/issuelens/internal/sourcediff"
	"github.com/steveyegge/issuelens/internal/types"
)

func positioned(line, cur int, changed bool) remap.Positioned {
	return remap.Positioned{
		Issue: &types.Issue{
			Resource: "a.go", Rule: "go:S100", Line: line,
			Severity: types.SeverityMajor, Message: "rename this function", Debt: "2h",
		},
		CurrentLine:     cur,
		InChangedRegion: changed,
	}
}

func TestRenderIssue(t *testing.T) {
	row := RenderIssue(positioned(5, 7, true), ListOptions{HoursPerDay: 8})
	assert.Contains(t, row, IconChanged)
	assert.Contains(t, row, "    7")
	assert.Contains(t, row, "MAJOR")
	assert.Contains(t, row, "go:S100")
	assert.Contains(t, row, "rename this function")
	assert.Contains(t, row, "[2h]")

	file := positioned(0, 0, false)
	file.Issue.Status = types.StatusResolved
	file.Issue.Resolution = types.ResolutionWontFix
	file.Issue.Assignee = "ana"
	row = RenderIssue(file, ListOptions{})
	assert.Contains(t, row, "file")
	assert.NotContains(t, row, IconChanged)
	assert.Contains(t, row, "RESOLVED/WONTFIX")
	assert.Contains(t, row, "@ana")
}

func TestRenderIssueList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderIssueList(&buf, "a.go", nil, ListOptions{}))
	assert.Contains(t, buf.String(), "no issues")

	buf.Reset()
	require.NoError(t, RenderIssueList(&buf, "a.go", []remap.Positioned{positioned(1, 1, false), positioned(2, 3, false)}, ListOptions{}))
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
}

func TestRenderStats(t *testing.T) {
	stats := types.NewStatistics()
	stats.Count = 3
	stats.BySeverity[types.SeverityBlocker] = 1
	stats.BySeverity[types.SeverityMajor] = 2
	stats.DebtMinutes = 605

	var buf bytes.Buffer
	require.NoError(t, RenderStats(&buf, stats, 8))
	out := buf.String()
	assert.Contains(t, out, "3 issues, debt 1d 2h 5min")
	for _, sev := range types.Severities {
		assert.Contains(t, out, string(sev))
	}
}

func TestRenderReport(t *testing.T) {
	report, err := sourcediff.Diff("a\nb\nc\n", "a\nx\nb\nc\n")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, report))
	out := buf.String()
	assert.Contains(t, out, "reference 3 lines, current 4 lines")
	assert.Contains(t, out, "inserted")
	assert.Contains(t, out, "@2")
}

func TestRenderWarnings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderWarnings(&buf, []error{errors.New("filter skipped")}))
	assert.Contains(t, buf.String(), "filter skipped")
}

func TestSeverityStyle(t *testing.T) {
	assert.Equal(t, BlockerStyle, SeverityStyle(types.SeverityBlocker))
	assert.Equal(t, InfoStyle, SeverityStyle(types.Severity("")))
}
