package filter

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/issuelens/internal/remap"
	"github.com/steveyegge/issuelens/internal/types"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func pos(issue *types.Issue, changed bool) remap.Positioned {
	return remap.Positioned{Issue: issue, CurrentLine: issue.Line, InChangedRegion: changed}
}

func sample() []remap.Positioned {
	return []remap.Positioned{
		pos(&types.Issue{Resource: "src/api/handler.go", Rule: "go:S1000", Line: 1, Severity: types.SeverityMajor,
			Status: types.StatusOpen, Assignee: "alice", Message: "Remove unused import", Debt: "5min",
			CreatedAt: now.AddDate(0, 0, -30), Tags: []string{"cleanup"}}, false),
		pos(&types.Issue{Resource: "src/api/handler.go", Rule: "go:S2000", Line: 2, Severity: types.SeverityCritical,
			Status: types.StatusConfirmed, Assignee: "bob", Message: "Possible nil dereference", Debt: "2h",
			CreatedAt: now.AddDate(0, 0, -2)}, true),
		pos(&types.Issue{Resource: "src/store/db.go", Rule: "sec:S3000", Line: 3, Severity: types.SeverityBlocker,
			Status: types.StatusResolved, Resolution: types.ResolutionFalsePositive, Message: "SQL injection", Debt: "1d",
			CreatedAt: now.AddDate(0, 0, -1)}, false),
		pos(&types.Issue{Resource: "src/store/db.go", Rule: "go:S1000", Line: 4, Severity: types.SeverityMinor,
			Status: types.StatusOpen, Message: "Remove unused variable"}, true),
	}
}

func lines(res Result) []int {
	var out []int
	for _, p := range res.Issues {
		out = append(out, p.Issue.Line)
	}
	return out
}

func TestApplyEmptyCriteriaIsPassThrough(t *testing.T) {
	res := Apply(Criteria{}, sample(), Options{Now: now})
	assert.Equal(t, []int{1, 2, 3, 4}, lines(res))
	assert.Empty(t, res.Warnings)
	assert.True(t, Criteria{}.IsEmpty())
}

func TestApplyCategories(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []int
	}{
		{"severity OR", Criteria{Severities: []string{"MAJOR", "critical"}}, []int{1, 2}},
		{"severity AND status", Criteria{Severities: []string{"MAJOR", "CRITICAL"}, Statuses: []string{"confirmed"}}, []int{2}},
		{"resolution", Criteria{Resolutions: []string{"false_positive"}}, []int{3}},
		{"unresolved", Criteria{Resolutions: []string{"none"}}, []int{1, 2, 4}},
		{"assignee substring", Criteria{Assignees: []string{"ALI"}}, []int{1}},
		{"rule substring", Criteria{Rules: []string{"s1000"}}, []int{1, 4}},
		{"component substring", Criteria{Components: []string{"store/"}}, []int{3, 4}},
		{"message OR", Criteria{Messages: []string{"nil", "sql"}}, []int{2, 3}},
		{"tag", Criteria{Tags: []string{"CLEANUP"}}, []int{1}},
		{"modified lines only", Criteria{ModifiedLinesOnly: true}, []int{2, 4}},
		{"blank values ignored", Criteria{Severities: []string{" "}}, []int{1, 2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Apply(tt.criteria, sample(), Options{Now: now})
			assert.Equal(t, tt.want, lines(res))
			assert.Empty(t, res.Warnings)
		})
	}
}

func TestApplyDateBoundsInclusive(t *testing.T) {
	issues := sample()

	res := Apply(Criteria{CreatedAfter: "-2d"}, issues, Options{Now: now})
	assert.Equal(t, []int{2, 3}, lines(res), "lower bound inclusive; zero CreatedAt excluded")

	day := now.AddDate(0, 0, -1).Format("2006-01-02")
	res = Apply(Criteria{CreatedAfter: day, CreatedBefore: day}, issues, Options{Now: now})
	assert.Equal(t, []int{3}, lines(res))
}

func TestApplyNewOnly(t *testing.T) {
	res := Apply(Criteria{NewOnly: true, NewSince: now.AddDate(0, 0, -2)}, sample(), Options{Now: now})
	assert.Equal(t, []int{2, 3, 4}, lines(res), "zero creation time counts as new")
}

func TestApplySkipsBadPredicate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	res := Apply(Criteria{
		CreatedAfter: "not-a-date",
		Severities:   []string{"MAJR", "CRITICAL"},
		Messages:     []string{"nil"},
	}, sample(), Options{Now: now, Logger: logger})

	assert.Equal(t, []int{2}, lines(res))
	require.Len(t, res.Warnings, 2)
	var perr *PredicateError
	require.True(t, errors.As(res.Warnings[0], &perr))
	assert.Equal(t, "severity", perr.Category)
	assert.Equal(t, "MAJR", perr.Value)
	assert.True(t, errors.As(res.Warnings[1], &perr))
	assert.Equal(t, "created_after", perr.Category)
	assert.Contains(t, buf.String(), "skipping filter predicate")
}

func TestApplyAllValuesInvalidDropsCategory(t *testing.T) {
	res := Apply(Criteria{Statuses: []string{"bogus"}}, sample(), Options{Now: now})
	assert.Len(t, res.Issues, 4)
	assert.Len(t, res.Warnings, 1)
}

func TestStatistics(t *testing.T) {
	res := Apply(Criteria{}, sample(), Options{Now: now})

	assert.Equal(t, 4, res.Stats.Count)
	assert.Equal(t, 605, res.Stats.DebtMinutes)
	assert.Equal(t, map[types.Severity]int{
		types.SeverityBlocker:  1,
		types.SeverityCritical: 1,
		types.SeverityMajor:    1,
		types.SeverityMinor:    1,
		types.SeverityInfo:     0,
	}, res.Stats.BySeverity)
	assert.Equal(t, 2, res.Stats.ByStatus[types.StatusOpen])

	res = Apply(Criteria{Severities: []string{"INFO"}}, sample(), Options{Now: now})
	assert.Equal(t, 0, res.Stats.Count)
	assert.Len(t, res.Stats.BySeverity, len(types.Severities))
}

func TestSort(t *testing.T) {
	issues := sample()
	issues[0].CurrentLine = 9

	Sort(issues, nil)
	assert.Equal(t, []int{2, 3, 4, 9}, []int{issues[0].CurrentLine, issues[1].CurrentLine, issues[2].CurrentLine, issues[3].CurrentLine})

	Sort(issues, types.ParseIssueSortOrder("severity-desc"))
	assert.Equal(t, types.SeverityBlocker, issues[0].Issue.Severity)
	assert.Equal(t, types.SeverityMinor, issues[3].Issue.Severity)
}
