package cache

import "github.com/steveyegge/issuelens/internal/types"

type exclusionKey struct {
	rule string
	line int
}

// mergeIssues builds the merged view. Full-analysis issues come first; those
// matching an exclusion by (rule, line) are shown with the exclusion's status
// and resolution rather than hidden. Command issues are appended as-is.
// Inputs are never modified.
func mergeIssues(full, command, excluded []*types.Issue) []*types.Issue {
	merged := make([]*types.Issue, 0, len(full)+len(command))
	if len(excluded) == 0 {
		merged = append(merged, full...)
		return append(merged, command...)
	}

	byKey := make(map[exclusionKey]*types.Issue, len(excluded))
	for _, ex := range excluded {
		k := exclusionKey{rule: ex.Rule, line: ex.Line}
		if _, ok := byKey[k]; !ok {
			byKey[k] = ex
		}
	}
	for _, issue := range full {
		ex, ok := byKey[exclusionKey{rule: issue.Rule, line: issue.Line}]
		if !ok || (issue.Status == ex.Status && issue.Resolution == ex.Resolution) {
			merged = append(merged, issue)
			continue
		}
		c := issue.Clone()
		c.Status = ex.Status
		c.Resolution = ex.Resolution
		merged = append(merged, c)
	}
	return append(merged, command...)
}
