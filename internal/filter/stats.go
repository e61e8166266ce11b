package filter

import (
	"github.com/steveyegge/issuelens/internal/remap"
	"github.com/steveyegge/issuelens/internal/types"
)

// Aggregate computes statistics over a displayed issue list.
func Aggregate(issues []remap.Positioned, hoursPerDay int) types.Statistics {
	s := types.NewStatistics()
	for _, p := range issues {
		s.Count++
		if p.Issue.Severity != "" {
			s.BySeverity[p.Issue.Severity]++
		}
		status := p.Issue.Status
		if status == "" {
			status = types.StatusOpen
		}
		s.ByStatus[status]++
		s.DebtMinutes = AddDebt(s.DebtMinutes, ParseDebt(p.Issue.Debt, hoursPerDay))
	}
	return s
}
