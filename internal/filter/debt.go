package filter

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultHoursPerDay is the length of a working day for debt conversion.
const DefaultHoursPerDay = 8

// MaxDebtMinutes caps a parsed debt and a debt total.
const MaxDebtMinutes = math.MaxInt32

// debtTokenRe finds <integer><unit> tokens. Longer units come first so "min"
// is not read as "m" followed by junk.
var debtTokenRe = regexp.MustCompile(`(\d+)\s*(min|mn|h|d)`)

// ParseDebt converts a debt string to minutes. Only the first <int><unit>
// token counts, so "1d 2h" yields one day; strings with no token yield 0.
// Results saturate at MaxDebtMinutes.
func ParseDebt(debt string, hoursPerDay int) int {
	if hoursPerDay <= 0 {
		hoursPerDay = DefaultHoursPerDay
	}
	m := debtTokenRe.FindStringSubmatch(strings.ToLower(debt))
	if m == nil {
		return 0
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		// Only digits match, so this is ErrRange.
		return MaxDebtMinutes
	}
	unit := int64(1)
	switch m[2] {
	case "d":
		unit = int64(min(hoursPerDay, MaxDebtMinutes/60)) * 60
	case "h":
		unit = 60
	}
	if n > MaxDebtMinutes/unit {
		return MaxDebtMinutes
	}
	return int(n * unit)
}

// AddDebt sums two debts in minutes, saturating at MaxDebtMinutes.
func AddDebt(a, b int) int {
	if a > MaxDebtMinutes-b {
		return MaxDebtMinutes
	}
	return a + b
}

// FormatDebt renders minutes as "1d 2h 5min", omitting zero parts.
func FormatDebt(minutes, hoursPerDay int) string {
	if hoursPerDay <= 0 {
		hoursPerDay = DefaultHoursPerDay
	}
	if minutes <= 0 {
		return "0min"
	}
	day := hoursPerDay * 60
	var parts []string
	if d := minutes / day; d > 0 {
		parts = append(parts, fmt.Sprintf("%dd", d))
		minutes %= day
	}
	if h := minutes / 60; h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
		minutes %= 60
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dmin", minutes))
	}
	return strings.Join(parts, " ")
}
