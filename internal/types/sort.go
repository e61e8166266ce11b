package types

import (
	"cmp"
	"strings"
)

// IssueSortField names an issue attribute usable as a sort key.
type IssueSortField string

// Sort field constants
const (
	SortFieldLine     IssueSortField = "line"
	SortFieldSeverity IssueSortField = "severity"
	SortFieldRule     IssueSortField = "rule"
	SortFieldCreated  IssueSortField = "created"
	SortFieldUpdated  IssueSortField = "updated"
)

// SortDirection is ascending or descending.
type SortDirection string

// Sort direction constants
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// IssueSortOption is one key of a multi-key ordering.
type IssueSortOption struct {
	Field     IssueSortField
	Direction SortDirection
}

// DefaultIssueSortOptions returns the default ordering for displayed issues:
// line ascending with severity (most severe first) as the tie-break.
func DefaultIssueSortOptions() []IssueSortOption {
	return []IssueSortOption{
		{Field: SortFieldLine, Direction: SortAsc},
		{Field: SortFieldSeverity, Direction: SortDesc},
	}
}

// ParseIssueSortOrder converts a comma-delimited string (e.g. "severity-desc,line-asc")
// into a slice of IssueSortOption values. Unrecognised fields or directions are skipped.
func ParseIssueSortOrder(raw string) []IssueSortOption {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	options := make([]IssueSortOption, 0, len(parts))
	seen := make(map[IssueSortField]bool)

	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}

		field, dir := splitSortToken(token)
		sortField := mapSortField(field)
		if sortField == "" {
			continue
		}

		direction := mapSortDirection(dir)
		if direction == "" {
			continue
		}

		if seen[sortField] {
			continue
		}
		seen[sortField] = true

		options = append(options, IssueSortOption{
			Field:     sortField,
			Direction: direction,
		})
	}

	return options
}

// EncodeIssueSortOrder converts a slice of IssueSortOption values into its
// canonical string form, suitable for the settings store.
func EncodeIssueSortOrder(options []IssueSortOption) string {
	if len(options) == 0 {
		return ""
	}

	tokens := make([]string, 0, len(options))
	for _, opt := range options {
		if mapSortField(string(opt.Field)) == "" || mapSortDirection(string(opt.Direction)) == "" {
			continue
		}
		tokens = append(tokens, string(opt.Field)+"-"+string(opt.Direction))
	}
	return strings.Join(tokens, ",")
}

// CompareIssues orders two issues by the given options. Equal issues compare
// as 0 so callers using a stable sort keep producer order.
func CompareIssues(a, b *Issue, options []IssueSortOption) int {
	for _, opt := range options {
		var c int
		switch opt.Field {
		case SortFieldLine:
			c = cmp.Compare(a.Line, b.Line)
		case SortFieldSeverity:
			c = cmp.Compare(a.Severity.Weight(), b.Severity.Weight())
		case SortFieldRule:
			c = strings.Compare(a.Rule, b.Rule)
		case SortFieldCreated:
			c = a.CreatedAt.Compare(b.CreatedAt)
		case SortFieldUpdated:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		}
		if opt.Direction == SortDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func splitSortToken(token string) (string, string) {
	if idx := strings.IndexAny(token, ":-"); idx >= 0 {
		left := strings.TrimSpace(token[:idx])
		right := strings.TrimSpace(token[idx+1:])
		return strings.ToLower(left), strings.ToLower(right)
	}
	// A bare field sorts ascending.
	return strings.ToLower(token), "asc"
}

func mapSortField(raw string) IssueSortField {
	switch strings.ToLower(raw) {
	case "line":
		return SortFieldLine
	case "severity", "sev":
		return SortFieldSeverity
	case "rule":
		return SortFieldRule
	case "created", "created_at":
		return SortFieldCreated
	case "updated", "updated_at":
		return SortFieldUpdated
	default:
		return ""
	}
}

func mapSortDirection(raw string) SortDirection {
	switch strings.ToLower(raw) {
	case "asc", "ascending":
		return SortAsc
	case "desc", "descending":
		return SortDesc
	default:
		return ""
	}
}
