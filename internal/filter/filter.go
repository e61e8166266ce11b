// Package filter applies composable issue predicates and computes the
// statistics shown next to the filtered list.
//
// Categories combine with AND. Values within one category combine with OR.
// An empty category does not filter. A criterion that cannot be parsed is
// skipped with a warning; the rest of the pass still applies.
package filter

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/steveyegge/issuelens/internal/remap"
	"github.com/steveyegge/issuelens/internal/timeparsing"
	"github.com/steveyegge/issuelens/internal/types"
)

// Criteria selects issues. The zero value selects everything.
type Criteria struct {
	Statuses    []string `json:"statuses,omitempty" toml:"statuses,omitempty"`
	Severities  []string `json:"severities,omitempty" toml:"severities,omitempty"`
	Resolutions []string `json:"resolutions,omitempty" toml:"resolutions,omitempty"`
	Assignees   []string `json:"assignees,omitempty" toml:"assignees,omitempty"`
	Rules       []string `json:"rules,omitempty" toml:"rules,omitempty"`
	Components  []string `json:"components,omitempty" toml:"components,omitempty"` // resource key substrings
	Messages    []string `json:"messages,omitempty" toml:"messages,omitempty"`
	Tags        []string `json:"tags,omitempty" toml:"tags,omitempty"`

	CreatedAfter  string `json:"created_after,omitempty" toml:"created_after,omitempty"`
	CreatedBefore string `json:"created_before,omitempty" toml:"created_before,omitempty"`

	NewOnly           bool      `json:"new_only,omitempty" toml:"new_only,omitempty"`
	NewSince          time.Time `json:"new_since,omitempty" toml:"new_since,omitempty"`
	ModifiedLinesOnly bool      `json:"modified_lines_only,omitempty" toml:"modified_lines_only,omitempty"`
}

// IsEmpty reports whether the criteria impose no constraint.
func (c Criteria) IsEmpty() bool {
	return len(c.Statuses) == 0 && len(c.Severities) == 0 && len(c.Resolutions) == 0 &&
		len(c.Assignees) == 0 && len(c.Rules) == 0 && len(c.Components) == 0 &&
		len(c.Messages) == 0 && len(c.Tags) == 0 &&
		c.CreatedAfter == "" && c.CreatedBefore == "" &&
		!c.NewOnly && !c.ModifiedLinesOnly
}

// PredicateError reports a criterion that could not be parsed and was skipped.
type PredicateError struct {
	Category string
	Value    string
	Err      error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("filter %s %q skipped: %v", e.Category, e.Value, e.Err)
}

func (e *PredicateError) Unwrap() error { return e.Err }

// Options tunes a filter pass.
type Options struct {
	Now         time.Time // Reference time for relative dates; zero means time.Now()
	HoursPerDay int       // Debt day length; zero means DefaultHoursPerDay
	Logger      *slog.Logger
}

// Result is the displayed subset and its statistics.
type Result struct {
	Issues   []remap.Positioned
	Stats    types.Statistics
	Warnings []error
}

type predicate func(remap.Positioned) bool

// Apply filters issues by criteria and aggregates statistics over the
// result. Input order is preserved. It has no side effects besides logging.
func Apply(c Criteria, issues []remap.Positioned, opts Options) Result {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	preds, warnings := compile(c, opts.Now)
	for _, w := range warnings {
		logger.Warn("skipping filter predicate", "error", w)
	}

	res := Result{Warnings: warnings, Issues: make([]remap.Positioned, 0, len(issues))}
	for _, p := range issues {
		if matchesAll(preds, p) {
			res.Issues = append(res.Issues, p)
		}
	}
	res.Stats = Aggregate(res.Issues, opts.HoursPerDay)
	return res
}

func matchesAll(preds []predicate, p remap.Positioned) bool {
	for _, pred := range preds {
		if !pred(p) {
			return false
		}
	}
	return true
}

// compile turns criteria into predicates, one per active category.
func compile(c Criteria, now time.Time) ([]predicate, []error) {
	var preds []predicate
	var warnings []error
	add := func(pred predicate, errs []error) {
		warnings = append(warnings, errs...)
		if pred != nil {
			preds = append(preds, pred)
		}
	}

	add(enumPredicate("status", c.Statuses, func(s string) (string, error) {
		v, err := types.ParseStatus(s)
		return string(v), err
	}, func(i *types.Issue) string {
		if i.Status == "" {
			return string(types.StatusOpen)
		}
		return string(i.Status)
	}))
	add(enumPredicate("severity", c.Severities, func(s string) (string, error) {
		v, err := types.ParseSeverity(s)
		return string(v), err
	}, func(i *types.Issue) string { return string(i.Severity) }))
	add(enumPredicate("resolution", c.Resolutions, func(s string) (string, error) {
		v, err := types.ParseResolution(s)
		return string(v), err
	}, func(i *types.Issue) string { return string(i.Resolution) }))

	add(substringPredicate(c.Assignees, func(i *types.Issue) string { return i.Assignee }), nil)
	add(substringPredicate(c.Rules, func(i *types.Issue) string { return i.Rule }), nil)
	add(substringPredicate(c.Components, func(i *types.Issue) string { return i.Resource }), nil)
	add(substringPredicate(c.Messages, func(i *types.Issue) string { return i.Message }), nil)
	if tags := nonEmpty(c.Tags); len(tags) > 0 {
		add(func(p remap.Positioned) bool {
			return slices.ContainsFunc(tags, p.Issue.HasTag)
		}, nil)
	}

	add(datePredicate("created_after", c.CreatedAfter, now, false))
	add(datePredicate("created_before", c.CreatedBefore, now, true))

	if c.NewOnly {
		since := c.NewSince
		add(func(p remap.Positioned) bool {
			created := p.Issue.CreatedAt
			return created.IsZero() || !created.Before(since)
		}, nil)
	}
	if c.ModifiedLinesOnly {
		add(func(p remap.Positioned) bool { return p.InChangedRegion }, nil)
	}
	return preds, warnings
}

// enumPredicate matches exact values after normalising them with parse.
// Values that do not parse are skipped; if none parse the category is dropped.
func enumPredicate(category string, values []string, parse func(string) (string, error), field func(*types.Issue) string) (predicate, []error) {
	values = nonEmpty(values)
	if len(values) == 0 {
		return nil, nil
	}
	var errs []error
	want := make(map[string]bool, len(values))
	for _, v := range values {
		norm, err := parse(v)
		if err != nil {
			errs = append(errs, &PredicateError{Category: category, Value: v, Err: err})
			continue
		}
		want[norm] = true
	}
	if len(want) == 0 {
		return nil, errs
	}
	return func(p remap.Positioned) bool { return want[field(p.Issue)] }, errs
}

func substringPredicate(values []string, field func(*types.Issue) string) predicate {
	values = nonEmpty(values)
	if len(values) == 0 {
		return nil
	}
	needles := make([]string, len(values))
	for i, v := range values {
		needles[i] = strings.ToLower(v)
	}
	return func(p remap.Positioned) bool {
		hay := strings.ToLower(field(p.Issue))
		for _, n := range needles {
			if strings.Contains(hay, n) {
				return true
			}
		}
		return false
	}
}

func datePredicate(category, raw string, now time.Time, upper bool) (predicate, []error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	bound, err := timeparsing.ParseBound(raw, now, upper)
	if err != nil {
		return nil, []error{&PredicateError{Category: category, Value: raw, Err: err}}
	}
	if upper {
		return func(p remap.Positioned) bool { return !p.Issue.CreatedAt.After(bound) }, nil
	}
	return func(p remap.Positioned) bool { return !p.Issue.CreatedAt.Before(bound) }, nil
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Sort orders positioned issues in place with a stable sort. The line field
// sorts by current line.
func Sort(issues []remap.Positioned, options []types.IssueSortOption) {
	if len(options) == 0 {
		options = types.DefaultIssueSortOptions()
	}
	slices.SortStableFunc(issues, func(a, b remap.Positioned) int {
		for _, opt := range options {
			var c int
			if opt.Field == types.SortFieldLine {
				c = cmp.Compare(a.CurrentLine, b.CurrentLine)
				if opt.Direction == types.SortDesc {
					c = -c
				}
			} else {
				c = types.CompareIssues(a.Issue, b.Issue, []types.IssueSortOption{opt})
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}
