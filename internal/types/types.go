// Package types defines core data structures for the issuelens overlay engine.
package types

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Issue is a single static-analysis finding anchored to a line of the
// reference snapshot of a resource.
type Issue struct {
	Key        string     `json:"key,omitempty" yaml:"key,omitempty"` // Producer surrogate id; never used for identity
	Resource   string     `json:"resource" yaml:"resource"`
	Rule       string     `json:"rule" yaml:"rule"`
	Line       int        `json:"line" yaml:"line"` // 1-based line in the reference text, 0 = file-level
	Severity   Severity   `json:"severity,omitempty" yaml:"severity,omitempty"`
	Status     Status     `json:"status,omitempty" yaml:"status,omitempty"`
	Resolution Resolution `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Assignee   string     `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Tags       []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Message    string     `json:"message,omitempty" yaml:"message,omitempty"`
	Debt       string     `json:"debt,omitempty" yaml:"debt,omitempty"` // Remediation effort, e.g. "5min", "2h", "1d"
	CreatedAt  time.Time  `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	Source     Source     `json:"source,omitempty" yaml:"-"` // Internal: which producer reported it
}

// IssueKey identifies an issue for merge purposes. Different producers assign
// different surrogate ids to the same finding, so identity is positional.
type IssueKey struct {
	Resource string
	Rule     string
	Line     int
}

// String renders the key as resource:line:rule.
func (k IssueKey) String() string {
	return fmt.Sprintf("%s:%d:%s", k.Resource, k.Line, k.Rule)
}

// Identity returns the merge identity of the issue.
func (i *Issue) Identity() IssueKey {
	return IssueKey{Resource: i.Resource, Rule: i.Rule, Line: i.Line}
}

// IsFileLevel reports whether the issue is attached to the file rather than a line.
func (i *Issue) IsFileLevel() bool {
	return i.Line == 0
}

// IsSuppressed reports whether the issue carries a false-positive or won't-fix resolution.
func (i *Issue) IsSuppressed() bool {
	return i.Resolution.IsSuppression()
}

// Clone returns a deep copy. Mutations of cached issues always go through a
// clone so that published snapshots never change underneath a reader.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	c := *i
	if i.Tags != nil {
		c.Tags = slices.Clone(i.Tags)
	}
	return &c
}

// HasTag reports whether the issue carries the tag (case-insensitive).
func (i *Issue) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Validate checks that the issue can be tracked.
func (i *Issue) Validate() error {
	if i.Resource == "" {
		return fmt.Errorf("resource is required")
	}
	if i.Rule == "" {
		return fmt.Errorf("rule is required")
	}
	if i.Line < 0 {
		return fmt.Errorf("line must not be negative (got %d)", i.Line)
	}
	if i.Severity != "" && !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if i.Status != "" && !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.Resolution.IsValid() {
		return fmt.Errorf("invalid resolution: %s", i.Resolution)
	}
	return nil
}

// SetDefaults fills in zero-valued fields with their defaults.
func (i *Issue) SetDefaults() {
	if i.Status == "" {
		i.Status = StatusOpen
	}
	if i.Severity == "" {
		i.Severity = SeverityMajor
	}
}

// Severity of a finding.
type Severity string

// Severity constants, most severe first
const (
	SeverityBlocker  Severity = "BLOCKER"
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
	SeverityInfo     Severity = "INFO"
)

// Severities lists every severity bucket, most severe first.
var Severities = []Severity{SeverityBlocker, SeverityCritical, SeverityMajor, SeverityMinor, SeverityInfo}

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	return slices.Contains(Severities, s)
}

// Weight returns a numeric weight for sorting; higher is more severe.
func (s Severity) Weight() int {
	switch s {
	case SeverityBlocker:
		return 5
	case SeverityCritical:
		return 4
	case SeverityMajor:
		return 3
	case SeverityMinor:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ParseSeverity accepts any letter case.
func ParseSeverity(s string) (Severity, error) {
	v := Severity(normalizeEnum(s))
	if !v.IsValid() {
		return "", fmt.Errorf("invalid severity: %q", s)
	}
	return v, nil
}

// Status represents the workflow state of an issue
type Status string

// Status constants
const (
	StatusOpen      Status = "OPEN"
	StatusConfirmed Status = "CONFIRMED"
	StatusReopened  Status = "REOPENED"
	StatusResolved  Status = "RESOLVED"
	StatusClosed    Status = "CLOSED"
)

// Statuses lists every workflow state.
var Statuses = []Status{StatusOpen, StatusConfirmed, StatusReopened, StatusResolved, StatusClosed}

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	return slices.Contains(Statuses, s)
}

// IsOpen reports whether the issue still needs attention.
func (s Status) IsOpen() bool {
	return s == StatusOpen || s == StatusConfirmed || s == StatusReopened || s == ""
}

// ParseStatus accepts any letter case.
func ParseStatus(s string) (Status, error) {
	v := Status(normalizeEnum(s))
	if !v.IsValid() {
		return "", fmt.Errorf("invalid status: %q", s)
	}
	return v, nil
}

// Resolution records why an issue was resolved. Empty means unresolved.
type Resolution string

// Resolution constants
const (
	ResolutionNone          Resolution = ""
	ResolutionFixed         Resolution = "FIXED"
	ResolutionFalsePositive Resolution = "FALSE-POSITIVE"
	ResolutionWontFix       Resolution = "WONTFIX"
	ResolutionRemoved       Resolution = "REMOVED"
)

// Resolutions lists every non-empty resolution.
var Resolutions = []Resolution{ResolutionFixed, ResolutionFalsePositive, ResolutionWontFix, ResolutionRemoved}

// IsValid checks if the resolution value is valid
func (r Resolution) IsValid() bool {
	return r == ResolutionNone || slices.Contains(Resolutions, r)
}

// IsSuppression reports whether the resolution permanently suppresses the
// finding without fixing it.
func (r Resolution) IsSuppression() bool {
	return r == ResolutionFalsePositive || r == ResolutionWontFix
}

// ParseResolution accepts any letter case and "_" in place of "-".
// "none" and the empty string both mean unresolved.
func ParseResolution(s string) (Resolution, error) {
	n := normalizeEnum(s)
	switch n {
	case "", "NONE", "UNRESOLVED":
		return ResolutionNone, nil
	case "FALSE_POSITIVE", "FALSEPOSITIVE":
		return ResolutionFalsePositive, nil
	case "WONT_FIX", "WONT-FIX":
		return ResolutionWontFix, nil
	}
	v := Resolution(n)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid resolution: %q", s)
	}
	return v, nil
}

// Source identifies which producer reported an issue.
type Source string

// Source constants
const (
	SourceFull       Source = "full"
	SourceCommand    Source = "command"
	SourceExclusions Source = "exclusions"
)

// IsValid checks if the source value is valid
func (s Source) IsValid() bool {
	switch s {
	case SourceFull, SourceCommand, SourceExclusions:
		return true
	}
	return false
}

// Statistics summarises a displayed issue set.
type Statistics struct {
	Count       int              `json:"count"`
	BySeverity  map[Severity]int `json:"by_severity"`
	ByStatus    map[Status]int   `json:"by_status"`
	DebtMinutes int              `json:"debt_minutes"`
}

// NewStatistics returns statistics with every severity bucket zero-filled.
func NewStatistics() Statistics {
	s := Statistics{
		BySeverity: make(map[Severity]int, len(Severities)),
		ByStatus:   make(map[Status]int),
	}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	return s
}

func normalizeEnum(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
