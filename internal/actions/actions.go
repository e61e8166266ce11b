// Package actions defines the issue commands a user can run from the issue
// list (mark false positive, reopen, assign, ...). Every action is described
// by a Descriptor so front ends can list and enable them generically.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/steveyegge/issuelens/internal/types"
)

// Params carries the user input an action may need.
type Params struct {
	Assignee string
	Tag      string
	Comment  string
}

// Change is the mutation an action applies to each selected issue.
// Nil fields are left untouched.
type Change struct {
	Status     *types.Status     `json:"status,omitempty"`
	Resolution *types.Resolution `json:"resolution,omitempty"`
	Assignee   *string           `json:"assignee,omitempty"`
	AddTags    []string          `json:"add_tags,omitempty"`
	Comment    string            `json:"comment,omitempty"`
}

// Apply mutates issue in place and stamps UpdatedAt.
func (c Change) Apply(issue *types.Issue, now time.Time) {
	if c.Status != nil {
		issue.Status = *c.Status
	}
	if c.Resolution != nil {
		issue.Resolution = *c.Resolution
	}
	if c.Assignee != nil {
		issue.Assignee = *c.Assignee
	}
	for _, tag := range c.AddTags {
		if !issue.HasTag(tag) {
			issue.Tags = append(issue.Tags, tag)
		}
	}
	issue.UpdatedAt = now
}

// Descriptor describes one action.
type Descriptor struct {
	ID      string
	Title   string
	Arg     string // Name of the required Params field, "" if none
	Applies func(*types.Issue) bool
	change  func(Params) (Change, error)
}

// IssueUpdater pushes a change to the remote issue tracker. It is optional:
// without one, actions only update the cached issues.
type IssueUpdater interface {
	UpdateIssues(ctx context.Context, action string, issues []*types.Issue, change Change) error
}

// LocalUpdater mutates cached issues without re-running analysis.
type LocalUpdater interface {
	UpdateIssues(key string, ids []types.IssueKey, mutate func(*types.Issue)) (int, error)
}

// ErrUnknownAction is returned for an ID not in the table.
var ErrUnknownAction = errors.New("unknown action")

// ErrNotApplicable is returned when no selected issue accepts the action.
var ErrNotApplicable = errors.New("action does not apply to the selected issues")

func ptr[T any](v T) *T { return &v }

func resolve(res types.Resolution) func(Params) (Change, error) {
	return func(p Params) (Change, error) {
		return Change{Status: ptr(types.StatusResolved), Resolution: ptr(res), Comment: p.Comment}, nil
	}
}

func unresolved(i *types.Issue) bool {
	return i.Status.IsOpen() && !i.IsSuppressed()
}

// Table lists the built-in actions in menu order.
var Table = []Descriptor{
	{
		ID:      "mark-false-positive",
		Title:   "Mark as false positive",
		Applies: unresolved,
		change:  resolve(types.ResolutionFalsePositive),
	},
	{
		ID:      "mark-wont-fix",
		Title:   "Mark as won't fix",
		Applies: unresolved,
		change:  resolve(types.ResolutionWontFix),
	},
	{
		ID:    "reopen",
		Title: "Reopen",
		Applies: func(i *types.Issue) bool {
			return !i.Status.IsOpen()
		},
		change: func(p Params) (Change, error) {
			return Change{Status: ptr(types.StatusReopened), Resolution: ptr(types.ResolutionNone), Comment: p.Comment}, nil
		},
	},
	{
		ID:    "confirm",
		Title: "Confirm",
		Applies: func(i *types.Issue) bool {
			return i.Status.IsOpen() && i.Status != types.StatusConfirmed
		},
		change: func(p Params) (Change, error) {
			return Change{Status: ptr(types.StatusConfirmed), Comment: p.Comment}, nil
		},
	},
	{
		ID:      "assign",
		Title:   "Assign",
		Arg:     "assignee",
		Applies: func(*types.Issue) bool { return true },
		change: func(p Params) (Change, error) {
			a := strings.TrimSpace(p.Assignee)
			if a == "" {
				return Change{}, fmt.Errorf("assignee is required")
			}
			return Change{Assignee: &a, Comment: p.Comment}, nil
		},
	},
	{
		ID:      "add-tag",
		Title:   "Add tag",
		Arg:     "tag",
		Applies: func(*types.Issue) bool { return true },
		change: func(p Params) (Change, error) {
			tag := strings.ToLower(strings.TrimSpace(p.Tag))
			if tag == "" || strings.ContainsAny(tag, " \t,") {
				return Change{}, fmt.Errorf("invalid tag %q", p.Tag)
			}
			return Change{AddTags: []string{tag}, Comment: p.Comment}, nil
		},
	},
}

// Lookup returns the descriptor with the given ID.
func Lookup(id string) (*Descriptor, error) {
	for i := range Table {
		if Table[i].ID == id {
			return &Table[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownAction, id)
}

// IDs returns every action ID in menu order.
func IDs() []string {
	ids := make([]string, len(Table))
	for i, d := range Table {
		ids[i] = d.ID
	}
	return ids
}

// Available returns the actions that apply to at least one of issues.
func Available(issues []*types.Issue) []*Descriptor {
	var out []*Descriptor
	for i := range Table {
		if slices.ContainsFunc(issues, Table[i].Applies) {
			out = append(out, &Table[i])
		}
	}
	return out
}

// Runner executes actions against one resource.
type Runner struct {
	Local  LocalUpdater
	Remote IssueUpdater // optional
	Now    func() time.Time
	Logger *slog.Logger
}

// Result reports what an action did.
type Result struct {
	Action  string
	Updated int
	Skipped int
}

// Execute runs action id on the applicable subset of issues in resource key.
// The remote tracker is updated first; if it fails the cache is untouched.
func (r *Runner) Execute(ctx context.Context, id, key string, issues []*types.Issue, p Params) (Result, error) {
	d, err := Lookup(id)
	if err != nil {
		return Result{}, err
	}
	change, err := d.change(p)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", id, err)
	}

	res := Result{Action: id}
	var selected []*types.Issue
	for _, issue := range issues {
		if d.Applies(issue) {
			selected = append(selected, issue)
		} else {
			res.Skipped++
		}
	}
	if len(selected) == 0 {
		return res, fmt.Errorf("%s: %w", id, ErrNotApplicable)
	}

	if r.Remote != nil {
		if err := r.Remote.UpdateIssues(ctx, id, selected, change); err != nil {
			return res, fmt.Errorf("%s: remote update: %w", id, err)
		}
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	ids := make([]types.IssueKey, len(selected))
	for i, issue := range selected {
		ids[i] = issue.Identity()
	}
	n, err := r.Local.UpdateIssues(key, ids, func(issue *types.Issue) {
		change.Apply(issue, now)
	})
	if err != nil {
		return res, fmt.Errorf("%s: update cache: %w", id, err)
	}
	res.Updated = n

	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("action applied", "action", id, "resource", key, "updated", n, "skipped", res.Skipped)
	return res, nil
}
