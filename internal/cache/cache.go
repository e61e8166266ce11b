// Package cache holds the per-resource issue registry: reference text plus
// the full-analysis, command-plugin and exclusion issue lists, and the merged
// view built from them.
//
// Entries are immutable once published. Every change builds a new *Entry and
// swaps it in under the registry lock, so a reader holding an entry always
// sees a complete, consistent snapshot.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/steveyegge/issuelens/internal/producer"
	"github.com/steveyegge/issuelens/internal/types"
)

// ErrNoEntry is returned when an operation targets a resource with no cache
// entry. The orchestrator treats it as a cache inconsistency.
var ErrNoEntry = errors.New("no cache entry for resource")

// Entry is one resource's cached state. Treat every field as read-only.
type Entry struct {
	Resource         string
	Reference        string
	ReferenceHash    uint64
	Full             []*types.Issue
	Command          []*types.Issue
	Excluded         []*types.Issue
	ExclusionsLoaded bool
	RefreshedAt      time.Time

	merged []*types.Issue
	basis  epoch // Registry epoch a prepared entry was built under
}

// epoch counts invalidations: all counts Clear calls, key counts Invalidate
// calls for one resource.
type epoch struct {
	all, key uint64
}

// Merged returns the merged issue list: the full list with exclusion
// status carried over, followed by the command-plugin issues.
func (e *Entry) Merged() []*types.Issue {
	return e.merged
}

// derive returns a shallow copy of e suitable for modification before publishing.
func (e *Entry) derive() *Entry {
	c := *e
	return &c
}

// Registry maps resource keys to cache entries.
type Registry struct {
	source producer.ReferenceSource
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	entries     map[string]*Entry
	cleared     uint64
	invalidated map[string]uint64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry fetching reference text from source.
func NewRegistry(source producer.ReferenceSource, opts ...Option) *Registry {
	r := &Registry{
		source:  source,
		logger:  slog.Default(),
		now:     time.Now,
		entries:     make(map[string]*Entry),
		invalidated: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) epochLocked(key string) epoch {
	return epoch{all: r.cleared, key: r.invalidated[key]}
}

// Get returns the current entry for key without refreshing.
func (r *Registry) Get(key string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	return e, ok
}

// Keys returns the cached resource keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// GetOrRefresh returns the entry for key, creating or rebuilding it as
// Prepare decides, and publishes a rebuilt entry immediately.
func (r *Registry) GetOrRefresh(ctx context.Context, key string, forceRefresh bool) (*Entry, error) {
	e, refreshed, err := r.Prepare(ctx, key, forceRefresh)
	if err != nil || !refreshed {
		return e, err
	}
	return r.Apply(key, e)
}

// Prepare returns the entry an analysis of key should run against. The entry
// is rebuilt when it is missing, when forceRefresh is set, or when the
// reference source reports an upstream modification newer than the entry.
// A rebuilt entry is returned with refreshed set and is not published: it
// only reaches readers through Apply, so a failed or cancelled analysis
// leaves the last published entry untouched. A rebuilt entry carries the
// current exclusion list and empty full and command lists.
func (r *Registry) Prepare(ctx context.Context, key string, forceRefresh bool) (e *Entry, refreshed bool, err error) {
	r.mu.Lock()
	cur, ok := r.entries[key]
	basis := r.epochLocked(key)
	r.mu.Unlock()
	if ok && !forceRefresh {
		stale, err := r.upstreamModified(ctx, cur)
		if err != nil {
			r.logger.Warn("modification probe failed; using cached entry", "resource", key, "error", err)
			return cur, false, nil
		}
		if !stale {
			return cur, false, nil
		}
	}

	text, err := r.source.FetchReferenceSource(ctx, key, forceRefresh)
	if err != nil {
		return nil, false, fmt.Errorf("fetching reference for %s: %w", key, err)
	}

	next := &Entry{
		Resource:      key,
		Reference:     text,
		ReferenceHash: xxhash.Sum64String(text),
		RefreshedAt:   r.now(),
		basis:         basis,
	}
	if ok {
		next.Excluded = cur.Excluded
		next.ExclusionsLoaded = cur.ExclusionsLoaded
	}
	next.merged = mergeIssues(nil, nil, next.Excluded)
	return next, true, nil
}

func (r *Registry) upstreamModified(ctx context.Context, e *Entry) (bool, error) {
	prober, ok := r.source.(producer.ModificationProber)
	if !ok {
		return false, nil
	}
	mod, err := prober.LastModified(ctx, e.Resource)
	if err != nil {
		return false, err
	}
	return mod.After(e.RefreshedAt), nil
}

// Update replaces the list reported by one source.
type Update struct {
	Source types.Source
	Issues []*types.Issue
}

// Merge replaces the list reported by source with issues and republishes the
// merged view. Issues are copied; the caller keeps ownership of its slice.
func (r *Registry) Merge(key string, source types.Source, issues []*types.Issue) (*Entry, error) {
	return r.Apply(key, nil, Update{Source: source, Issues: issues})
}

// Apply publishes the results of one analysis in a single swap. When
// refreshed (from Prepare) is non-nil it first replaces the reference text,
// dropping the full and command lists and keeping the exclusions currently
// published. Updates are then applied in order. Nothing is published when
// any update is invalid, or when the entry refreshed was derived from has
// since been invalidated.
func (r *Registry) Apply(key string, refreshed *Entry, updates ...Update) (*Entry, error) {
	owned := make([][]*types.Issue, len(updates))
	for i, u := range updates {
		switch u.Source {
		case types.SourceFull, types.SourceCommand, types.SourceExclusions:
		default:
			return nil, fmt.Errorf("merge into %s: unknown source %q", key, u.Source)
		}
		owned[i] = r.own(key, u.Source, u.Issues)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[key]
	var next *Entry
	switch {
	case refreshed != nil:
		if refreshed.basis != r.epochLocked(key) {
			return nil, fmt.Errorf("refresh %s: invalidated since prepared: %w", key, ErrNoEntry)
		}
		next = refreshed.derive()
		next.Full, next.Command = nil, nil
		if ok {
			next.Excluded = cur.Excluded
			next.ExclusionsLoaded = cur.ExclusionsLoaded
		}
	case !ok:
		if len(updates) == 0 {
			return nil, fmt.Errorf("update %s: %w", key, ErrNoEntry)
		}
		return nil, fmt.Errorf("merge %s issues into %s: %w", updates[0].Source, key, ErrNoEntry)
	default:
		next = cur.derive()
	}

	for i, u := range updates {
		switch u.Source {
		case types.SourceFull:
			next.Full = owned[i]
		case types.SourceCommand:
			next.Command = owned[i]
		case types.SourceExclusions:
			next.Excluded = r.exclusions(key, owned[i])
			next.ExclusionsLoaded = true
		}
	}
	next.merged = mergeIssues(next.Full, next.Command, next.Excluded)
	r.entries[key] = next
	return next, nil
}

// own copies issues reported by source so the cache never aliases producer
// or caller slices.
func (r *Registry) own(key string, source types.Source, issues []*types.Issue) []*types.Issue {
	owned := make([]*types.Issue, 0, len(issues))
	for _, issue := range issues {
		c := issue.Clone()
		if c.Resource == "" {
			c.Resource = key
		}
		c.Source = source
		if source == types.SourceExclusions && c.Status == "" {
			c.Status = types.StatusResolved
		}
		c.SetDefaults()
		owned = append(owned, c)
	}
	return owned
}

// exclusions keeps the first suppression per (rule, line), dropping entries
// that do not carry a false-positive or won't-fix resolution.
func (r *Registry) exclusions(key string, issues []*types.Issue) []*types.Issue {
	seen := make(map[exclusionKey]bool, len(issues))
	out := make([]*types.Issue, 0, len(issues))
	for _, issue := range issues {
		if !issue.IsSuppressed() {
			r.logger.Debug("ignoring exclusion without suppression resolution",
				"resource", key, "rule", issue.Rule, "line", issue.Line, "resolution", issue.Resolution)
			continue
		}
		k := exclusionKey{rule: issue.Rule, line: issue.Line}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, issue)
	}
	return out
}

// UpdateIssues applies mutate to copies of every cached issue whose identity
// is in keys, across all lists, and republishes the entry. Issues that end up
// suppressed are recorded as exclusions so the resolution survives the next
// analysis; exclusions that are no longer suppressed are dropped.
// It returns the number of distinct identities updated.
func (r *Registry) UpdateIssues(key string, keys []types.IssueKey, mutate func(*types.Issue)) (int, error) {
	want := make(map[types.IssueKey]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.entries[key]
	if !ok {
		return 0, fmt.Errorf("update issues in %s: %w", key, ErrNoEntry)
	}

	touched := make(map[types.IssueKey]*types.Issue)
	apply := func(list []*types.Issue) []*types.Issue {
		out := make([]*types.Issue, len(list))
		for i, issue := range list {
			id := issue.Identity()
			if !want[id] {
				out[i] = issue
				continue
			}
			c := issue.Clone()
			mutate(c)
			out[i] = c
			if _, seen := touched[id]; !seen {
				touched[id] = c
			}
		}
		return out
	}

	next := cur.derive()
	next.Full = apply(cur.Full)
	next.Command = apply(cur.Command)
	excluded := apply(cur.Excluded)

	have := make(map[exclusionKey]bool, len(excluded))
	next.Excluded = make([]*types.Issue, 0, len(excluded))
	for _, issue := range excluded {
		if issue.IsSuppressed() {
			next.Excluded = append(next.Excluded, issue)
			have[exclusionKey{issue.Rule, issue.Line}] = true
		}
	}
	ids := make([]types.IssueKey, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		issue := touched[id]
		k := exclusionKey{issue.Rule, issue.Line}
		if issue.IsSuppressed() && !have[k] {
			ex := issue.Clone()
			ex.Source = types.SourceExclusions
			next.Excluded = append(next.Excluded, ex)
			have[k] = true
		}
	}

	next.merged = mergeIssues(next.Full, next.Command, next.Excluded)
	r.entries[key] = next
	return len(touched), nil
}

// Invalidate drops the entry for key.
func (r *Registry) Invalidate(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	r.invalidated[key]++
}

// Clear drops every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*Entry)
	r.cleared++
}
