package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/steveyegge/issuelens/internal/cache"
	"github.com/steveyegge/issuelens/internal/eventbus"
	"github.com/steveyegge/issuelens/internal/filter"
	"github.com/steveyegge/issuelens/internal/remap"
	"github.com/steveyegge/issuelens/internal/sourcediff"
	"github.com/steveyegge/issuelens/internal/types"
)

// View is the consumer-facing snapshot of one resource. A published View is
// never modified; each rebuild swaps in a new one.
type View struct {
	Resource   string
	Positioned []remap.Positioned // Every merged issue placed against the current text
	Changed    []remap.Positioned // Subset inside changed regions
	Displayed  []remap.Positioned // Positioned after filtering
	Stats      types.Statistics
	Warnings   []error // Skipped filter predicates
	DiffErr    error   // Non-nil when no correlation was available
	Report     *sourcediff.Report
	BuiltAt    time.Time
}

func emptyView(key string, now time.Time) *View {
	return &View{Resource: key, Stats: types.NewStatistics(), BuiltAt: now}
}

// View returns the current view for key.
func (o *Orchestrator) View(key string) (*View, bool) {
	o.mu.Lock()
	s, ok := o.slots[key]
	o.mu.Unlock()
	if !ok {
		return nil, false
	}
	v := s.view.Load()
	return v, v != nil
}

// DisplayedIssues returns the filtered, positioned issues for key.
func (o *Orchestrator) DisplayedIssues(key string) []remap.Positioned {
	if v, ok := o.View(key); ok {
		return v.Displayed
	}
	return nil
}

// IssuesInChangedRegions returns the issues of key that sit on lines
// changed since the reference snapshot, regardless of filters.
func (o *Orchestrator) IssuesInChangedRegions(key string) []remap.Positioned {
	if v, ok := o.View(key); ok {
		return v.Changed
	}
	return nil
}

// Statistics returns the statistics of the displayed issues for key.
func (o *Orchestrator) Statistics(key string) types.Statistics {
	if v, ok := o.View(key); ok {
		return v.Stats
	}
	return types.NewStatistics()
}

// SetBuffer records the current editor text for key and rebuilds its view.
func (o *Orchestrator) SetBuffer(key, text string) *View {
	o.mu.Lock()
	s := o.slotLocked(key)
	s.buffer, s.hasBuffer = text, true
	o.mu.Unlock()
	return o.refreshView(key)
}

// CloseBuffer forgets the editor text for key; issues are shown against the
// reference text again.
func (o *Orchestrator) CloseBuffer(key string) *View {
	o.mu.Lock()
	s := o.slotLocked(key)
	s.buffer, s.hasBuffer = "", false
	o.mu.Unlock()
	return o.refreshView(key)
}

// Criteria returns the active filter criteria.
func (o *Orchestrator) Criteria() filter.Criteria {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.criteria
}

// SetCriteria replaces the filter criteria and rebuilds every view.
func (o *Orchestrator) SetCriteria(c filter.Criteria) {
	o.mu.Lock()
	o.criteria = c
	keys := make([]string, 0, len(o.slots))
	for k := range o.slots {
		keys = append(keys, k)
	}
	o.mu.Unlock()
	for _, k := range keys {
		o.refreshView(k)
	}
}

// UpdateIssues mutates cached issues of key in place of a re-analysis, e.g.
// after an action changed their status remotely, and rebuilds the view.
func (o *Orchestrator) UpdateIssues(key string, ids []types.IssueKey, mutate func(*types.Issue)) (int, error) {
	n, err := o.registry.UpdateIssues(key, ids, mutate)
	if err != nil {
		if errors.Is(err, cache.ErrNoEntry) {
			o.logger.Warn("cache inconsistency: update for uncached resource", "resource", key)
		}
		return 0, err
	}
	o.refreshView(key)
	return n, nil
}

// Invalidate drops the cached entry for key and empties its view.
func (o *Orchestrator) Invalidate(key string) {
	o.registry.Invalidate(key)
	o.refreshView(key)
}

// Clear cancels every running request and drops every cached resource,
// e.g. on disconnect or project close.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	slots := make([]*slot, 0, len(o.slots))
	for _, s := range o.slots {
		if s.running != nil {
			s.running.Cancel()
		}
		slots = append(slots, s)
	}
	o.registry.Clear()
	o.mu.Unlock()

	now := o.now()
	for _, s := range slots {
		s.viewMu.Lock()
		s.view.Store(nil)
		s.memo.Reset()
		s.viewMu.Unlock()
	}
	o.publish(&eventbus.Event{Type: eventbus.EventCacheCleared, At: now})
}

// refreshView rebuilds and publishes the view of key from the latest cache
// entry, buffer and criteria.
func (o *Orchestrator) refreshView(key string) *View {
	s := o.slotFor(key)
	s.viewMu.Lock()
	v := o.buildView(key, s)
	s.view.Store(v)
	s.viewMu.Unlock()

	o.publish(&eventbus.Event{
		Type:     eventbus.EventIssuesRefreshed,
		Resource: key,
		Count:    len(v.Displayed),
		At:       v.BuiltAt,
	})
	return v
}

// buildView computes a view. Caller holds s.viewMu.
func (o *Orchestrator) buildView(key string, s *slot) *View {
	o.mu.Lock()
	buffer, hasBuffer := s.buffer, s.hasBuffer
	criteria := o.criteria
	o.mu.Unlock()

	now := o.now()
	entry, ok := o.registry.Get(key)
	if !ok {
		return emptyView(key, now)
	}

	v := &View{Resource: key, BuiltAt: now}
	current := entry.Reference
	if hasBuffer {
		current = buffer
	}
	report, err := s.memo.Diff(entry.Reference, current)
	if err != nil {
		o.logger.Warn("no line correlation available; showing reference positions",
			"resource", key, "error", err)
		v.DiffErr = err
		v.Positioned = remap.Identity(entry.Merged())
	} else {
		v.Report = report
		v.Positioned, v.Changed = remap.Remap(entry.Merged(), report, o.logger)
	}

	res := filter.Apply(criteria, v.Positioned, filter.Options{
		Now:         now,
		HoursPerDay: o.hoursPerDay,
		Logger:      o.logger,
	})
	v.Displayed, v.Stats, v.Warnings = res.Issues, res.Stats, res.Warnings
	return v
}

// Subscribe registers fn for refresh notifications.
func (o *Orchestrator) Subscribe(id string, fn func(ctx context.Context, ev *eventbus.Event)) func() {
	return o.bus.Subscribe(id, []eventbus.EventType{eventbus.EventIssuesRefreshed}, fn)
}
