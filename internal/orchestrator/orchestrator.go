// Package orchestrator coordinates analysis of resources. It admits at most
// one in-flight request per resource key, routes producer results into the
// cache registry, rebuilds the positioned and filtered views consumers read,
// and publishes notifications on the event bus.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/issuelens/internal/cache"
	"github.com/steveyegge/issuelens/internal/eventbus"
	"github.com/steveyegge/issuelens/internal/filter"
	"github.com/steveyegge/issuelens/internal/producer"
	"github.com/steveyegge/issuelens/internal/sourcediff"
	"github.com/steveyegge/issuelens/internal/types"
)

// DefaultJobs is the cross-resource parallelism of AnalyzeAll.
const DefaultJobs = 4

// Config wires an Orchestrator.
type Config struct {
	Producers   producer.Set
	Registry    *cache.Registry // nil: a fresh registry over Producers.Reference
	Bus         *eventbus.Bus   // nil: a private bus
	Logger      *slog.Logger
	Jobs        int
	HoursPerDay int
	Now         func() time.Time
}

// Orchestrator owns the per-resource admission state.
type Orchestrator struct {
	producers   producer.Set
	registry    *cache.Registry
	bus         *eventbus.Bus
	logger      *slog.Logger
	jobs        int
	hoursPerDay int
	now         func() time.Time

	seq atomic.Uint64
	wg  sync.WaitGroup

	mu       sync.Mutex
	slots    map[string]*slot
	criteria filter.Criteria
	closed   bool
}

// slot is one resource's admission and view state. Fields other than view
// and memo are guarded by Orchestrator.mu.
type slot struct {
	running   *Ticket
	last      Diagnostic
	buffer    string
	hasBuffer bool

	viewMu sync.Mutex // serializes view rebuilds
	memo   sourcediff.Memo
	view   atomic.Pointer[View]
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = cache.NewRegistry(cfg.Producers.Reference, cache.WithLogger(logger))
	}
	bus := cfg.Bus
	if bus == nil {
		bus = eventbus.New(eventbus.WithLogger(logger))
	}
	jobs := cfg.Jobs
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		producers:   cfg.Producers,
		registry:    registry,
		bus:         bus,
		logger:      logger,
		jobs:        jobs,
		hoursPerDay: cfg.HoursPerDay,
		now:         now,
		slots:       make(map[string]*slot),
	}
}

// Bus returns the bus notifications are published on.
func (o *Orchestrator) Bus() *eventbus.Bus { return o.bus }

// Registry returns the cache registry.
func (o *Orchestrator) Registry() *cache.Registry { return o.registry }

// slotLocked returns the slot for key, creating it. Caller holds o.mu.
func (o *Orchestrator) slotLocked(key string) *slot {
	s, ok := o.slots[key]
	if !ok {
		s = &slot{}
		o.slots[key] = s
	}
	return s
}

func (o *Orchestrator) slotFor(key string) *slot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.slotLocked(key)
}

// Submit admits req and starts it in the background. A save or open request
// for a resource that is already running returns the running ticket together
// with ErrDuplicate. A user request cancels the running one and replaces it.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Ticket, error) {
	if req.Resource == "" {
		return nil, fmt.Errorf("submit: empty resource key")
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	s := o.slotLocked(req.Resource)
	if running := s.running; running != nil {
		if req.Trigger != TriggerUser {
			o.mu.Unlock()
			o.logger.Info("analysis already running; ignoring request",
				"resource", req.Resource, "mode", req.Mode, "trigger", req.Trigger, "running_seq", running.Seq)
			o.publish(&eventbus.Event{Type: eventbus.EventAnalysisSkipped, Resource: req.Resource, Mode: req.Mode.String(), Seq: running.Seq})
			return running, ErrDuplicate
		}
		o.logger.Debug("superseding running analysis", "resource", req.Resource, "seq", running.Seq)
		running.cancel(errSuperseded)
	}

	seq := o.seq.Add(1)
	tctx, cancel := context.WithCancelCause(ctx)
	t := newTicket(req, seq, cancel)
	s.running = t
	o.wg.Add(1)
	o.mu.Unlock()

	o.publish(&eventbus.Event{Type: eventbus.EventAnalysisStarted, Resource: req.Resource, Mode: req.Mode.String(), Seq: seq})
	go o.execute(tctx, t)
	return t, nil
}

// Run submits req and waits for it.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	t, err := o.Submit(ctx, req)
	if errors.Is(err, ErrDuplicate) {
		return OutcomeSkipped, err
	}
	if err != nil {
		return OutcomeNone, err
	}
	return t.Wait(ctx)
}

// AnalyzeAll runs mode for every key with bounded parallelism. Failures are
// collected and joined; one failing resource never stops the others.
// Resources already running are skipped.
func (o *Orchestrator) AnalyzeAll(ctx context.Context, keys []string, mode Mode) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(o.jobs)
	for _, key := range keys {
		g.Go(func() error {
			outcome, err := o.Run(ctx, Request{Resource: key, Mode: mode, Trigger: TriggerOpen})
			if errors.Is(err, ErrDuplicate) {
				return nil
			}
			if err == nil && outcome == OutcomeCancelled {
				err = fmt.Errorf("%s: %w", key, context.Canceled)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Cancel cancels the running request for key, if any.
func (o *Orchestrator) Cancel(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.slots[key]
	if !ok || s.running == nil {
		return false
	}
	s.running.Cancel()
	return true
}

// State reports whether key has a request in flight.
func (o *Orchestrator) State(key string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.slots[key]; ok && s.running != nil {
		return StateRunning
	}
	return StateIdle
}

// Diagnostics returns the last recorded outcome for key.
func (o *Orchestrator) Diagnostics(key string) Diagnostic {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.slots[key]; ok {
		return s.last
	}
	return Diagnostic{}
}

// Close cancels every running request and waits for them to finish.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	for _, s := range o.slots {
		if s.running != nil {
			s.running.Cancel()
		}
	}
	o.mu.Unlock()
	o.wg.Wait()
	return nil
}

// result carries producer output from execute to commit.
type result struct {
	refreshed     *cache.Entry // unpublished rebuilt entry, nil when the cached one was used
	issues        []*types.Issue
	exclusions    []*types.Issue
	hasExclusions bool
}

func (o *Orchestrator) execute(ctx context.Context, t *Ticket) {
	defer o.wg.Done()
	start := o.now()
	res, err := o.invoke(ctx, t)
	o.commit(ctx, t, res, err)
	o.logger.Debug("analysis finished", "resource", t.Resource, "mode", t.Mode, "seq", t.Seq,
		"elapsed", o.now().Sub(start))
}

// invoke runs the producers for t's mode. No cache state changes here.
func (o *Orchestrator) invoke(ctx context.Context, t *Ticket) (result, error) {
	var res result
	wrap := func(err error) error {
		return &InvocationError{Resource: t.Resource, Mode: t.Mode, Err: err}
	}

	entry, refreshed, err := o.registry.Prepare(ctx, t.Resource, t.Force && t.Mode == ModeFull)
	if err != nil {
		return res, wrap(err)
	}
	if refreshed {
		res.refreshed = entry
	}

	switch t.Mode {
	case ModeFull:
		if o.producers.Full == nil {
			return res, wrap(errors.New("no full analyzer configured"))
		}
		if !entry.ExclusionsLoaded && o.producers.Exclusions != nil {
			excl, err := o.producers.Exclusions.QueryExclusions(ctx, t.Resource)
			switch {
			case err == nil:
				res.exclusions, res.hasExclusions = excl, true
			case ctx.Err() != nil:
				return res, ctx.Err()
			default:
				o.logger.Warn("exclusion query failed; merging without exclusions",
					"resource", t.Resource, "error", err)
			}
		}
		res.issues, err = o.producers.Full.RunFullAnalysis(ctx, t.Resource)
	case ModeIncremental:
		if o.producers.Incremental == nil {
			return res, wrap(errors.New("no incremental analyzer configured"))
		}
		res.issues, err = o.producers.Incremental.RunIncrementalCommand(ctx, t.Resource)
	case ModeExclusions:
		if o.producers.Exclusions == nil {
			return res, wrap(errors.New("no exclusion source configured"))
		}
		res.issues, err = o.producers.Exclusions.QueryExclusions(ctx, t.Resource)
	default:
		return res, wrap(fmt.Errorf("unknown mode %d", int(t.Mode)))
	}
	if err != nil {
		return res, wrap(err)
	}
	return res, nil
}

func sourceFor(m Mode) types.Source {
	switch m {
	case ModeIncremental:
		return types.SourceCommand
	case ModeExclusions:
		return types.SourceExclusions
	default:
		return types.SourceFull
	}
}

// commit verifies t is still the admitted request for its resource, then
// merges its results, records the outcome and releases admission.
func (o *Orchestrator) commit(ctx context.Context, t *Ticket, res result, err error) {
	key := t.Resource
	diag := Diagnostic{Seq: t.Seq, Mode: t.Mode, At: o.now()}

	o.mu.Lock()
	s := o.slotLocked(key)
	admitted := s.running == t
	switch {
	case ctx.Err() != nil:
		diag.Outcome = OutcomeCancelled
		diag.Err = context.Cause(ctx)
		diag.Message = "analysis cancelled"
	case !admitted:
		o.logger.Warn("cache inconsistency: result for a request that is no longer admitted",
			"resource", key, "seq", t.Seq)
		diag.Outcome = OutcomeCancelled
		diag.Err = errSuperseded
		diag.Message = "analysis superseded"
	case err != nil:
		diag.Outcome = OutcomeFailed
		diag.Err = err
		diag.Message = fmt.Sprintf("%s analysis failed for %s", t.Mode, key)
		o.logger.Warn("analysis failed; keeping last known issues", "resource", key, "mode", t.Mode, "error", err)
	default:
		diag.Outcome = OutcomeCompleted
		diag.Message = fmt.Sprintf("%d issues", len(res.issues))
		updates := make([]cache.Update, 0, 2)
		if res.hasExclusions {
			updates = append(updates, cache.Update{Source: types.SourceExclusions, Issues: res.exclusions})
		}
		updates = append(updates, cache.Update{Source: sourceFor(t.Mode), Issues: res.issues})
		// The rebuilt reference and the new lists become visible together.
		if _, err = o.registry.Apply(key, res.refreshed, updates...); err != nil {
			// The entry vanished under us (Invalidate/Clear); nothing was merged.
			o.logger.Warn("cache inconsistency: merge skipped", "resource", key, "error", err)
			diag.Outcome = OutcomeCancelled
			diag.Err = err
			diag.Message = "cache cleared during analysis"
		}
	}
	if admitted {
		s.running = nil
		s.last = diag
	}
	o.mu.Unlock()

	if diag.Outcome == OutcomeCompleted {
		// The view is in place before waiters are released.
		o.refreshView(key)
		t.finish(diag.Outcome, nil)
		return
	}
	t.finish(diag.Outcome, diag.Err)

	ev := &eventbus.Event{Resource: key, Mode: t.Mode.String(), Seq: t.Seq, At: diag.At}
	switch diag.Outcome {
	case OutcomeFailed:
		ev.Type = eventbus.EventAnalysisFailed
		ev.Error = diag.Err.Error()
	default:
		ev.Type = eventbus.EventAnalysisCancelled
		if diag.Err != nil {
			ev.Error = diag.Err.Error()
		}
	}
	o.publish(ev)
}

func (o *Orchestrator) publish(ev *eventbus.Event) {
	if ev.At.IsZero() {
		ev.At = o.now()
	}
	// Notifications must not be lost because a request context ended.
	if _, err := o.bus.Dispatch(context.Background(), ev); err != nil {
		o.logger.Warn("event dispatch failed", "event", ev.Type, "resource", ev.Resource, "error", err)
	}
}
