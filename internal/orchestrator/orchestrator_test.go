package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/issuelens/internal/eventbus"
	"github.com/steveyegge/issuelens/internal/filter"
	"github.com/steveyegge/issuelens/internal/producer"
	"github.com/steveyegge/issuelens/internal/types"
)

// fakeProducers implements every producer interface. When gate is set,
// RunFullAnalysis blocks until it is closed or the request is cancelled.
type fakeProducers struct {
	mu      sync.Mutex
	ref     map[string]string
	full    map[string][]*types.Issue
	fullErr map[string]error
	command map[string][]*types.Issue
	excl    map[string][]*types.Issue
	gate    chan struct{}

	started   chan string
	fullCalls atomic.Int32
	exclCalls atomic.Int32
}

func newFake() *fakeProducers {
	return &fakeProducers{
		ref:     map[string]string{},
		full:    map[string][]*types.Issue{},
		fullErr: map[string]error{},
		command: map[string][]*types.Issue{},
		excl:    map[string][]*types.Issue{},
		started: make(chan string, 16),
	}
}

func (f *fakeProducers) set() producer.Set {
	return producer.Set{Reference: f, Full: f, Incremental: f, Exclusions: f}
}

func (f *fakeProducers) FetchReferenceSource(_ context.Context, key string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ref[key], nil
}

func (f *fakeProducers) RunFullAnalysis(ctx context.Context, key string) ([]*types.Issue, error) {
	f.fullCalls.Add(1)
	f.started <- key
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fullErr[key]; err != nil {
		return nil, err
	}
	return f.full[key], nil
}

func (f *fakeProducers) RunIncrementalCommand(_ context.Context, key string) ([]*types.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.command[key], nil
}

func (f *fakeProducers) QueryExclusions(_ context.Context, key string) ([]*types.Issue, error) {
	f.exclCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.excl[key], nil
}

func lines(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

func issueAt(key, rule string, line int) *types.Issue {
	return &types.Issue{Resource: key, Rule: rule, Line: line, Severity: types.SeverityMajor, Debt: "5min"}
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(t *testing.T, f *fakeProducers) *Orchestrator {
	t.Helper()
	o := New(Config{Producers: f.set(), Now: func() time.Time { return fixedNow }})
	t.Cleanup(func() { _ = o.Close() })
	return o
}

// countEvents counts bus events by type.
type countEvents struct {
	mu     sync.Mutex
	counts map[eventbus.EventType]int
}

func watch(o *Orchestrator) *countEvents {
	c := &countEvents{counts: map[eventbus.EventType]int{}}
	o.Bus().Subscribe("test-counter", eventbus.AllEventTypes, func(_ context.Context, ev *eventbus.Event) {
		c.mu.Lock()
		c.counts[ev.Type]++
		c.mu.Unlock()
	})
	return c
}

func (c *countEvents) get(t eventbus.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}

func awaitStart(t *testing.T, f *fakeProducers) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis did not start")
	}
}

func wait(t *testing.T, tk *Ticket) (Outcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return tk.Wait(ctx)
}

func TestSingleFlightSaveRequests(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 2)}
	f.gate = make(chan struct{})
	o := newTestOrchestrator(t, f)
	events := watch(o)
	ctx := context.Background()

	t1, err := o.Submit(ctx, Request{Resource: "a.go", Trigger: TriggerSave})
	require.NoError(t, err)
	awaitStart(t, f)
	assert.Equal(t, StateRunning, o.State("a.go"))

	t2, err := o.Submit(ctx, Request{Resource: "a.go", Trigger: TriggerSave})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Same(t, t1, t2)

	close(f.gate)
	outcome, err := wait(t, t1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	assert.Equal(t, int32(1), f.fullCalls.Load())
	assert.Equal(t, 1, events.get(eventbus.EventIssuesRefreshed), "exactly one merge published")
	assert.Equal(t, 1, events.get(eventbus.EventAnalysisSkipped))
	assert.Equal(t, StateIdle, o.State("a.go"))
	assert.Len(t, o.DisplayedIssues("a.go"), 1)
}

func TestUserRequestSupersedesRunning(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 2)}
	f.gate = make(chan struct{})
	o := newTestOrchestrator(t, f)
	ctx := context.Background()

	t1, err := o.Submit(ctx, Request{Resource: "a.go", Trigger: TriggerSave})
	require.NoError(t, err)
	awaitStart(t, f)

	t2, err := o.Submit(ctx, Request{Resource: "a.go", Trigger: TriggerUser})
	require.NoError(t, err)
	assert.NotSame(t, t1, t2)

	outcome, err := wait(t, t1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)
	_, cause := t1.Outcome()
	assert.ErrorIs(t, cause, errSuperseded)

	awaitStart(t, f)
	close(f.gate)
	outcome, _ = wait(t, t2)
	assert.Equal(t, OutcomeCompleted, outcome)
	assert.Len(t, o.DisplayedIssues("a.go"), 1)
}

func TestFailureKeepsLastKnownGood(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 1), issueAt("a.go", "R2", 3)}
	o := newTestOrchestrator(t, f)
	ctx := context.Background()

	outcome, err := o.Run(ctx, Request{Resource: "a.go"})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)

	f.mu.Lock()
	f.fullErr["a.go"] = errors.New("analyzer crashed")
	f.mu.Unlock()
	events := watch(o)

	outcome, err = o.Run(ctx, Request{Resource: "a.go", Trigger: TriggerUser})
	assert.Equal(t, OutcomeFailed, outcome)
	var ierr *InvocationError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "a.go", ierr.Resource)
	assert.Equal(t, ModeFull, ierr.Mode)

	assert.Len(t, o.DisplayedIssues("a.go"), 2, "previous issues stay visible")
	diag := o.Diagnostics("a.go")
	assert.Equal(t, OutcomeFailed, diag.Outcome)
	assert.Contains(t, diag.Message, "failed")
	assert.Contains(t, diag.Err.Error(), "analyzer crashed")
	assert.Equal(t, StateIdle, o.State("a.go"))
	assert.Equal(t, 1, events.get(eventbus.EventAnalysisFailed))
	assert.Zero(t, events.get(eventbus.EventIssuesRefreshed))
}

func TestForcedRefreshFailureKeepsLastKnownGood(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 1), issueAt("a.go", "R2", 3)}
	o := newTestOrchestrator(t, f)
	ctx := context.Background()

	outcome, err := o.Run(ctx, Request{Resource: "a.go"})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, outcome)
	before, ok := o.Registry().Get("a.go")
	require.True(t, ok)

	f.mu.Lock()
	f.ref["a.go"] = lines(6)
	f.fullErr["a.go"] = errors.New("analyzer crashed")
	f.mu.Unlock()

	outcome, err = o.Run(ctx, Request{Resource: "a.go", Trigger: TriggerUser, Force: true})
	assert.Equal(t, OutcomeFailed, outcome)
	require.Error(t, err)

	after, ok := o.Registry().Get("a.go")
	require.True(t, ok)
	assert.Same(t, before, after, "failed refresh publishes nothing")
	assert.Equal(t, lines(5), after.Reference)

	v := o.SetBuffer("a.go", lines(5))
	assert.Len(t, v.Displayed, 2)
	assert.Len(t, o.DisplayedIssues("a.go"), 2)
}

func TestForcedRefreshCancelledKeepsLastKnownGood(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 1)}
	o := newTestOrchestrator(t, f)
	ctx := context.Background()

	_, err := o.Run(ctx, Request{Resource: "a.go"})
	require.NoError(t, err)
	awaitStart(t, f)

	f.mu.Lock()
	f.gate = make(chan struct{})
	f.mu.Unlock()
	tk, err := o.Submit(ctx, Request{Resource: "a.go", Trigger: TriggerUser, Force: true})
	require.NoError(t, err)
	awaitStart(t, f)
	assert.Len(t, o.DisplayedIssues("a.go"), 1, "issues visible while refreshing")
	assert.True(t, o.Cancel("a.go"))

	outcome, _ := wait(t, tk)
	assert.Equal(t, OutcomeCancelled, outcome)
	entry, ok := o.Registry().Get("a.go")
	require.True(t, ok)
	assert.Len(t, entry.Merged(), 1)
	close(f.gate)
}

func TestCancellationSkipsMerge(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 1)}
	f.gate = make(chan struct{})
	o := newTestOrchestrator(t, f)
	ctx := context.Background()

	tk, err := o.Submit(ctx, Request{Resource: "a.go"})
	require.NoError(t, err)
	awaitStart(t, f)
	assert.True(t, o.Cancel("a.go"))

	outcome, _ := wait(t, tk)
	assert.Equal(t, OutcomeCancelled, outcome)
	_, ok := o.Registry().Get("a.go")
	assert.False(t, ok, "nothing published for a cancelled first run")
	assert.Equal(t, StateIdle, o.State("a.go"))
	assert.False(t, o.Cancel("a.go"))

	close(f.gate)
	outcome, err = o.Run(ctx, Request{Resource: "a.go", Trigger: TriggerSave})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)
}

func TestBufferInsertionRemapsIssue(t *testing.T) {
	f := newFake()
	ref := lines(10)
	f.ref["a.go"] = ref
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 5)}
	o := newTestOrchestrator(t, f)

	_, err := o.Run(context.Background(), Request{Resource: "a.go"})
	require.NoError(t, err)

	refLines := strings.SplitAfter(ref, "\n")
	cur := strings.Join(refLines[:4], "") + "inserted 1\ninserted 2\n" + strings.Join(refLines[4:], "")
	v := o.SetBuffer("a.go", cur)

	require.Len(t, v.Displayed, 1)
	assert.Equal(t, 7, v.Displayed[0].CurrentLine)
	assert.Equal(t, 5, v.Displayed[0].Issue.Line, "cached issue keeps its reference line")
	assert.Empty(t, o.IssuesInChangedRegions("a.go"))

	v = o.CloseBuffer("a.go")
	assert.Equal(t, 5, v.Displayed[0].CurrentLine)
}

func TestModifiedLinesOnly(t *testing.T) {
	f := newFake()
	ref := lines(40)
	f.ref["a.go"] = ref
	for l := 1; l <= 40; l++ {
		f.full["a.go"] = append(f.full["a.go"], issueAt("a.go", "R", l))
	}
	o := newTestOrchestrator(t, f)
	_, err := o.Run(context.Background(), Request{Resource: "a.go"})
	require.NoError(t, err)

	refLines := strings.SplitAfter(ref, "\n")
	for i := 19; i < 25; i++ {
		refLines[i] = "edited " + refLines[i]
	}
	o.SetBuffer("a.go", strings.Join(refLines, ""))

	changed := o.IssuesInChangedRegions("a.go")
	require.Len(t, changed, 6)
	assert.Equal(t, 20, changed[0].Issue.Line)
	assert.Equal(t, 25, changed[5].Issue.Line)
	assert.Len(t, o.DisplayedIssues("a.go"), 40)

	entry, _ := o.Registry().Get("a.go")
	assert.Len(t, entry.Merged(), 40, "cache keeps every issue")

	o.SetCriteria(filter.Criteria{ModifiedLinesOnly: true})
	assert.Len(t, o.DisplayedIssues("a.go"), 6)
	assert.Equal(t, 6, o.Statistics("a.go").Count)
	assert.Equal(t, 30, o.Statistics("a.go").DebtMinutes)
}

func TestExclusionsLoadedOnceAndCarriedOver(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 2), issueAt("a.go", "R2", 3)}
	f.excl["a.go"] = []*types.Issue{{Resource: "a.go", Rule: "R1", Line: 2,
		Status: types.StatusResolved, Resolution: types.ResolutionFalsePositive}}
	o := newTestOrchestrator(t, f)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		outcome, err := o.Run(ctx, Request{Resource: "a.go", Trigger: TriggerUser})
		require.NoError(t, err)
		require.Equal(t, OutcomeCompleted, outcome)
	}
	assert.Equal(t, int32(1), f.exclCalls.Load())

	displayed := o.DisplayedIssues("a.go")
	require.Len(t, displayed, 2)
	assert.Equal(t, types.ResolutionFalsePositive, displayed[0].Issue.Resolution)
	assert.Equal(t, types.ResolutionNone, displayed[1].Issue.Resolution)
}

func TestIncrementalIssuesAppended(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 2)}
	f.command["a.go"] = []*types.Issue{issueAt("a.go", "R1", 2)}
	o := newTestOrchestrator(t, f)
	ctx := context.Background()

	_, err := o.Run(ctx, Request{Resource: "a.go", Mode: ModeFull})
	require.NoError(t, err)
	_, err = o.Run(ctx, Request{Resource: "a.go", Mode: ModeIncremental})
	require.NoError(t, err)

	displayed := o.DisplayedIssues("a.go")
	require.Len(t, displayed, 2)
	assert.Equal(t, types.SourceFull, displayed[0].Issue.Source)
	assert.Equal(t, types.SourceCommand, displayed[1].Issue.Source)
}

func TestInvalidTextFallsBackToReferencePositions(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 4)}
	o := newTestOrchestrator(t, f)
	_, err := o.Run(context.Background(), Request{Resource: "a.go"})
	require.NoError(t, err)

	v := o.SetBuffer("a.go", "bad \xff\xfe text\n")
	require.Error(t, v.DiffErr)
	require.Len(t, v.Displayed, 1)
	assert.Equal(t, 4, v.Displayed[0].CurrentLine)
	assert.Empty(t, v.Changed)
}

func TestAnalyzeAllContinuesPastFailures(t *testing.T) {
	f := newFake()
	for _, k := range []string{"a.go", "b.go", "c.go"} {
		f.ref[k] = lines(3)
		f.full[k] = []*types.Issue{issueAt(k, "R", 1)}
	}
	f.fullErr["b.go"] = errors.New("boom")
	o := newTestOrchestrator(t, f)

	err := o.AnalyzeAll(context.Background(), []string{"a.go", "b.go", "c.go"}, ModeFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.go")
	assert.NotContains(t, err.Error(), "a.go")

	assert.Len(t, o.DisplayedIssues("a.go"), 1)
	assert.Len(t, o.DisplayedIssues("c.go"), 1)
	assert.Empty(t, o.DisplayedIssues("b.go"))
}

func TestUpdateIssuesWithoutReanalysis(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 2)}
	o := newTestOrchestrator(t, f)
	_, err := o.Run(context.Background(), Request{Resource: "a.go"})
	require.NoError(t, err)

	n, err := o.UpdateIssues("a.go", []types.IssueKey{{Resource: "a.go", Rule: "R1", Line: 2}}, func(i *types.Issue) {
		i.Status = types.StatusConfirmed
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, types.StatusConfirmed, o.DisplayedIssues("a.go")[0].Issue.Status)
	assert.Equal(t, int32(1), f.fullCalls.Load())

	_, err = o.UpdateIssues("missing.go", nil, func(*types.Issue) {})
	assert.Error(t, err)
}

func TestClearDropsEverything(t *testing.T) {
	f := newFake()
	f.ref["a.go"] = lines(5)
	f.full["a.go"] = []*types.Issue{issueAt("a.go", "R1", 2)}
	o := newTestOrchestrator(t, f)
	events := watch(o)
	_, err := o.Run(context.Background(), Request{Resource: "a.go"})
	require.NoError(t, err)

	o.Clear()
	_, ok := o.View("a.go")
	assert.False(t, ok)
	assert.Empty(t, o.Registry().Keys())
	assert.Equal(t, 1, events.get(eventbus.EventCacheCleared))
}

func TestSubmitAfterClose(t *testing.T) {
	o := newTestOrchestrator(t, newFake())
	require.NoError(t, o.Close())
	_, err := o.Submit(context.Background(), Request{Resource: "a.go"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"full": ModeFull, "Incremental": ModeIncremental, "exclusions": ModeExclusions} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("partial")
	assert.Error(t, err)
}
