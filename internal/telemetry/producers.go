package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/issuelens/internal/producer"
	"github.com/steveyegge/issuelens/internal/types"
)

const producerScopeName = "github.com/steveyegge/issuelens/producer"

// instruments is shared by every instrumented producer.
type instruments struct {
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
	issues metric.Int64Counter
}

func newInstruments() *instruments {
	m := Meter(producerScopeName)
	ops, _ := m.Int64Counter("lens.producer.operations",
		metric.WithDescription("Total producer invocations"),
	)
	dur, _ := m.Float64Histogram("lens.producer.operation.duration",
		metric.WithDescription("Producer invocation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("lens.producer.errors",
		metric.WithDescription("Total producer invocation errors"),
	)
	issues, _ := m.Int64Counter("lens.producer.issues",
		metric.WithDescription("Issues returned by producers"),
	)
	return &instruments{
		tracer: Tracer(producerScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
		issues: issues,
	}
}

// op starts a span and records a metric for the named producer operation.
func (in *instruments) op(ctx context.Context, name, key string) (context.Context, trace.Span, time.Time, []attribute.KeyValue) {
	attrs := []attribute.KeyValue{
		attribute.String("lens.operation", name),
		attribute.String("lens.resource", key),
	}
	ctx, span := in.tracer.Start(ctx, "producer."+name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	in.ops.Add(ctx, 1, metric.WithAttributes(attrs[0]))
	return ctx, span, time.Now(), attrs
}

// done ends the span, records duration and optional error.
func (in *instruments) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs []attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	in.dur.Record(ctx, ms, metric.WithAttributes(attrs[0]))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.errs.Add(ctx, 1, metric.WithAttributes(attrs[0]))
	}
	span.End()
}

func (in *instruments) issueList(ctx context.Context, name, key string, fn func(context.Context) ([]*types.Issue, error)) ([]*types.Issue, error) {
	ctx, span, t, attrs := in.op(ctx, name, key)
	issues, err := fn(ctx)
	span.SetAttributes(attribute.Int("lens.issue.count", len(issues)))
	in.issues.Add(ctx, int64(len(issues)), metric.WithAttributes(attrs[0]))
	in.done(ctx, span, t, err, attrs)
	return issues, err
}

// WrapProducers decorates every producer in set with OTel tracing and
// metrics. When telemetry is disabled, set is returned unchanged.
func WrapProducers(set producer.Set) producer.Set {
	if !Enabled() {
		return set
	}
	in := newInstruments()
	out := producer.Set{}
	if set.Reference != nil {
		out.Reference = &instrumentedReference{inner: set.Reference, in: in}
	}
	if set.Full != nil {
		out.Full = &instrumentedFull{inner: set.Full, in: in}
	}
	if set.Incremental != nil {
		out.Incremental = &instrumentedIncremental{inner: set.Incremental, in: in}
	}
	if set.Exclusions != nil {
		out.Exclusions = &instrumentedExclusions{inner: set.Exclusions, in: in}
	}
	return out
}

type instrumentedReference struct {
	inner producer.ReferenceSource
	in    *instruments
}

func (r *instrumentedReference) FetchReferenceSource(ctx context.Context, key string, force bool) (string, error) {
	ctx, span, t, attrs := r.in.op(ctx, "FetchReferenceSource", key)
	span.SetAttributes(attribute.Bool("lens.force", force))
	text, err := r.inner.FetchReferenceSource(ctx, key, force)
	r.in.done(ctx, span, t, err, attrs)
	return text, err
}

// LastModified keeps the wrapped source's probe visible to the cache.
func (r *instrumentedReference) LastModified(ctx context.Context, key string) (time.Time, error) {
	prober, ok := r.inner.(producer.ModificationProber)
	if !ok {
		return time.Time{}, nil
	}
	ctx, span, t, attrs := r.in.op(ctx, "LastModified", key)
	mod, err := prober.LastModified(ctx, key)
	r.in.done(ctx, span, t, err, attrs)
	return mod, err
}

type instrumentedFull struct {
	inner producer.FullAnalyzer
	in    *instruments
}

func (f *instrumentedFull) RunFullAnalysis(ctx context.Context, key string) ([]*types.Issue, error) {
	return f.in.issueList(ctx, "RunFullAnalysis", key, func(ctx context.Context) ([]*types.Issue, error) {
		return f.inner.RunFullAnalysis(ctx, key)
	})
}

type instrumentedIncremental struct {
	inner producer.IncrementalAnalyzer
	in    *instruments
}

func (c *instrumentedIncremental) RunIncrementalCommand(ctx context.Context, key string) ([]*types.Issue, error) {
	return c.in.issueList(ctx, "RunIncrementalCommand", key, func(ctx context.Context) ([]*types.Issue, error) {
		return c.inner.RunIncrementalCommand(ctx, key)
	})
}

type instrumentedExclusions struct {
	inner producer.ExclusionQuerier
	in    *instruments
}

func (e *instrumentedExclusions) QueryExclusions(ctx context.Context, key string) ([]*types.Issue, error) {
	return e.in.issueList(ctx, "QueryExclusions", key, func(ctx context.Context) ([]*types.Issue, error) {
		return e.inner.QueryExclusions(ctx, key)
	})
}
