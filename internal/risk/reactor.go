package risk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"worksafe/internal/platform/metrics"
	"worksafe/pkg/requestcontext"
)

const (
	pollInterval = 2 * time.Second
	// maxBackfillDepth bounds inline dependency backfill; the catalog's
	// dependency chains are three levels deep at most.
	maxBackfillDepth = 8
)

// Locker serializes computation per entity across workers.
type Locker interface {
	Acquire(ctx context.Context, entityID uuid.UUID) (release func(), err error)
}

// Reactor drains the trigger queue and recomputes the affected metrics in
// dependency order. Workers are independent; per-entity locks keep two
// workers from interleaving rows of the same series.
type Reactor struct {
	queue       Queue
	env         *Env
	defs        map[string]Definition
	locker      Locker
	concurrency int
	stats       *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	// wake lets a listener nudge idle workers ahead of the poll tick.
	wake <-chan struct{}
}

// ReactorOption configures the reactor.
type ReactorOption func(*Reactor)

func WithConcurrency(n int) ReactorOption {
	return func(r *Reactor) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithReactorLogger(logger *slog.Logger) ReactorOption {
	return func(r *Reactor) { r.logger = logger }
}

func WithReactorMetrics(m *metrics.Metrics) ReactorOption {
	return func(r *Reactor) { r.stats = m }
}

// WithWake hooks an external notification channel, such as the Postgres
// listener, so workers react ahead of the poll tick.
func WithWake(ch <-chan struct{}) ReactorOption {
	return func(r *Reactor) { r.wake = ch }
}

func NewReactor(queue Queue, env *Env, locker Locker, opts ...ReactorOption) *Reactor {
	r := &Reactor{
		queue:       queue,
		env:         env,
		defs:        make(map[string]Definition),
		locker:      locker,
		concurrency: 4,
		logger:      slog.Default(),
		tracer:      otel.Tracer("worksafe/risk"),
	}
	for _, def := range Catalog() {
		r.defs[def.Name] = def
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks draining the queue until ctx ends.
func (r *Reactor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.concurrency; i++ {
		g.Go(func() error { return r.worker(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Reactor) worker(ctx context.Context) error {
	for {
		t, err := r.queue.Dequeue(ctx, pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("dequeue trigger", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}
		if t == nil {
			if r.wake != nil {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-r.wake:
				case <-time.After(pollInterval):
				}
			}
			continue
		}
		r.Process(ctx, *t)
	}
}

// Process recomputes everything one trigger invalidates. Failures are
// logged, never returned; a lost recomputation is repaired by the next
// trigger or the nightly full pass.
func (r *Reactor) Process(ctx context.Context, t Trigger) {
	ctx = requestcontext.WithTenantID(ctx, t.TenantID)
	ctx = requestcontext.WithActor(ctx, requestcontext.SystemActor("risk-reactor"))

	ctx, span := r.tracer.Start(ctx, "reactor.process",
		trace.WithAttributes(
			attribute.String("trigger.kind", string(t.Kind)),
			attribute.String("trigger.entity_id", t.EntityID.String()),
		))
	defer span.End()

	steps, err := plan(ctx, r.env, r.defs, t)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("plan trigger", "kind", t.Kind, "entity_id", t.EntityID, "error", err)
		return
	}

	// Each plan step gets a slightly later stamp than the one before it, so
	// a row's calculated_at is strictly greater than its dependencies'.
	base := time.Now().UTC()
	for i, step := range steps {
		if ctx.Err() != nil {
			return
		}
		asOf := base.Add(time.Duration(i) * time.Microsecond)
		for _, target := range step.targets {
			if err := r.computeLocked(ctx, step.def, target, asOf); err != nil {
				r.logger.Error("compute metric",
					"metric", step.def.Name, "entity_id", target, "error", err)
			}
		}
	}
}

func (r *Reactor) computeLocked(ctx context.Context, def Definition, target uuid.UUID, asOf time.Time) error {
	release, err := r.locker.Acquire(ctx, target)
	if err != nil {
		return err
	}
	defer release()
	return r.compute(ctx, def, target, asOf, 0)
}

// compute evaluates one metric for one entity and appends the result row.
// A missing dependency is backfilled inline, depth bounded, then the
// computation retries; giving up leaves the series to the nightly pass.
func (r *Reactor) compute(ctx context.Context, def Definition, target uuid.UUID, asOf time.Time, depth int) error {
	ctx, span := r.tracer.Start(ctx, "reactor.compute",
		trace.WithAttributes(
			attribute.String("metric", def.Name),
			attribute.String("entity_id", target.String()),
		))
	defer span.End()

	started := time.Now()
	result, err := def.Compute(ctx, r.env, target, asOf)
	elapsed := time.Since(started)

	switch {
	case err == nil:
		r.observe(def.Name, "ok", elapsed)
		return r.append(ctx, def, target, asOf, Row{
			Value:  &result.Value,
			Inputs: result.Inputs,
			Params: result.Params,
		})

	case isNotAvailable(err):
		r.observe(def.Name, "not-available", elapsed)
		// Marker row so explain can show the gap.
		return r.append(ctx, def, target, asOf, Row{Reason: err.Error()})

	default:
		var missing *MissingDependencyError
		if !errors.As(err, &missing) {
			r.observe(def.Name, "error", elapsed)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		r.observe(def.Name, "missing-dependency", elapsed)
		if depth >= maxBackfillDepth {
			span.SetStatus(codes.Error, "backfill depth exceeded")
			r.requeue(ctx, missing)
			return err
		}
		dep, ok := r.defs[missing.Metric]
		if !ok {
			r.requeue(ctx, missing)
			return err
		}
		// Backfill at an earlier stamp so the dependency row stays strictly
		// older than the row that reads it.
		if err := r.compute(ctx, dep, missing.EntityID, asOf.Add(-time.Microsecond), depth+1); err != nil {
			return err
		}
		return r.compute(ctx, def, target, asOf, depth+1)
	}
}

// requeue puts a trigger for the missing dependency's entity back on the
// queue so the series is retried once its inputs have landed. The current
// branch still aborts; coalescing absorbs the duplicate.
func (r *Reactor) requeue(ctx context.Context, missing *MissingDependencyError) {
	kind, ok := triggerFor(missing.EntityKind)
	if !ok {
		return
	}
	t := Trigger{
		Kind:       kind,
		TenantID:   requestcontext.TenantID(ctx),
		EntityID:   missing.EntityID,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := r.queue.Enqueue(ctx, t); err != nil {
		r.logger.Warn("requeue for missing dependency failed",
			"metric", missing.Metric, "entity_id", missing.EntityID, "error", err)
	}
}

func triggerFor(kind Kind) (TriggerKind, bool) {
	switch kind {
	case KindTask:
		return TriggerTaskChanged, true
	case KindLocation:
		return TriggerLocationChanged, true
	case KindWorkPackage:
		return TriggerProjectChanged, true
	case KindContractor, KindTenant:
		return TriggerContractorChanged, true
	case KindSupervisor, KindCrew:
		return TriggerSupervisorChanged, true
	}
	return "", false
}

func (r *Reactor) append(ctx context.Context, def Definition, target uuid.UUID, asOf time.Time, row Row) error {
	row.MetricName = def.Name
	row.EntityKind = def.Kind
	row.EntityID = target
	row.TenantID = requestcontext.TenantID(ctx)
	row.CalculatedAt = asOf
	return r.env.Metrics.Append(ctx, row)
}

func (r *Reactor) observe(metric, outcome string, d time.Duration) {
	if r.stats != nil {
		r.stats.ObserveComputation(metric, outcome, d)
	}
}

func isNotAvailable(err error) bool {
	var na *NotAvailableError
	return errors.As(err, &na)
}
