// Package service implements the work-site managers: per-entity facades
// enforcing validation, tenant isolation and audit discipline. Every write
// runs inside an audit context and seals exactly one event.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"worksafe/internal/audit"
	"worksafe/internal/entity"
	"worksafe/internal/entity/session"
	"worksafe/internal/entity/store"
	"worksafe/internal/platform/metrics"
	"worksafe/internal/risk"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/platform/sentinel"
	"worksafe/pkg/requestcontext"
)

// Service is the work-site manager set. One instance serves all entity
// facades; handlers call the per-entity methods.
type Service struct {
	backend  session.Backend
	reader   store.Reader
	registry *entity.Registry
	audits   audit.Store

	sink     audit.Sink
	triggers risk.Enqueuer
	stats    *metrics.Metrics
	logger   *slog.Logger
}

// Option configures the service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.stats = m }
}

func WithSink(sink audit.Sink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithTriggers(e risk.Enqueuer) Option {
	return func(s *Service) { s.triggers = e }
}

func New(backend session.Backend, reader store.Reader, registry *entity.Registry, audits audit.Store, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		reader:   reader,
		registry: registry,
		audits:   audits,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scope opens a session with its audit context. Callers defer actx.Close()
// and call actx.Create exactly once on the success path.
func (s *Service) scope(ctx context.Context) (*session.Session, *audit.Context, error) {
	sess, err := session.Begin(ctx, s.backend, s.registry)
	if err != nil {
		return nil, nil, err
	}
	opts := []audit.Option{audit.WithLogger(s.logger)}
	if s.stats != nil {
		opts = append(opts, audit.WithMetrics(s.stats))
	}
	if s.sink != nil {
		opts = append(opts, audit.WithSink(s.sink))
	}
	actx, err := audit.Open(sess, s.audits, opts...)
	if err != nil {
		_ = sess.Rollback()
		return nil, nil, err
	}
	return sess, actx, nil
}

// emit enqueues a reactor trigger after a successful commit. Best effort;
// trigger loss degrades metric freshness, not correctness, and nightly-full
// recompute repairs it.
func (s *Service) emit(ctx context.Context, kind risk.TriggerKind, entityID uuid.UUID) {
	if s.triggers == nil {
		return
	}
	t := risk.Trigger{
		Kind:       kind,
		TenantID:   requestcontext.TenantID(ctx),
		EntityID:   entityID,
		EnqueuedAt: requestcontext.Now(ctx),
	}
	if err := s.triggers.Enqueue(context.WithoutCancel(ctx), t); err != nil {
		s.logger.Warn("trigger enqueue failed",
			"kind", string(kind), "entity_id", entityID.String(), "error", err)
	}
}

// load fetches one record through r and maps store sentinels to the coded
// errors managers surface.
func load[T entity.Record](ctx context.Context, r store.Reader, ref entity.Ref, opts ...store.Option) (T, error) {
	var zero T
	rec, err := r.Get(ctx, ref, opts...)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return zero, dErrors.Newf(dErrors.CodeNotFound, "%s not found", ref.Type)
		}
		return zero, err
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, dErrors.Newf(dErrors.CodeInternal, "unexpected record type for %s", ref.Type)
	}
	return typed, nil
}

func listAs[T entity.Record](ctx context.Context, r store.Reader, f store.Filter) ([]T, error) {
	recs, err := r.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		typed, ok := rec.(T)
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeInternal, "unexpected record type for %s", f.Type)
		}
		out = append(out, typed)
	}
	return out, nil
}

func mapWriteErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrTenantMismatch):
		return dErrors.Wrap(err, dErrors.CodeTenantMismatch, op)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, op)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, op)
	default:
		return err
	}
}

func sameTenant(ctx context.Context, owner id.TenantID, field string) error {
	caller := requestcontext.TenantID(ctx)
	if !caller.IsNil() && owner != caller {
		// Indistinguishable from absence so tenants cannot probe each
		// other's id space.
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", field)
	}
	return nil
}

func refOf(t entity.Type, u uuid.UUID) entity.Ref {
	return entity.Ref{Type: t, ID: u}
}
