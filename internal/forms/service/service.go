// Package service implements the form managers: document-backed entities
// whose contents column is audited as JSON patches, with a completion log
// that survives reopen.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"worksafe/internal/audit"
	"worksafe/internal/entity"
	"worksafe/internal/entity/session"
	"worksafe/internal/entity/store"
	"worksafe/internal/forms/models"
	"worksafe/internal/platform/metrics"
	worksitemodels "worksafe/internal/worksite/models"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/platform/sentinel"
	"worksafe/pkg/requestcontext"
)

// Service is the form manager set.
type Service struct {
	backend  session.Backend
	reader   store.Reader
	registry *entity.Registry
	audits   audit.Store

	sink   audit.Sink
	stats  *metrics.Metrics
	logger *slog.Logger
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

// Create opens a new in-progress form at a location, optionally with
// initial contents.
func (s *Service) Create(ctx context.Context, ft models.FormType, locationID id.LocationID, dateFor id.Date, contents json.RawMessage) (*models.Form, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	if _, err := s.location(sctx, locationID); err != nil {
		return nil, err
	}

	actor := requestcontext.ActorFrom(ctx)
	form, err := models.NewForm(requestcontext.TenantID(ctx), ft, locationID, dateFor, actor.UserID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if len(contents) > 0 {
		if err := form.SetContents(contents); err != nil {
			return nil, err
		}
	}
	if err := sess.Add(form); err != nil {
		return nil, mapWriteErr(err, "add form")
	}
	if _, err := actx.Create(audit.TypeFor(ft.EntityType(), audit.ActionCreated)); err != nil {
		return nil, err
	}
	return form, nil
}

// Get returns one form by type and id.
func (s *Service) Get(ctx context.Context, ft models.FormType, formID id.FormID, opts ...store.Option) (*models.Form, error) {
	rec, err := s.reader.Get(ctx, entity.Ref{Type: ft.EntityType(), ID: uuid.UUID(formID)}, opts...)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "%s not found", ft.EntityType())
		}
		return nil, err
	}
	form, ok := rec.(*models.Form)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInternal, "unexpected record type for %s", ft.EntityType())
	}
	return form, nil
}

// ListForLocation returns a location's forms of one type.
func (s *Service) ListForLocation(ctx context.Context, ft models.FormType, locationID id.LocationID) ([]*models.Form, error) {
	recs, err := s.reader.List(ctx, store.Filter{
		Type:       ft.EntityType(),
		Conditions: map[string]any{"location_id": locationID},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Form, 0, len(recs))
	for _, rec := range recs {
		form, ok := rec.(*models.Form)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInternal, "unexpected record type for form")
		}
		out = append(out, form)
	}
	return out, nil
}

// UpdateContents validates and replaces the form's document. The audit
// trail records the change as a forward/reverse JSON patch pair.
func (s *Service) UpdateContents(ctx context.Context, ft models.FormType, formID id.FormID, contents json.RawMessage) (*models.Form, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	form, err := s.track(sess, ft, formID)
	if err != nil {
		return nil, err
	}
	if err := form.SetContents(contents); err != nil {
		return nil, err
	}
	form.Touch(requestcontext.Now(ctx))

	if _, err := actx.Create(audit.TypeFor(ft.EntityType(), audit.ActionUpdated)); err != nil {
		return nil, err
	}
	return form, nil
}

// Complete transitions the form to complete and appends to the completion
// log. Completing a complete form is a conflict.
func (s *Service) Complete(ctx context.Context, ft models.FormType, formID id.FormID) (*models.Form, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	form, err := s.track(sess, ft, formID)
	if err != nil {
		return nil, err
	}
	actor := requestcontext.ActorFrom(ctx)
	if err := form.Complete(actor.UserID, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	form.Touch(requestcontext.Now(ctx))

	if _, err := actx.Create(audit.TypeFor(ft.EntityType(), audit.ActionCompleted)); err != nil {
		return nil, err
	}
	return form, nil
}

// Reopen transitions complete → in-progress, preserving the completion
// log. Reopen is a first-class audit event.
func (s *Service) Reopen(ctx context.Context, ft models.FormType, formID id.FormID) (*models.Form, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	form, err := s.track(sess, ft, formID)
	if err != nil {
		return nil, err
	}
	if err := form.Reopen(); err != nil {
		return nil, err
	}
	form.Touch(requestcontext.Now(ctx))

	if _, err := actx.Create(audit.TypeFor(ft.EntityType(), audit.ActionReopened)); err != nil {
		return nil, err
	}
	return form, nil
}

// Archive soft-archives a form.
func (s *Service) Archive(ctx context.Context, ft models.FormType, formID id.FormID) (*models.Form, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	form, err := s.Get(sess.Context(), ft, formID, store.WithArchived())
	if err != nil {
		return nil, err
	}
	if form.IsArchived() {
		return form, nil
	}
	if err := sess.Track(form); err != nil {
		return nil, mapWriteErr(err, "track form")
	}
	now := requestcontext.Now(ctx)
	form.SetArchivedAt(&now)
	form.Touch(now)

	if _, err := actx.Create(audit.TypeFor(ft.EntityType(), audit.ActionArchived)); err != nil {
		return nil, err
	}
	return form, nil
}

func (s *Service) track(sess *session.Session, ft models.FormType, formID id.FormID) (*models.Form, error) {
	form, err := s.Get(sess.Context(), ft, formID)
	if err != nil {
		return nil, err
	}
	if err := sess.Track(form); err != nil {
		return nil, mapWriteErr(err, "track form")
	}
	return form, nil
}

func (s *Service) location(ctx context.Context, locID id.LocationID) (*worksitemodels.Location, error) {
	rec, err := s.reader.Get(ctx, entity.Ref{Type: entity.TypeLocation, ID: uuid.UUID(locID)})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "location not found")
		}
		return nil, err
	}
	loc, ok := rec.(*worksitemodels.Location)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "unexpected record type for location")
	}
	return loc, nil
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
