package service

import (
	"context"

	"github.com/google/uuid"

	"worksafe/internal/audit"
	"worksafe/internal/entity"
	"worksafe/internal/entity/store"
	"worksafe/internal/risk"
	"worksafe/internal/worksite/models"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/requestcontext"
)

// CreateSiteCondition adds a manually reported condition at a location.
func (s *Service) CreateSiteCondition(ctx context.Context, locID id.LocationID, libraryID id.LibraryRowID, hazards []HazardInput) (*models.SiteCondition, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	loc, err := load[*models.Location](sctx, s.reader, refOf(entity.TypeLocation, uuid.UUID(locID)))
	if err != nil {
		return nil, err
	}

	sc, err := models.NewSiteCondition(loc.Tenant(), loc.ID, libraryID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := sess.Add(sc); err != nil {
		return nil, mapWriteErr(err, "add site condition")
	}
	if err := s.addHazards(sess, models.HazardParentSiteCondition, uuid.UUID(sc.ID), sc.Tenant(), hazards); err != nil {
		return nil, err
	}

	if _, err := actx.Create(audit.TypeFor(entity.TypeSiteCondition, audit.ActionCreated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerSiteConditionChanged, uuid.UUID(sc.ID))
	return sc, nil
}

// RecordEvaluatedSiteCondition stores a condition derived by the periodic
// evaluator. The resulting site-condition-evaluated event is kept in the
// audit store but suppressed from project audit views.
func (s *Service) RecordEvaluatedSiteCondition(ctx context.Context, locID id.LocationID, libraryID id.LibraryRowID, score float64) (*models.SiteCondition, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	loc, err := load[*models.Location](sctx, s.reader, refOf(entity.TypeLocation, uuid.UUID(locID)))
	if err != nil {
		return nil, err
	}

	sc, err := models.NewEvaluatedSiteCondition(loc.Tenant(), loc.ID, libraryID, score, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := sess.Add(sc); err != nil {
		return nil, mapWriteErr(err, "add evaluated site condition")
	}
	if _, err := actx.Create(audit.EventSiteConditionEvaluated); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerSiteConditionChanged, uuid.UUID(sc.ID))
	return sc, nil
}

// GetSiteCondition returns one site condition by id.
func (s *Service) GetSiteCondition(ctx context.Context, scID id.SiteConditionID, opts ...store.Option) (*models.SiteCondition, error) {
	return load[*models.SiteCondition](ctx, s.reader, refOf(entity.TypeSiteCondition, uuid.UUID(scID)), opts...)
}

// ListSiteConditions returns the conditions at a location.
func (s *Service) ListSiteConditions(ctx context.Context, locID id.LocationID) ([]*models.SiteCondition, error) {
	return listAs[*models.SiteCondition](ctx, s.reader, store.Filter{
		Type:       entity.TypeSiteCondition,
		Conditions: map[string]any{"location_id": locID},
	})
}

// UpdateEvaluatedScore refreshes the score of an evaluated condition on a
// new evaluator pass.
func (s *Service) UpdateEvaluatedScore(ctx context.Context, scID id.SiteConditionID, score float64) (*models.SiteCondition, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	sc, err := load[*models.SiteCondition](sctx, s.reader, refOf(entity.TypeSiteCondition, uuid.UUID(scID)))
	if err != nil {
		return nil, err
	}
	if sc.ManuallyAdded {
		return nil, dErrors.New(dErrors.CodeConflict, "manually added conditions carry no evaluated score")
	}
	if err := sess.Track(sc); err != nil {
		return nil, mapWriteErr(err, "track site condition")
	}
	sc.EvaluatedScore = score
	sc.Touch(requestcontext.Now(ctx))

	if _, err := actx.Create(audit.EventSiteConditionEvaluated); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerSiteConditionChanged, uuid.UUID(sc.ID))
	return sc, nil
}

// ArchiveSiteCondition archives a single condition.
func (s *Service) ArchiveSiteCondition(ctx context.Context, scID id.SiteConditionID) (*models.SiteCondition, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	sc, err := load[*models.SiteCondition](sctx, s.reader, refOf(entity.TypeSiteCondition, uuid.UUID(scID)), store.WithArchived())
	if err != nil {
		return nil, err
	}
	if sc.IsArchived() {
		return sc, nil
	}
	if err := sess.Track(sc); err != nil {
		return nil, mapWriteErr(err, "track site condition")
	}
	now := requestcontext.Now(ctx)
	sc.SetArchivedAt(&now)
	sc.Touch(now)

	if _, err := actx.Create(audit.TypeFor(entity.TypeSiteCondition, audit.ActionArchived)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerSiteConditionChanged, uuid.UUID(sc.ID))
	return sc, nil
}
