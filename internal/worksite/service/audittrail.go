package service

import (
	"context"

	"github.com/google/uuid"

	"worksafe/internal/audit"
	"worksafe/internal/entity"
	"worksafe/internal/entity/store"
	"worksafe/internal/worksite/models"
	id "worksafe/pkg/domain"
	"worksafe/pkg/requestcontext"
)

// ProjectAuditTrail returns the audit events that touched a work package or
// anything under it, newest first. Evaluated site-condition events are
// suppressed unless the query opts in.
func (s *Service) ProjectAuditTrail(ctx context.Context, wpID id.WorkPackageID, q audit.ListQuery) ([]audit.Event, error) {
	wp, err := s.GetWorkPackage(ctx, wpID, store.WithArchived())
	if err != nil {
		return nil, err
	}

	refs := []entity.Ref{wp.Ref()}
	locations, err := listAs[*models.Location](ctx, s.reader, store.Filter{
		Type:            entity.TypeLocation,
		Conditions:      map[string]any{"work_package_id": wp.ID},
		IncludeArchived: true,
	})
	if err != nil {
		return nil, err
	}
	for _, loc := range locations {
		refs = append(refs, loc.Ref())
		children, err := s.locationChildRefs(ctx, loc.ID)
		if err != nil {
			return nil, err
		}
		refs = append(refs, children...)
	}

	return s.audits.ListForObjects(ctx, requestcontext.TenantID(ctx), refs, q)
}

// ObjectAuditTrail returns the events that touched one object.
func (s *Service) ObjectAuditTrail(ctx context.Context, objType entity.Type, objID uuid.UUID, q audit.ListQuery) ([]audit.Event, error) {
	return s.audits.ListForObject(ctx, requestcontext.TenantID(ctx), refOf(objType, objID), q)
}

func (s *Service) locationChildRefs(ctx context.Context, locID id.LocationID) ([]entity.Ref, error) {
	var refs []entity.Ref
	for _, t := range []entity.Type{entity.TypeActivity, entity.TypeTask, entity.TypeSiteCondition} {
		recs, err := s.reader.List(ctx, store.Filter{
			Type:            t,
			Conditions:      map[string]any{"location_id": locID},
			IncludeArchived: true,
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			refs = append(refs, rec.Ref())
		}
	}
	return refs, nil
}
