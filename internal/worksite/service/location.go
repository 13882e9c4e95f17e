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

// CreateLocation adds a location under a work package.
func (s *Service) CreateLocation(ctx context.Context, wpID id.WorkPackageID, name string, lat, lon float64) (*models.Location, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	wp, err := load[*models.WorkPackage](sctx, s.reader, refOf(entity.TypeWorkPackage, uuid.UUID(wpID)))
	if err != nil {
		return nil, err
	}

	loc, err := models.NewLocation(wp.Tenant(), wp.ID, name, lat, lon, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := sess.Add(loc); err != nil {
		return nil, mapWriteErr(err, "add location")
	}
	if _, err := actx.Create(audit.TypeFor(entity.TypeLocation, audit.ActionCreated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerLocationChanged, uuid.UUID(loc.ID))
	return loc, nil
}

// GetLocation returns one location by id.
func (s *Service) GetLocation(ctx context.Context, locID id.LocationID, opts ...store.Option) (*models.Location, error) {
	return load[*models.Location](ctx, s.reader, refOf(entity.TypeLocation, uuid.UUID(locID)), opts...)
}

// ListLocations returns the locations of a work package.
func (s *Service) ListLocations(ctx context.Context, wpID id.WorkPackageID, opts ...store.Option) ([]*models.Location, error) {
	o := store.Apply(opts...)
	return listAs[*models.Location](ctx, s.reader, store.Filter{
		Type:            entity.TypeLocation,
		Conditions:      map[string]any{"work_package_id": wpID},
		IncludeArchived: o.IncludeArchived,
	})
}

// UpdateLocationInput is a partial location update.
type UpdateLocationInput struct {
	Name      *string
	Latitude  *float64
	Longitude *float64
}

// UpdateLocation applies a partial update inside one audit event.
func (s *Service) UpdateLocation(ctx context.Context, locID id.LocationID, in UpdateLocationInput) (*models.Location, error) {
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
	if err := sess.Track(loc); err != nil {
		return nil, mapWriteErr(err, "track location")
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, dErrors.Validation("name", "name cannot be empty")
		}
		loc.Name = *in.Name
	}
	if in.Latitude != nil {
		if *in.Latitude < -90 || *in.Latitude > 90 {
			return nil, dErrors.Validation("latitude", "latitude must be within [-90, 90]")
		}
		loc.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		if *in.Longitude < -180 || *in.Longitude > 180 {
			return nil, dErrors.Validation("longitude", "longitude must be within [-180, 180]")
		}
		loc.Longitude = *in.Longitude
	}
	loc.Touch(requestcontext.Now(ctx))

	if _, err := actx.Create(audit.TypeFor(entity.TypeLocation, audit.ActionUpdated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerLocationChanged, uuid.UUID(loc.ID))
	return loc, nil
}

// ArchiveLocation archives a location and its children. It is rejected
// while the location has an in-progress daily report, which would otherwise
// dangle.
func (s *Service) ArchiveLocation(ctx context.Context, locID id.LocationID) (*models.Location, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	loc, err := load[*models.Location](sctx, s.reader, refOf(entity.TypeLocation, uuid.UUID(locID)), store.WithArchived())
	if err != nil {
		return nil, err
	}
	if loc.IsArchived() {
		return loc, nil
	}

	// The open-forms guard lives in archiveLocationTree so the work
	// package cascade enforces it too.
	if err := s.archiveLocationTree(sess, loc, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if _, err := actx.Create(audit.TypeFor(entity.TypeLocation, audit.ActionArchived)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerLocationChanged, uuid.UUID(loc.ID))
	return loc, nil
}

// checkNoOpenForms rejects archive while an in-progress form still points
// at the location.
func (s *Service) checkNoOpenForms(ctx context.Context, locID id.LocationID) error {
	for _, formType := range []entity.Type{
		entity.TypeDailyReport,
		entity.TypeJobSafetyBriefing,
		entity.TypeEnergyBasedObservation,
	} {
		open, err := s.reader.List(ctx, store.Filter{
			Type: formType,
			Conditions: map[string]any{
				"location_id": locID,
				"status":      "in-progress",
			},
			Limit: 1,
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return dErrors.Add(
				dErrors.New(dErrors.CodeConflict, "location has in-progress forms and cannot be archived"),
				dErrors.FieldKey, "location_id")
		}
	}
	return nil
}
