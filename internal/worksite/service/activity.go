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

// CreateActivityInput carries the fields a new activity accepts.
type CreateActivityInput struct {
	LocationID    id.LocationID
	Name          string
	StartDate     id.Date
	EndDate       id.Date
	CrewID        id.CrewID
	LibraryTypeID id.LibraryRowID
}

// CreateActivity adds an activity under a location. The activity's window
// must sit inside the owning work package's window.
func (s *Service) CreateActivity(ctx context.Context, in CreateActivityInput) (*models.Activity, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	loc, err := load[*models.Location](sctx, s.reader, refOf(entity.TypeLocation, uuid.UUID(in.LocationID)))
	if err != nil {
		return nil, err
	}
	wp, err := load[*models.WorkPackage](sctx, s.reader, refOf(entity.TypeWorkPackage, uuid.UUID(loc.WorkPackageID)))
	if err != nil {
		return nil, err
	}
	if err := models.ValidateWindowWithin(in.StartDate, in.EndDate, wp.StartDate, wp.EndDate); err != nil {
		return nil, err
	}

	act, err := models.NewActivity(loc.Tenant(), loc.ID, in.Name, in.StartDate, in.EndDate, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	act.CrewID = in.CrewID
	act.LibraryTypeID = in.LibraryTypeID

	if err := sess.Add(act); err != nil {
		return nil, mapWriteErr(err, "add activity")
	}
	if _, err := actx.Create(audit.TypeFor(entity.TypeActivity, audit.ActionCreated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerActivityChanged, uuid.UUID(act.ID))
	return act, nil
}

// GetActivity returns one activity by id.
func (s *Service) GetActivity(ctx context.Context, actID id.ActivityID, opts ...store.Option) (*models.Activity, error) {
	return load[*models.Activity](ctx, s.reader, refOf(entity.TypeActivity, uuid.UUID(actID)), opts...)
}

// ListActivities returns the activities of a location.
func (s *Service) ListActivities(ctx context.Context, locID id.LocationID) ([]*models.Activity, error) {
	return listAs[*models.Activity](ctx, s.reader, store.Filter{
		Type:       entity.TypeActivity,
		Conditions: map[string]any{"location_id": locID},
	})
}

// UpdateActivityInput is a partial activity update.
type UpdateActivityInput struct {
	Name      *string
	Status    *models.ActivityStatus
	StartDate *id.Date
	EndDate   *id.Date
	CrewID    *id.CrewID
}

// UpdateActivity applies a partial update inside one audit event.
func (s *Service) UpdateActivity(ctx context.Context, actID id.ActivityID, in UpdateActivityInput) (*models.Activity, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	act, err := load[*models.Activity](sctx, s.reader, refOf(entity.TypeActivity, uuid.UUID(actID)))
	if err != nil {
		return nil, err
	}
	if err := sess.Track(act); err != nil {
		return nil, mapWriteErr(err, "track activity")
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, dErrors.Validation("name", "name cannot be empty")
		}
		act.Name = *in.Name
	}
	if in.Status != nil {
		act.Status = *in.Status
	}
	if in.StartDate != nil {
		act.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		act.EndDate = *in.EndDate
	}
	if in.CrewID != nil {
		act.CrewID = *in.CrewID
	}
	if in.StartDate != nil || in.EndDate != nil {
		loc, err := load[*models.Location](sctx, s.reader, refOf(entity.TypeLocation, uuid.UUID(act.LocationID)))
		if err != nil {
			return nil, err
		}
		wp, err := load[*models.WorkPackage](sctx, s.reader, refOf(entity.TypeWorkPackage, uuid.UUID(loc.WorkPackageID)))
		if err != nil {
			return nil, err
		}
		if err := models.ValidateWindowWithin(act.StartDate, act.EndDate, wp.StartDate, wp.EndDate); err != nil {
			return nil, err
		}
	}
	act.Touch(requestcontext.Now(ctx))

	if _, err := actx.Create(audit.TypeFor(entity.TypeActivity, audit.ActionUpdated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerActivityChanged, uuid.UUID(act.ID))
	return act, nil
}

// ArchiveActivity archives the activity and its tasks.
func (s *Service) ArchiveActivity(ctx context.Context, actID id.ActivityID) (*models.Activity, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	act, err := load[*models.Activity](sctx, s.reader, refOf(entity.TypeActivity, uuid.UUID(actID)), store.WithArchived())
	if err != nil {
		return nil, err
	}
	if act.IsArchived() {
		return act, nil
	}
	if err := sess.Track(act); err != nil {
		return nil, mapWriteErr(err, "track activity")
	}

	now := requestcontext.Now(ctx)
	act.SetArchivedAt(&now)
	act.Touch(now)

	tasks, err := listAs[*models.Task](sctx, s.reader, store.Filter{
		Type:       entity.TypeTask,
		Conditions: map[string]any{"activity_id": act.ID},
	})
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if err := sess.Track(t); err != nil {
			return nil, mapWriteErr(err, "track task")
		}
		t.SetArchivedAt(&now)
		t.Touch(now)
	}

	if _, err := actx.Create(audit.TypeFor(entity.TypeActivity, audit.ActionArchived)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerActivityChanged, uuid.UUID(act.ID))
	return act, nil
}
