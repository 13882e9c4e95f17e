package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/audit"
	"worksafe/internal/entity"
	"worksafe/internal/entity/session"
	"worksafe/internal/entity/store"
	"worksafe/internal/risk"
	"worksafe/internal/worksite/models"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/requestcontext"
)

// CreateWorkPackageInput carries the fields a new work package accepts.
type CreateWorkPackageInput struct {
	Name         string
	StartDate    id.Date
	EndDate      id.Date
	Region       id.LibraryRowID
	Division     id.LibraryRowID
	ContractorID id.ContractorID
	ManagerID    id.UserID
	SupervisorID id.SupervisorID
	WorkTypes    []id.LibraryRowID
}

// CreateWorkPackage opens a new pending work package.
func (s *Service) CreateWorkPackage(ctx context.Context, in CreateWorkPackageInput) (*models.WorkPackage, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	now := requestcontext.Now(ctx)
	wp, err := models.NewWorkPackage(requestcontext.TenantID(ctx), in.Name, in.StartDate, in.EndDate, now)
	if err != nil {
		return nil, err
	}
	wp.Region = in.Region
	wp.Division = in.Division
	wp.ContractorID = in.ContractorID
	wp.ManagerID = in.ManagerID
	wp.SupervisorID = in.SupervisorID
	wp.WorkTypes = in.WorkTypes

	if err := s.checkWorkPackageRefs(sess.Context(), wp); err != nil {
		return nil, err
	}
	if err := sess.Add(wp); err != nil {
		return nil, mapWriteErr(err, "add work package")
	}
	if _, err := actx.Create(audit.EventWorkPackageCreated); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerProjectChanged, uuid.UUID(wp.ID))
	return wp, nil
}

// GetWorkPackage returns one work package by id.
func (s *Service) GetWorkPackage(ctx context.Context, wpID id.WorkPackageID, opts ...store.Option) (*models.WorkPackage, error) {
	return load[*models.WorkPackage](ctx, s.reader, refOf(entity.TypeWorkPackage, uuid.UUID(wpID)), opts...)
}

// ListWorkPackages pages through the tenant's work packages.
func (s *Service) ListWorkPackages(ctx context.Context, after id.WorkPackageID, limit int) ([]*models.WorkPackage, error) {
	return listAs[*models.WorkPackage](ctx, s.reader, store.Filter{
		Type:    entity.TypeWorkPackage,
		AfterID: uuid.UUID(after),
		Limit:   limit,
	})
}

// UpdateWorkPackageInput is a partial update; nil fields are untouched.
type UpdateWorkPackageInput struct {
	Name         *string
	Status       *models.WorkPackageStatus
	StartDate    *id.Date
	EndDate      *id.Date
	Region       *id.LibraryRowID
	Division     *id.LibraryRowID
	ContractorID *id.ContractorID
	ManagerID    *id.UserID
	SupervisorID *id.SupervisorID
	WorkTypes    []id.LibraryRowID
}

// UpdateWorkPackage applies a partial update inside one audit event.
func (s *Service) UpdateWorkPackage(ctx context.Context, wpID id.WorkPackageID, in UpdateWorkPackageInput) (*models.WorkPackage, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	wp, err := s.editWorkPackage(sess, wpID, in)
	if err != nil {
		return nil, err
	}
	if _, err := actx.Create(audit.EventWorkPackageUpdated); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerProjectChanged, uuid.UUID(wp.ID))
	return wp, nil
}

func (s *Service) editWorkPackage(sess *session.Session, wpID id.WorkPackageID, in UpdateWorkPackageInput) (*models.WorkPackage, error) {
	ctx := sess.Context()
	wp, err := load[*models.WorkPackage](ctx, s.reader, refOf(entity.TypeWorkPackage, uuid.UUID(wpID)))
	if err != nil {
		return nil, err
	}
	if err := sess.Track(wp); err != nil {
		return nil, mapWriteErr(err, "track work package")
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, dErrors.Validation("name", "name cannot be empty")
		}
		wp.Name = *in.Name
	}
	if in.Status != nil {
		wp.Status = *in.Status
	}
	if in.StartDate != nil {
		wp.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		wp.EndDate = *in.EndDate
	}
	if in.StartDate != nil || in.EndDate != nil {
		if wp.StartDate.After(wp.EndDate) {
			return nil, dErrors.Validation("start_date", "start date must not be after end date")
		}
	}
	if in.Region != nil {
		wp.Region = *in.Region
	}
	if in.Division != nil {
		wp.Division = *in.Division
	}
	if in.ContractorID != nil {
		wp.ContractorID = *in.ContractorID
	}
	if in.ManagerID != nil {
		wp.ManagerID = *in.ManagerID
	}
	if in.SupervisorID != nil {
		wp.SupervisorID = *in.SupervisorID
	}
	if in.WorkTypes != nil {
		wp.WorkTypes = in.WorkTypes
	}
	if err := s.checkWorkPackageRefs(ctx, wp); err != nil {
		return nil, err
	}
	wp.Touch(requestcontext.Now(ctx))
	return wp, nil
}

// LocationEdit is one entry of an edit-with-locations call. A nil ID means
// create; existing locations absent from the list are archived.
type LocationEdit struct {
	ID        *id.LocationID
	Name      string
	Latitude  float64
	Longitude float64
}

// EditWorkPackageWithLocations updates the work package and reconciles its
// location set in one audit event: provided locations are created or
// updated, omitted ones are archived together with their children.
func (s *Service) EditWorkPackageWithLocations(ctx context.Context, wpID id.WorkPackageID, in UpdateWorkPackageInput, locations []LocationEdit) (*models.WorkPackage, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	wp, err := s.editWorkPackage(sess, wpID, in)
	if err != nil {
		return nil, err
	}

	sctx := sess.Context()
	now := requestcontext.Now(ctx)
	existing, err := listAs[*models.Location](sctx, s.reader, store.Filter{
		Type:       entity.TypeLocation,
		Conditions: map[string]any{"work_package_id": wp.ID},
	})
	if err != nil {
		return nil, err
	}
	byID := make(map[id.LocationID]*models.Location, len(existing))
	for _, loc := range existing {
		byID[loc.ID] = loc
	}

	keep := make(map[id.LocationID]struct{}, len(locations))
	for _, edit := range locations {
		if edit.ID == nil {
			loc, err := models.NewLocation(wp.Tenant(), wp.ID, edit.Name, edit.Latitude, edit.Longitude, now)
			if err != nil {
				return nil, err
			}
			if err := sess.Add(loc); err != nil {
				return nil, mapWriteErr(err, "add location")
			}
			continue
		}
		loc, ok := byID[*edit.ID]
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "location not found")
		}
		keep[loc.ID] = struct{}{}
		if err := sess.Track(loc); err != nil {
			return nil, mapWriteErr(err, "track location")
		}
		if edit.Name == "" {
			return nil, dErrors.Validation("name", "name cannot be empty")
		}
		loc.Name = edit.Name
		loc.Latitude = edit.Latitude
		loc.Longitude = edit.Longitude
		loc.Touch(now)
	}

	for _, loc := range existing {
		if _, kept := keep[loc.ID]; kept {
			continue
		}
		if err := s.archiveLocationTree(sess, loc, now); err != nil {
			return nil, err
		}
	}

	if _, err := actx.Create(audit.EventWorkPackageUpdated); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerProjectChanged, uuid.UUID(wp.ID))
	return wp, nil
}

// ArchiveWorkPackage soft-archives the work package and cascades to every
// non-archived location, activity, task and site condition under it. All
// rows share the same archived_at and the whole cascade is one audit event.
// Archiving an archived work package is a no-op.
func (s *Service) ArchiveWorkPackage(ctx context.Context, wpID id.WorkPackageID) (*models.WorkPackage, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	wp, err := load[*models.WorkPackage](sctx, s.reader, refOf(entity.TypeWorkPackage, uuid.UUID(wpID)), store.WithArchived())
	if err != nil {
		return nil, err
	}
	if wp.IsArchived() {
		return wp, nil
	}
	if err := sess.Track(wp); err != nil {
		return nil, mapWriteErr(err, "track work package")
	}

	now := requestcontext.Now(ctx)
	wp.SetArchivedAt(&now)
	wp.Touch(now)

	locations, err := listAs[*models.Location](sctx, s.reader, store.Filter{
		Type:       entity.TypeLocation,
		Conditions: map[string]any{"work_package_id": wp.ID},
	})
	if err != nil {
		return nil, err
	}
	for _, loc := range locations {
		if err := s.archiveLocationTree(sess, loc, now); err != nil {
			return nil, err
		}
	}

	if _, err := actx.Create(audit.EventWorkPackageArchived); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerProjectChanged, uuid.UUID(wp.ID))
	return wp, nil
}

// archiveLocationTree archives a location and its activities, tasks and
// site conditions with one shared timestamp, refusing while an in-progress
// form still points at the location. Hazards and controls follow their
// parent's visibility and keep their own archived_at untouched.
func (s *Service) archiveLocationTree(sess *session.Session, loc *models.Location, at time.Time) error {
	ctx := sess.Context()
	if !loc.IsArchived() {
		if err := s.checkNoOpenForms(ctx, loc.ID); err != nil {
			return err
		}
	}
	if err := sess.Track(loc); err != nil {
		return mapWriteErr(err, "track location")
	}
	if !loc.IsArchived() {
		loc.SetArchivedAt(&at)
		loc.Touch(at)
	}

	activities, err := listAs[*models.Activity](ctx, s.reader, store.Filter{
		Type:       entity.TypeActivity,
		Conditions: map[string]any{"location_id": loc.ID},
	})
	if err != nil {
		return err
	}
	for _, act := range activities {
		if err := sess.Track(act); err != nil {
			return mapWriteErr(err, "track activity")
		}
		act.SetArchivedAt(&at)
		act.Touch(at)
	}

	tasks, err := listAs[*models.Task](ctx, s.reader, store.Filter{
		Type:       entity.TypeTask,
		Conditions: map[string]any{"location_id": loc.ID},
	})
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := sess.Track(t); err != nil {
			return mapWriteErr(err, "track task")
		}
		t.SetArchivedAt(&at)
		t.Touch(at)
	}

	conditions, err := listAs[*models.SiteCondition](ctx, s.reader, store.Filter{
		Type:       entity.TypeSiteCondition,
		Conditions: map[string]any{"location_id": loc.ID},
	})
	if err != nil {
		return err
	}
	for _, sc := range conditions {
		if err := sess.Track(sc); err != nil {
			return mapWriteErr(err, "track site condition")
		}
		sc.SetArchivedAt(&at)
		sc.Touch(at)
	}
	return nil
}

// checkWorkPackageRefs verifies cross-entity references resolve within the
// caller's tenant.
func (s *Service) checkWorkPackageRefs(ctx context.Context, wp *models.WorkPackage) error {
	if !wp.ContractorID.IsNil() {
		c, err := load[*models.Contractor](ctx, s.reader, refOf(entity.TypeContractor, uuid.UUID(wp.ContractorID)))
		if err != nil {
			return err
		}
		if err := sameTenant(ctx, c.Tenant(), "contractor"); err != nil {
			return err
		}
	}
	if !wp.SupervisorID.IsNil() {
		sup, err := load[*models.Supervisor](ctx, s.reader, refOf(entity.TypeSupervisor, uuid.UUID(wp.SupervisorID)))
		if err != nil {
			return err
		}
		if err := sameTenant(ctx, sup.Tenant(), "supervisor"); err != nil {
			return err
		}
	}
	return nil
}
