// Package models defines the work-site entities: work packages, their
// locations, the activities and tasks performed there, site conditions, and
// the hazard/control sub-rows. All are tenant-scoped and soft-archivable.
package models

import (
	"time"

	"github.com/google/uuid"

	"worksafe/internal/entity"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
)

// WorkPackageStatus is the lifecycle state of a work package.
type WorkPackageStatus string

const (
	WorkPackagePending   WorkPackageStatus = "pending"
	WorkPackageActive    WorkPackageStatus = "active"
	WorkPackageCompleted WorkPackageStatus = "completed"
)

// ParseWorkPackageStatus validates a work package status.
func ParseWorkPackageStatus(s string) (WorkPackageStatus, error) {
	switch WorkPackageStatus(s) {
	case WorkPackagePending, WorkPackageActive, WorkPackageCompleted:
		return WorkPackageStatus(s), nil
	}
	return "", dErrors.Validation("status", "status must be pending, active or completed")
}

// WorkPackage is the project envelope everything else hangs off.
type WorkPackage struct {
	entity.Meta
	ID           id.WorkPackageID  `json:"id"`
	Name         string            `json:"name"`
	Status       WorkPackageStatus `json:"status"`
	StartDate    id.Date           `json:"start_date"`
	EndDate      id.Date           `json:"end_date"`
	Region       id.LibraryRowID   `json:"region_id"`
	Division     id.LibraryRowID   `json:"division_id"`
	ContractorID id.ContractorID   `json:"contractor_id"`
	ManagerID    id.UserID         `json:"manager_id"`
	SupervisorID id.SupervisorID   `json:"supervisor_id"`
	WorkTypes    []id.LibraryRowID `json:"work_type_ids"`
}

func (w *WorkPackage) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeWorkPackage, ID: uuid.UUID(w.ID)}
}

// NewWorkPackage validates and constructs a pending work package.
func NewWorkPackage(tenantID id.TenantID, name string, start, end id.Date, now time.Time) (*WorkPackage, error) {
	if name == "" {
		return nil, dErrors.Validation("name", "name cannot be empty")
	}
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	return &WorkPackage{
		Meta:      entity.NewMeta(tenantID, now),
		ID:        id.NewWorkPackageID(),
		Name:      name,
		Status:    WorkPackagePending,
		StartDate: start,
		EndDate:   end,
	}, nil
}

// Location belongs to a WorkPackage and carries a geospatial point.
type Location struct {
	entity.Meta
	ID            id.LocationID    `json:"id"`
	WorkPackageID id.WorkPackageID `json:"work_package_id"`
	Name          string           `json:"name"`
	Latitude      float64          `json:"latitude"`
	Longitude     float64          `json:"longitude"`
}

func (l *Location) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeLocation, ID: uuid.UUID(l.ID)}
}

// NewLocation validates and constructs a location under a work package.
func NewLocation(tenantID id.TenantID, workPackageID id.WorkPackageID, name string, lat, lon float64, now time.Time) (*Location, error) {
	if name == "" {
		return nil, dErrors.Validation("name", "name cannot be empty")
	}
	if workPackageID.IsNil() {
		return nil, dErrors.Validation("work_package_id", "location requires a work package")
	}
	if lat < -90 || lat > 90 {
		return nil, dErrors.Validation("latitude", "latitude must be within [-90, 90]")
	}
	if lon < -180 || lon > 180 {
		return nil, dErrors.Validation("longitude", "longitude must be within [-180, 180]")
	}
	return &Location{
		Meta:          entity.NewMeta(tenantID, now),
		ID:            id.NewLocationID(),
		WorkPackageID: workPackageID,
		Name:          name,
		Latitude:      lat,
		Longitude:     lon,
	}, nil
}

// ActivityStatus is the lifecycle state of an activity.
type ActivityStatus string

const (
	ActivityNotStarted ActivityStatus = "not-started"
	ActivityInProgress ActivityStatus = "in-progress"
	ActivityComplete   ActivityStatus = "complete"
)

// ParseActivityStatus validates an activity status.
func ParseActivityStatus(s string) (ActivityStatus, error) {
	switch ActivityStatus(s) {
	case ActivityNotStarted, ActivityInProgress, ActivityComplete:
		return ActivityStatus(s), nil
	}
	return "", dErrors.Validation("status", "status must be not-started, in-progress or complete")
}

// Activity groups tasks performed at a location over a date window.
type Activity struct {
	entity.Meta
	ID            id.ActivityID   `json:"id"`
	LocationID    id.LocationID   `json:"location_id"`
	Name          string          `json:"name"`
	Status        ActivityStatus  `json:"status"`
	StartDate     id.Date         `json:"start_date"`
	EndDate       id.Date         `json:"end_date"`
	CrewID        id.CrewID       `json:"crew_id"`
	LibraryTypeID id.LibraryRowID `json:"library_activity_type_id"`
}

func (a *Activity) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeActivity, ID: uuid.UUID(a.ID)}
}

// NewActivity validates and constructs an activity under a location.
func NewActivity(tenantID id.TenantID, locationID id.LocationID, name string, start, end id.Date, now time.Time) (*Activity, error) {
	if name == "" {
		return nil, dErrors.Validation("name", "name cannot be empty")
	}
	if locationID.IsNil() {
		return nil, dErrors.Validation("location_id", "activity requires a location")
	}
	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	return &Activity{
		Meta:       entity.NewMeta(tenantID, now),
		ID:         id.NewActivityID(),
		LocationID: locationID,
		Name:       name,
		Status:     ActivityNotStarted,
		StartDate:  start,
		EndDate:    end,
	}, nil
}

// Task references a library catalog row and belongs to an activity. The
// location is denormalized for indexing; it is a back-reference, not
// ownership.
type Task struct {
	entity.Meta
	ID            id.TaskID       `json:"id"`
	ActivityID    id.ActivityID   `json:"activity_id"`
	LocationID    id.LocationID   `json:"location_id"`
	LibraryTaskID id.LibraryRowID `json:"library_task_id"`
}

func (t *Task) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeTask, ID: uuid.UUID(t.ID)}
}

// NewTask validates and constructs a task under an activity.
func NewTask(tenantID id.TenantID, activityID id.ActivityID, locationID id.LocationID, libraryTaskID id.LibraryRowID, now time.Time) (*Task, error) {
	if activityID.IsNil() {
		return nil, dErrors.Validation("activity_id", "task requires an activity")
	}
	if locationID.IsNil() {
		return nil, dErrors.Validation("location_id", "task requires a location")
	}
	if libraryTaskID.IsNil() {
		return nil, dErrors.Validation("library_task_id", "task requires a library task")
	}
	return &Task{
		Meta:          entity.NewMeta(tenantID, now),
		ID:            id.NewTaskID(),
		ActivityID:    activityID,
		LocationID:    locationID,
		LibraryTaskID: libraryTaskID,
	}, nil
}

// SiteCondition is a condition observed (or derived) at a location.
// Manually added conditions come from users; evaluated ones are produced by
// the periodic evaluator against external geospatial data.
type SiteCondition struct {
	entity.Meta
	ID             id.SiteConditionID `json:"id"`
	LocationID     id.LocationID      `json:"location_id"`
	LibraryID      id.LibraryRowID    `json:"library_site_condition_id"`
	ManuallyAdded  bool               `json:"manually_added"`
	EvaluatedScore float64            `json:"evaluated_score"`
}

func (s *SiteCondition) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeSiteCondition, ID: uuid.UUID(s.ID)}
}

// NewSiteCondition validates and constructs a manually added site condition.
func NewSiteCondition(tenantID id.TenantID, locationID id.LocationID, libraryID id.LibraryRowID, now time.Time) (*SiteCondition, error) {
	if locationID.IsNil() {
		return nil, dErrors.Validation("location_id", "site condition requires a location")
	}
	if libraryID.IsNil() {
		return nil, dErrors.Validation("library_site_condition_id", "site condition requires a library row")
	}
	return &SiteCondition{
		Meta:          entity.NewMeta(tenantID, now),
		ID:            id.NewSiteConditionID(),
		LocationID:    locationID,
		LibraryID:     libraryID,
		ManuallyAdded: true,
	}, nil
}

// NewEvaluatedSiteCondition constructs a condition derived by the evaluator.
func NewEvaluatedSiteCondition(tenantID id.TenantID, locationID id.LocationID, libraryID id.LibraryRowID, score float64, now time.Time) (*SiteCondition, error) {
	sc, err := NewSiteCondition(tenantID, locationID, libraryID, now)
	if err != nil {
		return nil, err
	}
	sc.ManuallyAdded = false
	sc.EvaluatedScore = score
	return sc, nil
}

// HazardParent distinguishes whether a hazard hangs off a task or a site
// condition.
type HazardParent string

const (
	HazardParentTask          HazardParent = "task"
	HazardParentSiteCondition HazardParent = "site_condition"
)

// Hazard is an ordered sub-row of a task or site condition.
type Hazard struct {
	entity.Meta
	ID         id.HazardID     `json:"id"`
	ParentType HazardParent    `json:"parent_type"`
	ParentID   uuid.UUID       `json:"parent_id"`
	LibraryID  id.LibraryRowID `json:"library_hazard_id"`
	Applicable bool            `json:"is_applicable"`
	Position   int             `json:"position"`
}

func (h *Hazard) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeHazard, ID: uuid.UUID(h.ID)}
}

// Control is an ordered sub-row of a hazard.
type Control struct {
	entity.Meta
	ID         id.ControlID    `json:"id"`
	HazardID   id.HazardID     `json:"hazard_id"`
	LibraryID  id.LibraryRowID `json:"library_control_id"`
	Applicable bool            `json:"is_applicable"`
	Position   int             `json:"position"`
}

func (c *Control) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeControl, ID: uuid.UUID(c.ID)}
}

// Contractor performs work packages; risk metrics key on it.
type Contractor struct {
	entity.Meta
	ID           id.ContractorID `json:"id"`
	Name         string          `json:"name"`
	SafetyRating float64         `json:"safety_rating"`
}

func (c *Contractor) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeContractor, ID: uuid.UUID(c.ID)}
}

// Supervisor oversees work; risk metrics key on it.
type Supervisor struct {
	entity.Meta
	ID   id.SupervisorID `json:"id"`
	Name string          `json:"name"`
}

func (s *Supervisor) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeSupervisor, ID: uuid.UUID(s.ID)}
}

// Crew executes activities; risk metrics key on it.
type Crew struct {
	entity.Meta
	ID   id.CrewID `json:"id"`
	Name string    `json:"name"`
}

func (c *Crew) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeCrew, ID: uuid.UUID(c.ID)}
}

// IncidentSeverity grades an incident.
type IncidentSeverity string

const (
	IncidentNearMiss   IncidentSeverity = "near_miss"
	IncidentFirstAid   IncidentSeverity = "first_aid"
	IncidentRecordable IncidentSeverity = "recordable"
	IncidentLostTime   IncidentSeverity = "lost_time"
)

// SeverityWeight is the contribution of one incident to the contractor
// safety history aggregate.
func (s IncidentSeverity) SeverityWeight() float64 {
	switch s {
	case IncidentNearMiss:
		return 1
	case IncidentFirstAid:
		return 2
	case IncidentRecordable:
		return 4
	case IncidentLostTime:
		return 8
	}
	return 0
}

// Incident records a safety event attributed to a contractor and optionally
// a supervisor and crew.
type Incident struct {
	entity.Meta
	ID           id.IncidentID    `json:"id"`
	ContractorID id.ContractorID  `json:"contractor_id"`
	SupervisorID id.SupervisorID  `json:"supervisor_id"`
	CrewID       id.CrewID        `json:"crew_id"`
	Severity     IncidentSeverity `json:"severity"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

func (i *Incident) Ref() entity.Ref {
	return entity.Ref{Type: entity.TypeIncident, ID: uuid.UUID(i.ID)}
}

func validateWindow(start, end id.Date) error {
	if start.IsZero() {
		return dErrors.Validation("start_date", "start date is required")
	}
	if end.IsZero() {
		return dErrors.Validation("end_date", "end date is required")
	}
	if start.After(end) {
		return dErrors.Validation("start_date", "start date must not be after end date")
	}
	return nil
}

// ValidateWindowWithin rejects a child window that falls outside its
// parent's window.
func ValidateWindowWithin(childStart, childEnd, parentStart, parentEnd id.Date) error {
	if err := validateWindow(childStart, childEnd); err != nil {
		return err
	}
	if !childStart.Within(parentStart, parentEnd) || !childEnd.Within(parentStart, parentEnd) {
		return dErrors.Validation("start_date", "date window falls outside the parent's window")
	}
	return nil
}
