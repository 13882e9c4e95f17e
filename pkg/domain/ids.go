// Package domain defines the typed identifiers shared across the core.
//
// Every identifier is an opaque 128-bit UUID wrapped in a distinct named type
// so the compiler rejects cross-entity assignments (a TaskID can never be
// passed where a LocationID is expected). Parse helpers enforce the invariant
// that IDs are valid, non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "worksafe/pkg/domainerr"
)

// Typed identifiers for tenant-scoped entities.
type (
	TenantID        uuid.UUID
	UserID          uuid.UUID
	WorkPackageID   uuid.UUID
	LocationID      uuid.UUID
	ActivityID      uuid.UUID
	TaskID          uuid.UUID
	SiteConditionID uuid.UUID
	HazardID        uuid.UUID
	ControlID       uuid.UUID
	FormID          uuid.UUID
	ContractorID    uuid.UUID
	SupervisorID    uuid.UUID
	CrewID          uuid.UUID
	IncidentID      uuid.UUID
	AuditEventID    uuid.UUID
	LibraryRowID    uuid.UUID
)

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

// NewTenantID returns a freshly generated tenant identifier.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// ParseTenantID validates and converts a string into a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s)
	return TenantID(u), err
}

func (id TenantID) String() string { return uuid.UUID(id).String() }
func (id TenantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewUserID returns a freshly generated user identifier.
func NewUserID() UserID { return UserID(uuid.New()) }

// ParseUserID validates and converts a string into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewWorkPackageID returns a freshly generated work package identifier.
func NewWorkPackageID() WorkPackageID { return WorkPackageID(uuid.New()) }

// ParseWorkPackageID validates and converts a string into a WorkPackageID.
func ParseWorkPackageID(s string) (WorkPackageID, error) {
	u, err := parseUUID(s)
	return WorkPackageID(u), err
}

func (id WorkPackageID) String() string { return uuid.UUID(id).String() }
func (id WorkPackageID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewLocationID returns a freshly generated location identifier.
func NewLocationID() LocationID { return LocationID(uuid.New()) }

// ParseLocationID validates and converts a string into a LocationID.
func ParseLocationID(s string) (LocationID, error) {
	u, err := parseUUID(s)
	return LocationID(u), err
}

func (id LocationID) String() string { return uuid.UUID(id).String() }
func (id LocationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewActivityID returns a freshly generated activity identifier.
func NewActivityID() ActivityID { return ActivityID(uuid.New()) }

// ParseActivityID validates and converts a string into an ActivityID.
func ParseActivityID(s string) (ActivityID, error) {
	u, err := parseUUID(s)
	return ActivityID(u), err
}

func (id ActivityID) String() string { return uuid.UUID(id).String() }
func (id ActivityID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewTaskID returns a freshly generated task identifier.
func NewTaskID() TaskID { return TaskID(uuid.New()) }

// ParseTaskID validates and converts a string into a TaskID.
func ParseTaskID(s string) (TaskID, error) {
	u, err := parseUUID(s)
	return TaskID(u), err
}

func (id TaskID) String() string { return uuid.UUID(id).String() }
func (id TaskID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewSiteConditionID returns a freshly generated site condition identifier.
func NewSiteConditionID() SiteConditionID { return SiteConditionID(uuid.New()) }

// ParseSiteConditionID validates and converts a string into a SiteConditionID.
func ParseSiteConditionID(s string) (SiteConditionID, error) {
	u, err := parseUUID(s)
	return SiteConditionID(u), err
}

func (id SiteConditionID) String() string { return uuid.UUID(id).String() }
func (id SiteConditionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewHazardID returns a freshly generated hazard identifier.
func NewHazardID() HazardID { return HazardID(uuid.New()) }

// ParseHazardID validates and converts a string into a HazardID.
func ParseHazardID(s string) (HazardID, error) {
	u, err := parseUUID(s)
	return HazardID(u), err
}

func (id HazardID) String() string { return uuid.UUID(id).String() }
func (id HazardID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewControlID returns a freshly generated control identifier.
func NewControlID() ControlID { return ControlID(uuid.New()) }

// ParseControlID validates and converts a string into a ControlID.
func ParseControlID(s string) (ControlID, error) {
	u, err := parseUUID(s)
	return ControlID(u), err
}

func (id ControlID) String() string { return uuid.UUID(id).String() }
func (id ControlID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewFormID returns a freshly generated form identifier.
func NewFormID() FormID { return FormID(uuid.New()) }

// ParseFormID validates and converts a string into a FormID.
func ParseFormID(s string) (FormID, error) {
	u, err := parseUUID(s)
	return FormID(u), err
}

func (id FormID) String() string { return uuid.UUID(id).String() }
func (id FormID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewContractorID returns a freshly generated contractor identifier.
func NewContractorID() ContractorID { return ContractorID(uuid.New()) }

// ParseContractorID validates and converts a string into a ContractorID.
func ParseContractorID(s string) (ContractorID, error) {
	u, err := parseUUID(s)
	return ContractorID(u), err
}

func (id ContractorID) String() string { return uuid.UUID(id).String() }
func (id ContractorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewSupervisorID returns a freshly generated supervisor identifier.
func NewSupervisorID() SupervisorID { return SupervisorID(uuid.New()) }

// ParseSupervisorID validates and converts a string into a SupervisorID.
func ParseSupervisorID(s string) (SupervisorID, error) {
	u, err := parseUUID(s)
	return SupervisorID(u), err
}

func (id SupervisorID) String() string { return uuid.UUID(id).String() }
func (id SupervisorID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewCrewID returns a freshly generated crew identifier.
func NewCrewID() CrewID { return CrewID(uuid.New()) }

// ParseCrewID validates and converts a string into a CrewID.
func ParseCrewID(s string) (CrewID, error) {
	u, err := parseUUID(s)
	return CrewID(u), err
}

func (id CrewID) String() string { return uuid.UUID(id).String() }
func (id CrewID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewIncidentID returns a freshly generated incident identifier.
func NewIncidentID() IncidentID { return IncidentID(uuid.New()) }

func (id IncidentID) String() string { return uuid.UUID(id).String() }
func (id IncidentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewAuditEventID returns a freshly generated audit event identifier.
func NewAuditEventID() AuditEventID { return AuditEventID(uuid.New()) }

func (id AuditEventID) String() string { return uuid.UUID(id).String() }
func (id AuditEventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewLibraryRowID returns a freshly generated library catalog identifier.
func NewLibraryRowID() LibraryRowID { return LibraryRowID(uuid.New()) }

// ParseLibraryRowID validates and converts a string into a LibraryRowID.
func ParseLibraryRowID(s string) (LibraryRowID, error) {
	u, err := parseUUID(s)
	return LibraryRowID(u), err
}

func (id LibraryRowID) String() string { return uuid.UUID(id).String() }
func (id LibraryRowID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
