package domain

import "github.com/google/uuid"

// Text marshalling for the typed IDs. Defined types do not inherit the
// uuid.UUID marshalling methods, and without these the column codec would
// encode IDs as byte arrays instead of canonical UUID strings.

func (id TenantID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *TenantID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *UserID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id WorkPackageID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *WorkPackageID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id LocationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *LocationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ActivityID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *ActivityID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id TaskID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *TaskID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id SiteConditionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *SiteConditionID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id HazardID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *HazardID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ControlID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *ControlID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id FormID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *FormID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ContractorID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *ContractorID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id SupervisorID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *SupervisorID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id CrewID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *CrewID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id IncidentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *IncidentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id AuditEventID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *AuditEventID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id LibraryRowID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *LibraryRowID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
