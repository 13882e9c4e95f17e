package models

import "worksafe/internal/entity"

// Descriptors enumerates the work-site entity descriptors for the registry.
func Descriptors() []entity.Descriptor {
	return []entity.Descriptor{
		{Type: entity.TypeWorkPackage, Table: "work_packages", New: func() entity.Record { return &WorkPackage{} }},
		{Type: entity.TypeLocation, Table: "locations", New: func() entity.Record { return &Location{} }},
		{Type: entity.TypeActivity, Table: "activities", New: func() entity.Record { return &Activity{} }},
		{Type: entity.TypeTask, Table: "tasks", New: func() entity.Record { return &Task{} }},
		{Type: entity.TypeSiteCondition, Table: "site_conditions", New: func() entity.Record { return &SiteCondition{} }},
		{Type: entity.TypeHazard, Table: "hazards", New: func() entity.Record { return &Hazard{} }},
		{Type: entity.TypeControl, Table: "controls", New: func() entity.Record { return &Control{} }},
		{Type: entity.TypeContractor, Table: "contractors", New: func() entity.Record { return &Contractor{} }},
		{Type: entity.TypeSupervisor, Table: "supervisors", New: func() entity.Record { return &Supervisor{} }},
		{Type: entity.TypeCrew, Table: "crews", New: func() entity.Record { return &Crew{} }},
		{Type: entity.TypeIncident, Table: "incidents", New: func() entity.Record { return &Incident{} }},
	}
}
