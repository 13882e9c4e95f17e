package models

import "worksafe/internal/entity"

// Descriptors enumerates the form entity descriptors. All form entities
// share the Form shape; contents is the audited document column.
func Descriptors() []entity.Descriptor {
	newForm := func() entity.Record { return &Form{} }
	return []entity.Descriptor{
		{Type: entity.TypeDailyReport, Table: "daily_reports", DocumentColumns: []string{"contents"}, New: newForm},
		{Type: entity.TypeJobSafetyBriefing, Table: "job_safety_briefings", DocumentColumns: []string{"contents"}, New: newForm},
		{Type: entity.TypeEnergyBasedObservation, Table: "energy_based_observations", DocumentColumns: []string{"contents"}, New: newForm},
	}
}
