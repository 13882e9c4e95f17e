package models

import (
	"bytes"
	"encoding/json"
	"time"

	dErrors "worksafe/pkg/domainerr"
)

// Typed content layouts. Every write validates the document against the
// layout of its form type; unknown fields are rejected so schema drift is
// caught at the boundary instead of in a migration years later. Schemas
// evolve by migration only: a migration adds optional fields or rewrites
// rows via explicit JSON-patch recorded as a system audit event.

// WorkSchedule is the planned shift window of a daily report.
type WorkSchedule struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Valid bool      `json:"valid"`
}

// CrewSection captures who was on site.
type CrewSection struct {
	ForemanName string `json:"foreman_name,omitempty"`
	NWelders    int    `json:"n_welders,omitempty"`
	NOperators  int    `json:"n_operators,omitempty"`
	NOther      int    `json:"n_other,omitempty"`
}

// DailyReportLayout is the document schema of a daily report.
type DailyReportLayout struct {
	WorkSchedule          *WorkSchedule `json:"work_schedule,omitempty"`
	Crew                  *CrewSection  `json:"crew,omitempty"`
	AdditionalInformation string        `json:"additional_information,omitempty"`
	Attachments           []Attachment  `json:"attachments,omitempty"`
}

// Attachment is a stored file reference; signed URLs are minted by the
// object-storage collaborator on read.
type Attachment struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// JSBLayout is the document schema of a job safety briefing.
type JSBLayout struct {
	BriefingDateTime     *time.Time         `json:"briefing_date_time,omitempty"`
	WorkProcedures       []string           `json:"work_procedures,omitempty"`
	EnergySourceControls []string           `json:"energy_source_controls,omitempty"`
	NearestHospital      string             `json:"nearest_hospital,omitempty"`
	EmergencyContacts    []EmergencyContact `json:"emergency_contacts,omitempty"`
	// NatGrid extension; only valid on the natgrid variant.
	PointsOfProtection []string `json:"points_of_protection,omitempty"`
}

// EmergencyContact is a phone entry on a JSB.
type EmergencyContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// EBOLayout is the document schema of an energy based observation.
type EBOLayout struct {
	ObservedTasks   []string `json:"observed_tasks,omitempty"`
	HighEnergyTasks []string `json:"high_energy_tasks,omitempty"`
	DirectControls  bool     `json:"direct_controls,omitempty"`
	Summary         string   `json:"summary,omitempty"`
}

// ValidateContents checks a raw document against the typed layout of the
// form type. An empty document is always valid (forms start empty).
func ValidateContents(ft FormType, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var layout any
	switch ft {
	case FormDailyReport:
		layout = &DailyReportLayout{}
	case FormJobSafetyBriefing, FormNatGridJobSafetyBriefing:
		layout = &JSBLayout{}
	case FormEnergyBasedObservation:
		layout = &EBOLayout{}
	default:
		return dErrors.Validation("form_type", "unknown form type")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(layout); err != nil {
		return dErrors.Add(dErrors.Wrap(err, dErrors.CodeValidation, "contents do not match the form layout"), dErrors.FieldKey, "contents")
	}

	if dr, ok := layout.(*DailyReportLayout); ok && dr.WorkSchedule != nil {
		ws := dr.WorkSchedule
		if !ws.Start.IsZero() && !ws.End.IsZero() && ws.Start.After(ws.End) {
			return dErrors.Validation("contents.work_schedule", "schedule start must not be after end")
		}
	}
	if ft == FormJobSafetyBriefing {
		if jsb, ok := layout.(*JSBLayout); ok && len(jsb.PointsOfProtection) > 0 {
			return dErrors.Validation("contents.points_of_protection", "points of protection are only valid on the natgrid layout")
		}
	}
	return nil
}
