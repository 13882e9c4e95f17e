// Package models defines the document-shaped form entities: daily reports,
// job safety briefings (including the NatGrid variant) and energy based
// observations. Each form owns a single JSON contents column validated
// against a typed layout, plus scalar facets mirrored for indexing.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/entity"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
)

// FormType discriminates the concrete form entity.
type FormType string

const (
	FormDailyReport              FormType = "daily_report"
	FormJobSafetyBriefing        FormType = "job_safety_briefing"
	FormNatGridJobSafetyBriefing FormType = "natgrid_job_safety_briefing"
	FormEnergyBasedObservation   FormType = "energy_based_observation"
)

// ParseFormType validates a form type.
func ParseFormType(s string) (FormType, error) {
	switch FormType(s) {
	case FormDailyReport, FormJobSafetyBriefing, FormNatGridJobSafetyBriefing, FormEnergyBasedObservation:
		return FormType(s), nil
	}
	return "", dErrors.Validation("form_type", "unknown form type")
}

// EntityType maps a form type onto its audit object type. The NatGrid JSB is
// a layout variant, not a distinct entity.
func (ft FormType) EntityType() entity.Type {
	switch ft {
	case FormDailyReport:
		return entity.TypeDailyReport
	case FormJobSafetyBriefing, FormNatGridJobSafetyBriefing:
		return entity.TypeJobSafetyBriefing
	case FormEnergyBasedObservation:
		return entity.TypeEnergyBasedObservation
	}
	return ""
}

// FormStatus is the two-state form lifecycle. Reopening moves a complete
// form back to in-progress while preserving the first completion metadata.
type FormStatus string

const (
	FormInProgress FormStatus = "in-progress"
	FormComplete   FormStatus = "complete"
)

// Completion records one completion of a form. The log is append-only:
// complete → reopen → complete yields two entries with the first preserved.
type Completion struct {
	CompletedBy id.UserID `json:"completed_by"`
	CompletedAt time.Time `json:"completed_at"`
}

// Form is the shared shape of all document-backed form entities.
type Form struct {
	entity.Meta
	ID          id.FormID       `json:"id"`
	Type        FormType        `json:"form_type"`
	LocationID  id.LocationID   `json:"location_id"`
	Status      FormStatus      `json:"status"`
	DateFor     id.Date         `json:"date_for"`
	CreatedBy   id.UserID       `json:"created_by"`
	CompletedBy id.UserID       `json:"completed_by"`
	CompletedAt *time.Time      `json:"completed_at"`
	Completions []Completion    `json:"completions"`
	Contents    json.RawMessage `json:"contents"`
}

func (f *Form) Ref() entity.Ref {
	return entity.Ref{Type: f.Type.EntityType(), ID: uuid.UUID(f.ID)}
}

// NewForm validates and constructs an in-progress form with empty contents.
func NewForm(tenantID id.TenantID, ft FormType, locationID id.LocationID, dateFor id.Date, createdBy id.UserID, now time.Time) (*Form, error) {
	if ft.EntityType() == "" {
		return nil, dErrors.Validation("form_type", "unknown form type")
	}
	if locationID.IsNil() {
		return nil, dErrors.Validation("location_id", "form requires a location")
	}
	if dateFor.IsZero() {
		return nil, dErrors.Validation("date_for", "form requires a date")
	}
	return &Form{
		Meta:       entity.NewMeta(tenantID, now),
		ID:         id.NewFormID(),
		Type:       ft,
		LocationID: locationID,
		Status:     FormInProgress,
		DateFor:    dateFor,
		CreatedBy:  createdBy,
		Contents:   json.RawMessage(`{}`),
	}, nil
}

// SetContents validates the document against the form's typed layout and
// replaces it.
func (f *Form) SetContents(raw json.RawMessage) error {
	if err := ValidateContents(f.Type, raw); err != nil {
		return err
	}
	f.Contents = raw
	return nil
}

// Complete transitions the form to complete and appends a completion record.
// Double completion is a conflict.
func (f *Form) Complete(by id.UserID, at time.Time) error {
	if f.Status == FormComplete {
		return dErrors.New(dErrors.CodeConflict, "form is already complete")
	}
	f.Status = FormComplete
	f.CompletedBy = by
	f.CompletedAt = &at
	f.Completions = append(f.Completions, Completion{CompletedBy: by, CompletedAt: at})
	return nil
}

// Reopen transitions complete → in-progress. The completions log and the
// first completion's facets are preserved; only the status moves.
func (f *Form) Reopen() error {
	if f.Status != FormComplete {
		return dErrors.New(dErrors.CodeConflict, "only a complete form can be reopened")
	}
	f.Status = FormInProgress
	return nil
}

// IsInProgress reports whether the form blocks archive of its location.
func (f *Form) IsInProgress() bool { return f.Status == FormInProgress }

// FirstCompletion returns the earliest completion record, if any.
func (f *Form) FirstCompletion() (Completion, bool) {
	if len(f.Completions) == 0 {
		return Completion{}, false
	}
	return f.Completions[0], true
}
