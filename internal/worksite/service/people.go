package service

import (
	"context"
	"time"

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

// CreateContractor registers a contractor for the tenant.
func (s *Service) CreateContractor(ctx context.Context, name string, safetyRating float64) (*models.Contractor, error) {
	if name == "" {
		return nil, dErrors.Validation("name", "name cannot be empty")
	}
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	c := &models.Contractor{
		Meta:         entity.NewMeta(requestcontext.TenantID(ctx), requestcontext.Now(ctx)),
		ID:           id.NewContractorID(),
		Name:         name,
		SafetyRating: safetyRating,
	}
	if err := sess.Add(c); err != nil {
		return nil, mapWriteErr(err, "add contractor")
	}
	if _, err := actx.Create(audit.TypeFor(entity.TypeContractor, audit.ActionCreated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerContractorChanged, uuid.UUID(c.ID))
	return c, nil
}

// UpdateContractorRating records a new external safety rating.
func (s *Service) UpdateContractorRating(ctx context.Context, cID id.ContractorID, rating float64) (*models.Contractor, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	c, err := load[*models.Contractor](sess.Context(), s.reader, refOf(entity.TypeContractor, uuid.UUID(cID)))
	if err != nil {
		return nil, err
	}
	if err := sess.Track(c); err != nil {
		return nil, mapWriteErr(err, "track contractor")
	}
	c.SafetyRating = rating
	c.Touch(requestcontext.Now(ctx))

	if _, err := actx.Create(audit.TypeFor(entity.TypeContractor, audit.ActionUpdated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerContractorChanged, uuid.UUID(c.ID))
	return c, nil
}

// GetContractor returns one contractor by id.
func (s *Service) GetContractor(ctx context.Context, cID id.ContractorID) (*models.Contractor, error) {
	return load[*models.Contractor](ctx, s.reader, refOf(entity.TypeContractor, uuid.UUID(cID)))
}

// ListContractors pages through the tenant's contractors.
func (s *Service) ListContractors(ctx context.Context, after id.ContractorID, limit int) ([]*models.Contractor, error) {
	return listAs[*models.Contractor](ctx, s.reader, store.Filter{
		Type:    entity.TypeContractor,
		AfterID: uuid.UUID(after),
		Limit:   limit,
	})
}

// CreateSupervisor registers a supervisor.
func (s *Service) CreateSupervisor(ctx context.Context, name string) (*models.Supervisor, error) {
	if name == "" {
		return nil, dErrors.Validation("name", "name cannot be empty")
	}
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sup := &models.Supervisor{
		Meta: entity.NewMeta(requestcontext.TenantID(ctx), requestcontext.Now(ctx)),
		ID:   id.NewSupervisorID(),
		Name: name,
	}
	if err := sess.Add(sup); err != nil {
		return nil, mapWriteErr(err, "add supervisor")
	}
	if _, err := actx.Create(audit.TypeFor(entity.TypeSupervisor, audit.ActionCreated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerSupervisorChanged, uuid.UUID(sup.ID))
	return sup, nil
}

// ListSupervisors pages through the tenant's supervisors.
func (s *Service) ListSupervisors(ctx context.Context, after id.SupervisorID, limit int) ([]*models.Supervisor, error) {
	return listAs[*models.Supervisor](ctx, s.reader, store.Filter{
		Type:    entity.TypeSupervisor,
		AfterID: uuid.UUID(after),
		Limit:   limit,
	})
}

// CreateCrew registers a crew.
func (s *Service) CreateCrew(ctx context.Context, name string) (*models.Crew, error) {
	if name == "" {
		return nil, dErrors.Validation("name", "name cannot be empty")
	}
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	crew := &models.Crew{
		Meta: entity.NewMeta(requestcontext.TenantID(ctx), requestcontext.Now(ctx)),
		ID:   id.NewCrewID(),
		Name: name,
	}
	if err := sess.Add(crew); err != nil {
		return nil, mapWriteErr(err, "add crew")
	}
	if _, err := actx.Create(audit.TypeFor(entity.TypeCrew, audit.ActionCreated)); err != nil {
		return nil, err
	}
	return crew, nil
}

// RecordIncident logs a safety incident against a contractor, optionally
// attributing a supervisor and crew.
func (s *Service) RecordIncident(ctx context.Context, contractorID id.ContractorID, supervisorID id.SupervisorID, crewID id.CrewID, severity models.IncidentSeverity, occurredAt time.Time) (*models.Incident, error) {
	if severity.SeverityWeight() == 0 {
		return nil, dErrors.Validation("severity", "severity must be near_miss, first_aid, recordable or lost_time")
	}
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	contractor, err := load[*models.Contractor](sctx, s.reader, refOf(entity.TypeContractor, uuid.UUID(contractorID)))
	if err != nil {
		return nil, err
	}

	inc := &models.Incident{
		Meta:         entity.NewMeta(contractor.Tenant(), requestcontext.Now(ctx)),
		ID:           id.NewIncidentID(),
		ContractorID: contractorID,
		SupervisorID: supervisorID,
		CrewID:       crewID,
		Severity:     severity,
		OccurredAt:   occurredAt,
	}
	if err := sess.Add(inc); err != nil {
		return nil, mapWriteErr(err, "add incident")
	}
	if _, err := actx.Create(audit.TypeFor(entity.TypeIncident, audit.ActionCreated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerIncidentChanged, uuid.UUID(inc.ID))
	return inc, nil
}

// ListIncidents returns the incidents attributed to a contractor.
func (s *Service) ListIncidents(ctx context.Context, contractorID id.ContractorID) ([]*models.Incident, error) {
	return listAs[*models.Incident](ctx, s.reader, store.Filter{
		Type:       entity.TypeIncident,
		Conditions: map[string]any{"contractor_id": contractorID},
	})
}
