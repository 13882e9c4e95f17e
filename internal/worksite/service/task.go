package service

import (
	"context"
	"sort"

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

// HazardInput describes one hazard with its controls for task and site
// condition creation.
type HazardInput struct {
	LibraryID  id.LibraryRowID
	Applicable bool
	Controls   []ControlInput
}

// ControlInput describes one control under a hazard.
type ControlInput struct {
	LibraryID  id.LibraryRowID
	Applicable bool
}

// CreateTask adds a task (with its hazard/control rows) under an activity.
// The task inherits the activity's location for indexing.
func (s *Service) CreateTask(ctx context.Context, activityID id.ActivityID, libraryTaskID id.LibraryRowID, hazards []HazardInput) (*models.Task, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	act, err := load[*models.Activity](sctx, s.reader, refOf(entity.TypeActivity, uuid.UUID(activityID)))
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	task, err := models.NewTask(act.Tenant(), act.ID, act.LocationID, libraryTaskID, now)
	if err != nil {
		return nil, err
	}
	if err := sess.Add(task); err != nil {
		return nil, mapWriteErr(err, "add task")
	}
	if err := s.addHazards(sess, models.HazardParentTask, uuid.UUID(task.ID), task.Tenant(), hazards); err != nil {
		return nil, err
	}

	if _, err := actx.Create(audit.TypeFor(entity.TypeTask, audit.ActionCreated)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerTaskChanged, uuid.UUID(task.ID))
	return task, nil
}

// GetTask returns one task by id.
func (s *Service) GetTask(ctx context.Context, taskID id.TaskID, opts ...store.Option) (*models.Task, error) {
	return load[*models.Task](ctx, s.reader, refOf(entity.TypeTask, uuid.UUID(taskID)), opts...)
}

// ListTasks returns the tasks at a location.
func (s *Service) ListTasks(ctx context.Context, locID id.LocationID) ([]*models.Task, error) {
	return listAs[*models.Task](ctx, s.reader, store.Filter{
		Type:       entity.TypeTask,
		Conditions: map[string]any{"location_id": locID},
	})
}

// ListTaskHazards returns a task's hazards in position order with their
// controls resolved.
func (s *Service) ListTaskHazards(ctx context.Context, taskID id.TaskID) ([]*models.Hazard, map[id.HazardID][]*models.Control, error) {
	hazards, err := listAs[*models.Hazard](ctx, s.reader, store.Filter{
		Type: entity.TypeHazard,
		Conditions: map[string]any{
			"parent_type": models.HazardParentTask,
			"parent_id":   taskID,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(hazards, func(i, j int) bool { return hazards[i].Position < hazards[j].Position })
	controls := make(map[id.HazardID][]*models.Control, len(hazards))
	for _, h := range hazards {
		cs, err := listAs[*models.Control](ctx, s.reader, store.Filter{
			Type:       entity.TypeControl,
			Conditions: map[string]any{"hazard_id": h.ID},
		})
		if err != nil {
			return nil, nil, err
		}
		sort.Slice(cs, func(i, j int) bool { return cs[i].Position < cs[j].Position })
		controls[h.ID] = cs
	}
	return hazards, controls, nil
}

// SetHazardApplicability flips the applicability flag on a hazard or one of
// its controls.
func (s *Service) SetHazardApplicability(ctx context.Context, hazardID id.HazardID, applicable bool) (*models.Hazard, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	h, err := load[*models.Hazard](sctx, s.reader, refOf(entity.TypeHazard, uuid.UUID(hazardID)))
	if err != nil {
		return nil, err
	}
	if err := sess.Track(h); err != nil {
		return nil, mapWriteErr(err, "track hazard")
	}
	h.Applicable = applicable
	h.Touch(requestcontext.Now(ctx))

	if _, err := actx.Create(audit.TypeFor(entity.TypeHazard, audit.ActionUpdated)); err != nil {
		return nil, err
	}
	if h.ParentType == models.HazardParentTask {
		s.emit(ctx, risk.TriggerTaskChanged, h.ParentID)
	} else {
		s.emit(ctx, risk.TriggerSiteConditionChanged, h.ParentID)
	}
	return h, nil
}

// ArchiveTask archives a single task.
func (s *Service) ArchiveTask(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	sess, actx, err := s.scope(ctx)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	sctx := sess.Context()
	task, err := load[*models.Task](sctx, s.reader, refOf(entity.TypeTask, uuid.UUID(taskID)), store.WithArchived())
	if err != nil {
		return nil, err
	}
	if task.IsArchived() {
		return task, nil
	}
	if err := sess.Track(task); err != nil {
		return nil, mapWriteErr(err, "track task")
	}
	now := requestcontext.Now(ctx)
	task.SetArchivedAt(&now)
	task.Touch(now)

	if _, err := actx.Create(audit.TypeFor(entity.TypeTask, audit.ActionArchived)); err != nil {
		return nil, err
	}
	s.emit(ctx, risk.TriggerTaskChanged, uuid.UUID(task.ID))
	return task, nil
}

// DeleteTask physically removes a task. Admin only; the deletion still
// produces a deleted diff.
func (s *Service) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	actor := requestcontext.ActorFrom(ctx)
	if !actor.IsSystem() {
		return dErrors.New(dErrors.CodeUnauthorized, "physical delete is admin only")
	}

	sess, actx, err := s.scope(ctx)
	if err != nil {
		return err
	}
	defer actx.Close()

	sctx := sess.Context()
	task, err := load[*models.Task](sctx, s.reader, refOf(entity.TypeTask, uuid.UUID(taskID)), store.WithArchived())
	if err != nil {
		return err
	}
	if err := sess.Delete(task); err != nil {
		return mapWriteErr(err, "delete task")
	}
	if _, err := actx.Create(audit.TypeFor(entity.TypeTask, audit.ActionDeleted)); err != nil {
		return err
	}
	s.emit(ctx, risk.TriggerTaskChanged, uuid.UUID(task.ID))
	return nil
}

// addHazards stages hazard and control rows in declared order.
func (s *Service) addHazards(sess *session.Session, parent models.HazardParent, parentID uuid.UUID, tenantID id.TenantID, hazards []HazardInput) error {
	now := requestcontext.Now(sess.Context())
	for i, hi := range hazards {
		if hi.LibraryID.IsNil() {
			return dErrors.Validation("library_hazard_id", "hazard requires a library row")
		}
		h := &models.Hazard{
			Meta:       entity.NewMeta(tenantID, now),
			ID:         id.NewHazardID(),
			ParentType: parent,
			ParentID:   parentID,
			LibraryID:  hi.LibraryID,
			Applicable: hi.Applicable,
			Position:   i,
		}
		if err := sess.Add(h); err != nil {
			return mapWriteErr(err, "add hazard")
		}
		for j, ci := range hi.Controls {
			if ci.LibraryID.IsNil() {
				return dErrors.Validation("library_control_id", "control requires a library row")
			}
			c := &models.Control{
				Meta:       entity.NewMeta(tenantID, now),
				ID:         id.NewControlID(),
				HazardID:   h.ID,
				LibraryID:  ci.LibraryID,
				Applicable: ci.Applicable,
				Position:   j,
			}
			if err := sess.Add(c); err != nil {
				return mapWriteErr(err, "add control")
			}
		}
	}
	return nil
}
