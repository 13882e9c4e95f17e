package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worksafe/internal/entity/store"
	"worksafe/internal/worksite/models"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/requestcontext"
	"worksafe/pkg/testutil"
)

// seedTask builds work package > location > activity > task with the given
// hazards and returns the task alongside its context.
func seedTask(t *testing.T, f *fixture, hazards []HazardInput) (context.Context, id.TenantID, *models.Task) {
	t.Helper()
	ctx, tenantID, _ := testutil.Context(testClock)
	wp, err := f.svc.CreateWorkPackage(ctx, validWorkPackage())
	require.NoError(t, err)
	loc, err := f.svc.CreateLocation(ctx, wp.ID, "Yard 4", 33.4, -112.0)
	require.NoError(t, err)
	act, err := f.svc.CreateActivity(ctx, CreateActivityInput{
		LocationID: loc.ID,
		Name:       "Trenching",
		StartDate:  id.NewDate(2026, time.March, 2),
		EndDate:    id.NewDate(2026, time.April, 1),
	})
	require.NoError(t, err)
	task, err := f.svc.CreateTask(ctx, act.ID, id.NewLibraryRowID(), hazards)
	require.NoError(t, err)
	return ctx, tenantID, task
}

func TestCreateTaskWithHazardsAndControls(t *testing.T) {
	f := newFixture(t)
	hazLib := id.NewLibraryRowID()
	ctlLib := id.NewLibraryRowID()
	ctx, _, task := seedTask(t, f, []HazardInput{
		{LibraryID: hazLib, Applicable: true, Controls: []ControlInput{
			{LibraryID: ctlLib, Applicable: true},
			{LibraryID: id.NewLibraryRowID(), Applicable: false},
		}},
		{LibraryID: id.NewLibraryRowID(), Applicable: false},
	})

	hazards, controls, err := f.svc.ListTaskHazards(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, hazards, 2)
	assert.Equal(t, hazLib, hazards[0].LibraryID, "declared order preserved")
	assert.True(t, hazards[0].Applicable)
	assert.False(t, hazards[1].Applicable)

	got := controls[hazards[0].ID]
	require.Len(t, got, 2)
	assert.Equal(t, ctlLib, got[0].LibraryID)
	assert.Empty(t, controls[hazards[1].ID])
}

func TestSetHazardApplicability(t *testing.T) {
	f := newFixture(t)
	ctx, _, task := seedTask(t, f, []HazardInput{
		{LibraryID: id.NewLibraryRowID(), Applicable: true},
	})
	hazards, _, err := f.svc.ListTaskHazards(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, hazards, 1)

	updated, err := f.svc.SetHazardApplicability(ctx, hazards[0].ID, false)
	require.NoError(t, err)
	assert.False(t, updated.Applicable)

	hazards, _, err = f.svc.ListTaskHazards(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, hazards[0].Applicable)
}

func TestActivityWindowMustSitInsideWorkPackage(t *testing.T) {
	f := newFixture(t)
	ctx, _, _ := testutil.Context(testClock)
	wp, err := f.svc.CreateWorkPackage(ctx, validWorkPackage())
	require.NoError(t, err)
	loc, err := f.svc.CreateLocation(ctx, wp.ID, "Yard 9", 0, 0)
	require.NoError(t, err)

	_, err = f.svc.CreateActivity(ctx, CreateActivityInput{
		LocationID: loc.ID,
		Name:       "Out of bounds",
		StartDate:  id.NewDate(2026, time.February, 1),
		EndDate:    id.NewDate(2026, time.March, 15),
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDeleteTaskIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)
	wp, err := f.svc.CreateWorkPackage(ctx, validWorkPackage())
	require.NoError(t, err)
	loc, err := f.svc.CreateLocation(ctx, wp.ID, "Yard 1", 0, 0)
	require.NoError(t, err)
	act, err := f.svc.CreateActivity(ctx, CreateActivityInput{
		LocationID: loc.ID,
		Name:       "Splicing",
		StartDate:  id.NewDate(2026, time.March, 2),
		EndDate:    id.NewDate(2026, time.March, 9),
	})
	require.NoError(t, err)
	task, err := f.svc.CreateTask(ctx, act.ID, id.NewLibraryRowID(), nil)
	require.NoError(t, err)

	testutil.Then(t, "a regular user is refused", func(t *testing.T) {
		err := f.svc.DeleteTask(ctx, task.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	testutil.Then(t, "the system actor removes the row", func(t *testing.T) {
		sysCtx := requestcontext.WithActor(
			requestcontext.WithTime(requestcontext.WithTenantID(context.Background(), tenantID), testClock),
			requestcontext.SystemActor("admin-cli"))
		require.NoError(t, f.svc.DeleteTask(sysCtx, task.ID))

		_, err := f.svc.GetTask(ctx, task.ID, store.WithArchived())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestRecordIncidentAndContractorRating(t *testing.T) {
	f := newFixture(t)
	ctx, _, _ := testutil.Context(testClock)

	c, err := f.svc.CreateContractor(ctx, "Hightower Electric", 82)
	require.NoError(t, err)
	sup, err := f.svc.CreateSupervisor(ctx, "J. Ortiz")
	require.NoError(t, err)
	crew, err := f.svc.CreateCrew(ctx, "Crew 7")
	require.NoError(t, err)

	inc, err := f.svc.RecordIncident(ctx, c.ID, sup.ID, crew.ID, models.IncidentNearMiss, testClock.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.IncidentNearMiss, inc.Severity)

	incidents, err := f.svc.ListIncidents(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 1)

	updated, err := f.svc.UpdateContractorRating(ctx, c.ID, 75)
	require.NoError(t, err)
	assert.Equal(t, 75.0, updated.SafetyRating)
}
