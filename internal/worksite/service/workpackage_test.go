package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worksafe/internal/audit"
	auditmemory "worksafe/internal/audit/store/memory"
	"worksafe/internal/entity"
	"worksafe/internal/entity/store"
	entitymemory "worksafe/internal/entity/store/memory"
	"worksafe/internal/registry"
	"worksafe/internal/worksite/models"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/testutil"
)

var testClock = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	audits *auditmemory.Store
	mem    *entitymemory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	mem := entitymemory.New(reg)
	audits := auditmemory.New(mem)
	return &fixture{
		svc:    New(mem, mem, reg, audits),
		audits: audits,
		mem:    mem,
	}
}

func validWorkPackage() CreateWorkPackageInput {
	return CreateWorkPackageInput{
		Name:      "North Transmission Rebuild",
		StartDate: id.NewDate(2026, time.March, 1),
		EndDate:   id.NewDate(2026, time.June, 30),
	}
}

func TestCreateWorkPackage(t *testing.T) {
	f := newFixture(t)
	ctx, tenantID, actor := testutil.Context(testClock)

	wp, err := f.svc.CreateWorkPackage(ctx, validWorkPackage())
	require.NoError(t, err)
	assert.Equal(t, models.WorkPackagePending, wp.Status)
	assert.Equal(t, tenantID, wp.Tenant())

	testutil.Then(t, "one created event with a created diff is committed", func(t *testing.T) {
		events, err := f.audits.ListForObject(ctx, tenantID, wp.Ref(), audit.ListQuery{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		ev := events[0]
		assert.Equal(t, audit.EventWorkPackageCreated, ev.Type)
		assert.Equal(t, actor.UserID, ev.Actor.UserID)
		require.Len(t, ev.Diffs, 1)
		d := ev.Diffs[0]
		assert.Equal(t, audit.DiffCreated, d.Type)
		assert.Nil(t, d.OldValues)
		assert.JSONEq(t, `"North Transmission Rebuild"`, string(mustField(t, d.NewValues, "name")))
	})
}

func TestCreateWorkPackageValidation(t *testing.T) {
	f := newFixture(t)
	ctx, _, _ := testutil.Context(testClock)

	t.Run("empty name rejected", func(t *testing.T) {
		in := validWorkPackage()
		in.Name = ""
		_, err := f.svc.CreateWorkPackage(ctx, in)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		field, ok := dErrors.Load(err, dErrors.FieldKey)
		require.True(t, ok)
		assert.Equal(t, "name", field)
	})

	t.Run("start after end rejected", func(t *testing.T) {
		in := validWorkPackage()
		in.StartDate = id.NewDate(2026, time.July, 1)
		_, err := f.svc.CreateWorkPackage(ctx, in)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("single day window allowed", func(t *testing.T) {
		in := validWorkPackage()
		in.StartDate = id.NewDate(2026, time.March, 1)
		in.EndDate = id.NewDate(2026, time.March, 1)
		_, err := f.svc.CreateWorkPackage(ctx, in)
		require.NoError(t, err)
	})

	t.Run("unknown contractor ref rejected", func(t *testing.T) {
		in := validWorkPackage()
		in.ContractorID = id.NewContractorID()
		_, err := f.svc.CreateWorkPackage(ctx, in)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestUpdateWorkPackageDiffsChangedFieldsOnly(t *testing.T) {
	f := newFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)

	wp, err := f.svc.CreateWorkPackage(ctx, validWorkPackage())
	require.NoError(t, err)

	later := testutil.ContextForTenant(tenantID, testClock.Add(time.Hour))
	name := "North Transmission Rebuild Phase 2"
	status := models.WorkPackageActive
	updated, err := f.svc.UpdateWorkPackage(later, wp.ID, UpdateWorkPackageInput{
		Name:   &name,
		Status: &status,
	})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, models.WorkPackageActive, updated.Status)

	events, err := f.audits.ListForObject(ctx, tenantID, wp.Ref(), audit.ListQuery{})
	require.NoError(t, err)
	require.Len(t, events, 2)

	ev := events[0] // newest first
	assert.Equal(t, audit.EventWorkPackageUpdated, ev.Type)
	require.Len(t, ev.Diffs, 1)
	d := ev.Diffs[0]
	assert.Equal(t, audit.DiffUpdated, d.Type)

	old := decodeDict(t, d.OldValues)
	now := decodeDict(t, d.NewValues)
	assert.Equal(t, "North Transmission Rebuild", old["name"])
	assert.Equal(t, name, now["name"])
	assert.Equal(t, "pending", old["status"])
	assert.Equal(t, "active", now["status"])
	assert.NotContains(t, old, "start_date", "untouched columns stay out of the diff")
	assert.NotContains(t, now, "end_date")
}

func TestUpdateWorkPackageNoChangeProducesNoEvent(t *testing.T) {
	f := newFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)

	wp, err := f.svc.CreateWorkPackage(ctx, validWorkPackage())
	require.NoError(t, err)

	_, err = f.svc.UpdateWorkPackage(ctx, wp.ID, UpdateWorkPackageInput{})
	require.NoError(t, err)

	events, err := f.audits.ListForObject(ctx, tenantID, wp.Ref(), audit.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, events, 1, "a no-op update must not seal an event")
}

func TestArchiveWorkPackageCascade(t *testing.T) {
	f := newFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)

	wp, err := f.svc.CreateWorkPackage(ctx, validWorkPackage())
	require.NoError(t, err)
	loc, err := f.svc.CreateLocation(ctx, wp.ID, "Substation 12", 40.71, -74.0)
	require.NoError(t, err)
	act, err := f.svc.CreateActivity(ctx, CreateActivityInput{
		LocationID: loc.ID,
		Name:       "Pole replacement",
		StartDate:  id.NewDate(2026, time.March, 5),
		EndDate:    id.NewDate(2026, time.March, 20),
	})
	require.NoError(t, err)
	task, err := f.svc.CreateTask(ctx, act.ID, id.NewLibraryRowID(), nil)
	require.NoError(t, err)

	archiveAt := testClock.Add(48 * time.Hour)
	archiveCtx := testutil.ContextForTenant(tenantID, archiveAt)
	archived, err := f.svc.ArchiveWorkPackage(archiveCtx, wp.ID)
	require.NoError(t, err)
	require.NotNil(t, archived.ArchivedAt())
	assert.True(t, archived.ArchivedAt().Equal(archiveAt))

	testutil.Then(t, "every descendant shares the archive timestamp", func(t *testing.T) {
		gotLoc, err := f.svc.GetLocation(archiveCtx, loc.ID, store.WithArchived())
		require.NoError(t, err)
		require.NotNil(t, gotLoc.ArchivedAt())
		assert.True(t, gotLoc.ArchivedAt().Equal(archiveAt))

		gotAct, err := f.svc.GetActivity(archiveCtx, act.ID, store.WithArchived())
		require.NoError(t, err)
		require.NotNil(t, gotAct.ArchivedAt())
		assert.True(t, gotAct.ArchivedAt().Equal(archiveAt))

		gotTask, err := f.svc.GetTask(archiveCtx, task.ID, store.WithArchived())
		require.NoError(t, err)
		require.NotNil(t, gotTask.ArchivedAt())
		assert.True(t, gotTask.ArchivedAt().Equal(archiveAt))
	})

	testutil.Then(t, "the cascade is one event covering every row", func(t *testing.T) {
		events, err := f.audits.ListForObject(archiveCtx, tenantID, wp.Ref(), audit.ListQuery{})
		require.NoError(t, err)
		ev := events[0]
		assert.Equal(t, audit.EventWorkPackageArchived, ev.Type)
		touched := map[entity.Type]bool{}
		for _, d := range ev.Diffs {
			touched[d.ObjectType] = true
		}
		assert.True(t, touched[entity.TypeWorkPackage])
		assert.True(t, touched[entity.TypeLocation])
		assert.True(t, touched[entity.TypeActivity])
		assert.True(t, touched[entity.TypeTask])
	})

	testutil.Then(t, "archived rows drop out of default reads", func(t *testing.T) {
		_, err := f.svc.GetWorkPackage(archiveCtx, wp.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	testutil.Then(t, "re-archiving is a no-op", func(t *testing.T) {
		again, err := f.svc.ArchiveWorkPackage(testutil.ContextForTenant(tenantID, archiveAt.Add(time.Hour)), wp.ID)
		require.NoError(t, err)
		assert.True(t, again.ArchivedAt().Equal(archiveAt))
	})
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx, _, _ := testutil.Context(testClock)

	wp, err := f.svc.CreateWorkPackage(ctx, validWorkPackage())
	require.NoError(t, err)

	otherCtx, _, _ := testutil.Context(testClock)

	testutil.Then(t, "a foreign tenant reads absence, not denial", func(t *testing.T) {
		_, err := f.svc.GetWorkPackage(otherCtx, wp.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	testutil.Then(t, "a foreign tenant cannot mutate", func(t *testing.T) {
		name := "stolen"
		_, err := f.svc.UpdateWorkPackage(otherCtx, wp.ID, UpdateWorkPackageInput{Name: &name})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	testutil.Then(t, "listing stays scoped", func(t *testing.T) {
		got, err := f.svc.ListWorkPackages(otherCtx, id.WorkPackageID(uuid.Nil), 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestEditWorkPackageWithLocationsReconciles(t *testing.T) {
	f := newFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)

	wp, err := f.svc.CreateWorkPackage(ctx, validWorkPackage())
	require.NoError(t, err)
	keepLoc, err := f.svc.CreateLocation(ctx, wp.ID, "Keep me", 1, 1)
	require.NoError(t, err)
	dropLoc, err := f.svc.CreateLocation(ctx, wp.ID, "Drop me", 2, 2)
	require.NoError(t, err)

	editAt := testClock.Add(time.Hour)
	editCtx := testutil.ContextForTenant(tenantID, editAt)
	renamed := "Keep me, renamed"
	_, err = f.svc.EditWorkPackageWithLocations(editCtx, wp.ID, UpdateWorkPackageInput{}, []LocationEdit{
		{ID: &keepLoc.ID, Name: renamed, Latitude: 1.5, Longitude: 1.5},
		{Name: "Brand new", Latitude: 3, Longitude: 3},
	})
	require.NoError(t, err)

	locs, err := f.svc.ListLocations(editCtx, wp.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(locs))
	for _, l := range locs {
		names = append(names, l.Name)
	}
	assert.ElementsMatch(t, []string{renamed, "Brand new"}, names)

	dropped, err := f.svc.GetLocation(editCtx, dropLoc.ID, store.WithArchived())
	require.NoError(t, err)
	require.NotNil(t, dropped.ArchivedAt())
	assert.True(t, dropped.ArchivedAt().Equal(editAt), "omitted locations archive at edit time")
}
