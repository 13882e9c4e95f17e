package risk_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmemory "worksafe/internal/audit/store/memory"
	entitymemory "worksafe/internal/entity/store/memory"
	"worksafe/internal/library"
	"worksafe/internal/registry"
	"worksafe/internal/risk"
	"worksafe/internal/risk/lock"
	queuememory "worksafe/internal/risk/queue/memory"
	riskmemory "worksafe/internal/risk/store/memory"
	"worksafe/internal/worksite/models"
	worksiteservice "worksafe/internal/worksite/service"
	id "worksafe/pkg/domain"
	"worksafe/pkg/testutil"
)

var testClock = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type engineFixture struct {
	worksite *worksiteservice.Service
	library  *library.Service
	metrics  *riskmemory.Store
	reactor  *risk.Reactor
	env      *risk.Env
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	mem := entitymemory.New(reg)
	audits := auditmemory.New(mem)
	metrics := riskmemory.New()
	lib := library.NewService(library.NewMemoryStore())
	env := &risk.Env{
		Reader:  mem,
		Metrics: metrics,
		Library: lib,
		Params:  risk.DefaultParams(),
	}
	return &engineFixture{
		worksite: worksiteservice.New(mem, mem, reg, audits),
		library:  lib,
		metrics:  metrics,
		reactor:  risk.NewReactor(queuememory.New(), env, lock.NewMemory()),
		env:      env,
	}
}

func TestTaskTriggerComputesDependencyChain(t *testing.T) {
	f := newEngineFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)

	wp, err := f.worksite.CreateWorkPackage(ctx, worksiteservice.CreateWorkPackageInput{
		Name:      "Feeder 88 Upgrade",
		StartDate: id.NewDate(2026, time.January, 1),
		EndDate:   id.NewDate(2026, time.December, 31),
	})
	require.NoError(t, err)
	loc, err := f.worksite.CreateLocation(ctx, wp.ID, "Pole 14", 0, 0)
	require.NoError(t, err)
	act, err := f.worksite.CreateActivity(ctx, worksiteservice.CreateActivityInput{
		LocationID: loc.ID,
		Name:       "Conductor pull",
		StartDate:  id.NewDate(2026, time.February, 1),
		EndDate:    id.NewDate(2026, time.November, 30),
	})
	require.NoError(t, err)

	highRow, err := f.library.CreateRow(ctx, library.KindTask, "Energized crossing", "", map[string]any{"hesp": 200.0})
	require.NoError(t, err)
	plainRow, err := f.library.CreateRow(ctx, library.KindTask, "Ground survey", "", nil)
	require.NoError(t, err)

	highTask, err := f.worksite.CreateTask(ctx, act.ID, highRow.ID, []worksiteservice.HazardInput{
		{LibraryID: id.NewLibraryRowID(), Applicable: true},
		{LibraryID: id.NewLibraryRowID(), Applicable: false},
	})
	require.NoError(t, err)
	plainTask, err := f.worksite.CreateTask(ctx, act.ID, plainRow.ID, nil)
	require.NoError(t, err)

	f.reactor.Process(ctx, risk.Trigger{
		Kind:       risk.TriggerTaskChanged,
		TenantID:   tenantID,
		EntityID:   uuid.UUID(highTask.ID),
		EnqueuedAt: testClock,
	})

	asOf := time.Now().UTC().Add(time.Minute)

	testutil.Then(t, "the task score applies the hazard factor to applicable hazards only", func(t *testing.T) {
		row, err := f.metrics.LatestAt(ctx, risk.MetricTaskSpecificRiskScore, uuid.UUID(highTask.ID), asOf)
		require.NoError(t, err)
		require.NotNil(t, row.Value)
		assert.InDelta(t, 250, *row.Value, 1e-9) // 200 * (1 + 0.25*1)
		assert.Equal(t, float64(200), row.Inputs["hesp"])
	})

	testutil.Then(t, "the sibling task was backfilled inline", func(t *testing.T) {
		row, err := f.metrics.LatestAt(ctx, risk.MetricTaskSpecificRiskScore, uuid.UUID(plainTask.ID), asOf)
		require.NoError(t, err)
		require.NotNil(t, row.Value)
		assert.InDelta(t, 100, *row.Value, 1e-9) // default base, no hazards
	})

	testutil.Then(t, "the location score sums its live tasks", func(t *testing.T) {
		row, err := f.metrics.LatestAt(ctx, risk.MetricTotalProjectLocationRiskScore, uuid.UUID(loc.ID), asOf)
		require.NoError(t, err)
		require.NotNil(t, row.Value)
		assert.InDelta(t, 350, *row.Value, 1e-9)

		deps, ok := row.Inputs["dependencies"].(map[string]any)
		require.True(t, ok)
		assert.Len(t, deps, 2)
	})

	testutil.Then(t, "the project score consumes the stored location row", func(t *testing.T) {
		row, err := f.metrics.LatestAt(ctx, risk.MetricTotalProjectRiskScore, uuid.UUID(wp.ID), asOf)
		require.NoError(t, err)
		require.NotNil(t, row.Value)
		assert.InDelta(t, 350, *row.Value, 1e-9)

		deps, ok := row.Inputs["dependencies"].(map[string]any)
		require.True(t, ok)
		ref, ok := deps[uuid.UUID(loc.ID).String()].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, risk.MetricTotalProjectLocationRiskScore, ref["metric"])
		assert.Equal(t, float64(350), ref["value"])
	})
}

func TestDependencyRowsAreStampedStrictlyEarlier(t *testing.T) {
	f := newEngineFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)

	wp, err := f.worksite.CreateWorkPackage(ctx, worksiteservice.CreateWorkPackageInput{
		Name:      "Substation rebuild",
		StartDate: id.NewDate(2026, time.January, 1),
		EndDate:   id.NewDate(2026, time.December, 31),
	})
	require.NoError(t, err)
	loc, err := f.worksite.CreateLocation(ctx, wp.ID, "Bay 2", 0, 0)
	require.NoError(t, err)
	act, err := f.worksite.CreateActivity(ctx, worksiteservice.CreateActivityInput{
		LocationID: loc.ID,
		Name:       "Bus work",
		StartDate:  id.NewDate(2026, time.February, 1),
		EndDate:    id.NewDate(2026, time.November, 30),
	})
	require.NoError(t, err)
	rowDef, err := f.library.CreateRow(ctx, library.KindTask, "Switching", "", nil)
	require.NoError(t, err)
	task, err := f.worksite.CreateTask(ctx, act.ID, rowDef.ID, nil)
	require.NoError(t, err)

	f.reactor.Process(ctx, risk.Trigger{
		Kind:       risk.TriggerTaskChanged,
		TenantID:   tenantID,
		EntityID:   uuid.UUID(task.ID),
		EnqueuedAt: testClock,
	})

	asOf := time.Now().UTC().Add(time.Minute)
	taskRow, err := f.metrics.LatestAt(ctx, risk.MetricTaskSpecificRiskScore, uuid.UUID(task.ID), asOf)
	require.NoError(t, err)
	locRow, err := f.metrics.LatestAt(ctx, risk.MetricTotalProjectLocationRiskScore, uuid.UUID(loc.ID), asOf)
	require.NoError(t, err)
	wpRow, err := f.metrics.LatestAt(ctx, risk.MetricTotalProjectRiskScore, uuid.UUID(wp.ID), asOf)
	require.NoError(t, err)

	assert.True(t, taskRow.CalculatedAt.Before(locRow.CalculatedAt),
		"task row %v not before location row %v", taskRow.CalculatedAt, locRow.CalculatedAt)
	assert.True(t, locRow.CalculatedAt.Before(wpRow.CalculatedAt),
		"location row %v not before project row %v", locRow.CalculatedAt, wpRow.CalculatedAt)
}

func TestProjectScoreOutsideWindowIsNotAvailable(t *testing.T) {
	f := newEngineFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)

	// A window entirely in the past relative to the reactor's wall clock.
	wp, err := f.worksite.CreateWorkPackage(ctx, worksiteservice.CreateWorkPackageInput{
		Name:      "Closed-out job",
		StartDate: id.NewDate(2020, time.January, 1),
		EndDate:   id.NewDate(2020, time.February, 1),
	})
	require.NoError(t, err)

	f.reactor.Process(ctx, risk.Trigger{
		Kind:       risk.TriggerProjectChanged,
		TenantID:   tenantID,
		EntityID:   uuid.UUID(wp.ID),
		EnqueuedAt: testClock,
	})

	row, err := f.metrics.LatestAt(ctx, risk.MetricTotalProjectRiskScore, uuid.UUID(wp.ID), time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Nil(t, row.Value, "a marker row records the gap")
	assert.NotEmpty(t, row.Reason)
}

func TestContractorTriggerComputesScoreFamily(t *testing.T) {
	f := newEngineFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)

	c, err := f.worksite.CreateContractor(ctx, "Mesa Linework", 80)
	require.NoError(t, err)
	sup, err := f.worksite.CreateSupervisor(ctx, "A. Chen")
	require.NoError(t, err)
	crew, err := f.worksite.CreateCrew(ctx, "Crew 3")
	require.NoError(t, err)

	wp, err := f.worksite.CreateWorkPackage(ctx, worksiteservice.CreateWorkPackageInput{
		Name:         "Storm hardening",
		StartDate:    id.NewDate(2026, time.January, 1),
		EndDate:      id.NewDate(2026, time.December, 31),
		ContractorID: c.ID,
	})
	require.NoError(t, err)
	status := models.WorkPackageCompleted
	_, err = f.worksite.UpdateWorkPackage(ctx, wp.ID, worksiteservice.UpdateWorkPackageInput{Status: &status})
	require.NoError(t, err)

	_, err = f.worksite.RecordIncident(ctx, c.ID, sup.ID, crew.ID, models.IncidentNearMiss, testClock.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = f.worksite.RecordIncident(ctx, c.ID, sup.ID, crew.ID, models.IncidentLostTime, testClock.Add(-24*time.Hour))
	require.NoError(t, err)

	f.reactor.Process(ctx, risk.Trigger{
		Kind:       risk.TriggerContractorChanged,
		TenantID:   tenantID,
		EntityID:   uuid.UUID(c.ID),
		EnqueuedAt: testClock,
	})

	asOf := time.Now().UTC().Add(time.Minute)

	history, err := f.metrics.LatestAt(ctx, risk.MetricContractorSafetyHistory, uuid.UUID(c.ID), asOf)
	require.NoError(t, err)
	require.NotNil(t, history.Value)
	assert.InDelta(t, 9, *history.Value, 1e-9) // near miss 1 + lost time 8

	execution, err := f.metrics.LatestAt(ctx, risk.MetricContractorProjectExecution, uuid.UUID(c.ID), asOf)
	require.NoError(t, err)
	require.NotNil(t, execution.Value)
	assert.InDelta(t, 100, *execution.Value, 1e-9)

	score, err := f.metrics.LatestAt(ctx, risk.MetricContractorSafetyScore, uuid.UUID(c.ID), asOf)
	require.NoError(t, err)
	require.NotNil(t, score.Value)
	// 0.5*9 + 0.3*100 + 0.2*80
	assert.InDelta(t, 50.5, *score.Value, 1e-9)

	avg, err := f.metrics.LatestAt(ctx, risk.MetricGlobalContractorSafetyScoreAvg, uuid.UUID(tenantID), asOf)
	require.NoError(t, err)
	require.NotNil(t, avg.Value)
	assert.InDelta(t, 50.5, *avg.Value, 1e-9, "single contractor average equals its score")
}

func TestContractorWithoutWorkIsMarkedNotAvailable(t *testing.T) {
	f := newEngineFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)

	c, err := f.worksite.CreateContractor(ctx, "Idle Services", 70)
	require.NoError(t, err)

	f.reactor.Process(ctx, risk.Trigger{
		Kind:       risk.TriggerContractorChanged,
		TenantID:   tenantID,
		EntityID:   uuid.UUID(c.ID),
		EnqueuedAt: testClock,
	})

	asOf := time.Now().UTC().Add(time.Minute)

	execution, err := f.metrics.LatestAt(ctx, risk.MetricContractorProjectExecution, uuid.UUID(c.ID), asOf)
	require.NoError(t, err)
	assert.Nil(t, execution.Value)

	score, err := f.metrics.LatestAt(ctx, risk.MetricContractorSafetyScore, uuid.UUID(c.ID), asOf)
	require.NoError(t, err)
	assert.Nil(t, score.Value, "the composite cannot be computed over a gap")
	assert.NotEmpty(t, score.Reason)
}
