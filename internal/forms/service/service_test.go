package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worksafe/internal/audit"
	auditmemory "worksafe/internal/audit/store/memory"
	entitymemory "worksafe/internal/entity/store/memory"
	"worksafe/internal/forms/models"
	"worksafe/internal/registry"
	worksiteservice "worksafe/internal/worksite/service"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/testutil"
)

var testClock = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	forms    *Service
	worksite *worksiteservice.Service
	audits   *auditmemory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	mem := entitymemory.New(reg)
	audits := auditmemory.New(mem)
	return &fixture{
		forms:    New(mem, mem, reg, audits),
		worksite: worksiteservice.New(mem, mem, reg, audits),
		audits:   audits,
	}
}

func (f *fixture) seedLocation(t *testing.T, ctx context.Context) id.LocationID {
	t.Helper()
	wp, err := f.worksite.CreateWorkPackage(ctx, worksiteservice.CreateWorkPackageInput{
		Name:      "Gas Main Replacement",
		StartDate: id.NewDate(2026, time.March, 1),
		EndDate:   id.NewDate(2026, time.June, 30),
	})
	require.NoError(t, err)
	loc, err := f.worksite.CreateLocation(ctx, wp.ID, "Block 300", 41.88, -87.63)
	require.NoError(t, err)
	return loc.ID
}

func TestFormLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx, tenantID, actor := testutil.Context(testClock)
	locID := f.seedLocation(t, ctx)

	form, err := f.forms.Create(ctx, models.FormDailyReport, locID, id.NewDate(2026, time.March, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, models.FormInProgress, form.Status)
	assert.Equal(t, actor.UserID, form.CreatedBy)

	testutil.When(t, "the form is completed", func(t *testing.T) {
		done, err := f.forms.Complete(ctx, models.FormDailyReport, form.ID)
		require.NoError(t, err)
		assert.Equal(t, models.FormComplete, done.Status)
		assert.Equal(t, actor.UserID, done.CompletedBy)
		require.Len(t, done.Completions, 1)
	})

	testutil.Then(t, "completing again is a conflict", func(t *testing.T) {
		_, err := f.forms.Complete(ctx, models.FormDailyReport, form.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	testutil.When(t, "the form is reopened", func(t *testing.T) {
		back, err := f.forms.Reopen(ctx, models.FormDailyReport, form.ID)
		require.NoError(t, err)
		assert.Equal(t, models.FormInProgress, back.Status)
		assert.Len(t, back.Completions, 1, "the completion log survives reopen")
	})

	testutil.Then(t, "reopening an in-progress form is a conflict", func(t *testing.T) {
		_, err := f.forms.Reopen(ctx, models.FormDailyReport, form.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	testutil.Then(t, "the trail records create, complete and reopen", func(t *testing.T) {
		events, err := f.audits.ListForObject(ctx, tenantID, form.Ref(), audit.ListQuery{})
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, audit.EventType("daily-report-reopened"), events[0].Type)
		assert.Equal(t, audit.EventType("daily-report-completed"), events[1].Type)
		assert.Equal(t, audit.EventType("daily-report-created"), events[2].Type)
	})
}

func TestUpdateContentsRecordsReversiblePatches(t *testing.T) {
	f := newFixture(t)
	ctx, tenantID, _ := testutil.Context(testClock)
	locID := f.seedLocation(t, ctx)

	before := json.RawMessage(`{"additional_information":"clear skies","crew":{"n_welders":2}}`)
	form, err := f.forms.Create(ctx, models.FormDailyReport, locID, id.NewDate(2026, time.March, 10), before)
	require.NoError(t, err)

	after := json.RawMessage(`{"additional_information":"rain delay","crew":{"n_welders":2,"n_operators":1}}`)
	_, err = f.forms.UpdateContents(ctx, models.FormDailyReport, form.ID, after)
	require.NoError(t, err)

	events, err := f.audits.ListForObject(ctx, tenantID, form.Ref(), audit.ListQuery{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	var diff audit.Diff
	require.Len(t, events[0].Diffs, 1)
	diff = events[0].Diffs[0]

	var oldCols, newCols map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(diff.OldValues, &oldCols))
	require.NoError(t, json.Unmarshal(diff.NewValues, &newCols))

	testutil.Then(t, "the forward patch rebuilds the new document", func(t *testing.T) {
		p, err := jsonpatch.DecodePatch(newCols["contents"])
		require.NoError(t, err)
		got, err := p.Apply(before)
		require.NoError(t, err)
		assert.JSONEq(t, string(after), string(got))
	})

	testutil.Then(t, "the reverse patch restores the old document", func(t *testing.T) {
		p, err := jsonpatch.DecodePatch(oldCols["contents"])
		require.NoError(t, err)
		got, err := p.Apply(after)
		require.NoError(t, err)
		assert.JSONEq(t, string(before), string(got))
	})
}

func TestContentsValidatedAgainstLayout(t *testing.T) {
	f := newFixture(t)
	ctx, _, _ := testutil.Context(testClock)
	locID := f.seedLocation(t, ctx)

	t.Run("unknown fields rejected", func(t *testing.T) {
		_, err := f.forms.Create(ctx, models.FormDailyReport, locID,
			id.NewDate(2026, time.March, 10), json.RawMessage(`{"weather":"sunny"}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("natgrid extension rejected on plain briefing", func(t *testing.T) {
		_, err := f.forms.Create(ctx, models.FormJobSafetyBriefing, locID,
			id.NewDate(2026, time.March, 10), json.RawMessage(`{"points_of_protection":["rubber goods"]}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("natgrid variant accepts the extension", func(t *testing.T) {
		_, err := f.forms.Create(ctx, models.FormNatGridJobSafetyBriefing, locID,
			id.NewDate(2026, time.March, 10), json.RawMessage(`{"points_of_protection":["rubber goods"]}`))
		require.NoError(t, err)
	})
}

func TestOpenFormBlocksLocationArchive(t *testing.T) {
	f := newFixture(t)
	ctx, _, _ := testutil.Context(testClock)
	locID := f.seedLocation(t, ctx)

	form, err := f.forms.Create(ctx, models.FormDailyReport, locID, id.NewDate(2026, time.March, 10), nil)
	require.NoError(t, err)

	_, err = f.worksite.ArchiveLocation(ctx, locID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	field, ok := dErrors.Load(err, dErrors.FieldKey)
	require.True(t, ok)
	assert.Equal(t, "location_id", field)

	testutil.When(t, "the form is completed the archive goes through", func(t *testing.T) {
		_, err := f.forms.Complete(ctx, models.FormDailyReport, form.ID)
		require.NoError(t, err)
		_, err = f.worksite.ArchiveLocation(ctx, locID)
		require.NoError(t, err)
	})
}

func TestOpenFormBlocksWorkPackageArchiveCascade(t *testing.T) {
	f := newFixture(t)
	ctx, _, _ := testutil.Context(testClock)

	wp, err := f.worksite.CreateWorkPackage(ctx, worksiteservice.CreateWorkPackageInput{
		Name:      "Feeder Upgrade",
		StartDate: id.NewDate(2026, time.March, 1),
		EndDate:   id.NewDate(2026, time.June, 30),
	})
	require.NoError(t, err)
	loc, err := f.worksite.CreateLocation(ctx, wp.ID, "Pole 17", 41.88, -87.63)
	require.NoError(t, err)

	form, err := f.forms.Create(ctx, models.FormDailyReport, loc.ID, id.NewDate(2026, time.March, 10), nil)
	require.NoError(t, err)

	// The cascade is held to the same guard as archiving the location
	// directly.
	_, err = f.worksite.ArchiveWorkPackage(ctx, wp.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	field, ok := dErrors.Load(err, dErrors.FieldKey)
	require.True(t, ok)
	assert.Equal(t, "location_id", field)

	testutil.Then(t, "nothing was archived by the refused cascade", func(t *testing.T) {
		got, err := f.worksite.GetWorkPackage(ctx, wp.ID)
		require.NoError(t, err)
		assert.False(t, got.IsArchived())
		gotLoc, err := f.worksite.GetLocation(ctx, loc.ID)
		require.NoError(t, err)
		assert.False(t, gotLoc.IsArchived())
	})

	testutil.When(t, "an edit omits the location with the open form", func(t *testing.T) {
		_, err := f.worksite.EditWorkPackageWithLocations(ctx, wp.ID,
			worksiteservice.UpdateWorkPackageInput{}, nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	testutil.When(t, "the form is completed the cascade goes through", func(t *testing.T) {
		_, err := f.forms.Complete(ctx, models.FormDailyReport, form.ID)
		require.NoError(t, err)
		_, err = f.worksite.ArchiveWorkPackage(ctx, wp.ID)
		require.NoError(t, err)
	})
}
