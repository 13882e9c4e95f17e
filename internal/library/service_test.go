package library

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
)

func TestListForTenantGatesOnSettings(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()
	tenantA := id.NewTenantID()
	tenantB := id.NewTenantID()

	enabled, err := svc.CreateRow(ctx, KindHazard, "Arc flash", "electrical", nil)
	require.NoError(t, err)
	hidden, err := svc.CreateRow(ctx, KindHazard, "Confined space", "atmosphere", nil)
	require.NoError(t, err)
	_, err = svc.CreateRow(ctx, KindTask, "Cable pull", "", nil)
	require.NoError(t, err)

	require.NoError(t, svc.EnableForTenant(ctx, tenantA, enabled.ID, true))

	rows, err := svc.ListForTenant(ctx, tenantA, KindHazard)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Arc flash", rows[0].Name)

	t.Run("an unconfigured tenant sees nothing", func(t *testing.T) {
		rows, err := svc.ListForTenant(ctx, tenantB, KindHazard)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("disabling removes the row from the view", func(t *testing.T) {
		require.NoError(t, svc.EnableForTenant(ctx, tenantA, enabled.ID, false))
		rows, err := svc.ListForTenant(ctx, tenantA, KindHazard)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("settings never leak rows of another kind", func(t *testing.T) {
		require.NoError(t, svc.EnableForTenant(ctx, tenantA, hidden.ID, true))
		rows, err := svc.ListForTenant(ctx, tenantA, KindTask)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestArchiveRowKeepsReferencesResolvable(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()
	tenantID := id.NewTenantID()

	row, err := svc.CreateRow(ctx, KindTask, "Directional bore", "", map[string]any{"hesp": 180.0})
	require.NoError(t, err)
	require.NoError(t, svc.EnableForTenant(ctx, tenantID, row.ID, true))

	at := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	archived, err := svc.ArchiveRow(ctx, row.ID, at)
	require.NoError(t, err)
	require.NotNil(t, archived.ArchivedAt)

	testArchived := func(t *testing.T) {
		rows, err := svc.ListForTenant(ctx, tenantID, KindTask)
		require.NoError(t, err)
		assert.Empty(t, rows, "archived rows drop out of tenant listings")

		got, err := svc.Get(ctx, row.ID)
		require.NoError(t, err, "stored references still resolve")
		assert.Equal(t, 180.0, got.Attributes["hesp"])
	}
	t.Run("after archive", testArchived)

	t.Run("archiving twice is a conflict", func(t *testing.T) {
		_, err := svc.ArchiveRow(ctx, row.ID, at.Add(time.Hour))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestRowValidation(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	_, err := svc.CreateRow(ctx, Kind("gadget"), "x", "", nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = svc.CreateRow(ctx, KindControl, "  ", "", nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = svc.EnableForTenant(ctx, id.NewTenantID(), id.NewLibraryRowID(), true)
	require.Error(t, err)
}
