package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worksafe/internal/risk"
	riskmemory "worksafe/internal/risk/store/memory"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/requestcontext"
)

func floatPtr(v float64) *float64 { return &v }

func TestExplainWalksStoredProvenance(t *testing.T) {
	store := riskmemory.New()
	ctx := context.Background()
	tenantID := id.NewTenantID()
	taskID := uuid.New()
	locID := uuid.New()
	at := time.Date(2026, time.March, 10, 3, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, risk.Row{
		MetricName:   risk.MetricTaskSpecificRiskScore,
		EntityKind:   risk.KindTask,
		EntityID:     taskID,
		TenantID:     tenantID,
		CalculatedAt: at,
		Value:        floatPtr(250),
		Inputs:       map[string]any{"hesp": 200.0, "applicable_hazards": 1},
	}))
	require.NoError(t, store.Append(ctx, risk.Row{
		MetricName:   risk.MetricTotalProjectLocationRiskScore,
		EntityKind:   risk.KindLocation,
		EntityID:     locID,
		TenantID:     tenantID,
		CalculatedAt: at,
		Value:        floatPtr(250),
		Inputs: map[string]any{
			"task_count": 1,
			"dependencies": map[string]any{
				taskID.String(): map[string]any{
					"metric":        risk.MetricTaskSpecificRiskScore,
					"entity_id":     taskID.String(),
					"value":         250.0,
					"calculated_at": at,
				},
			},
		},
	}))

	explainer := risk.NewExplainer(store)

	t.Run("shallow explain returns the row alone", func(t *testing.T) {
		got, err := explainer.Explain(ctx, risk.MetricTotalProjectLocationRiskScore, locID, at.Add(time.Hour), false)
		require.NoError(t, err)
		assert.Equal(t, risk.MetricTotalProjectLocationRiskScore, got.Metric)
		require.NotNil(t, got.Value)
		assert.Equal(t, 250.0, *got.Value)
		assert.Empty(t, got.Dependencies)
	})

	t.Run("verbose explain resolves the dependency tree", func(t *testing.T) {
		got, err := explainer.Explain(ctx, risk.MetricTotalProjectLocationRiskScore, locID, at.Add(time.Hour), true)
		require.NoError(t, err)
		require.Len(t, got.Dependencies, 1)
		dep := got.Dependencies[0]
		assert.Equal(t, risk.MetricTaskSpecificRiskScore, dep.Metric)
		assert.Equal(t, taskID, dep.EntityID)
		require.NotNil(t, dep.Value)
		assert.Equal(t, 250.0, *dep.Value)
		assert.Equal(t, 200.0, dep.Inputs["hesp"])
	})

	t.Run("a dependency row purged from storage is reported, not fatal", func(t *testing.T) {
		orphanLoc := uuid.New()
		require.NoError(t, store.Append(ctx, risk.Row{
			MetricName:   risk.MetricTotalProjectLocationRiskScore,
			EntityKind:   risk.KindLocation,
			EntityID:     orphanLoc,
			TenantID:     tenantID,
			CalculatedAt: at,
			Value:        floatPtr(99),
			Inputs: map[string]any{
				"dependencies": map[string]any{
					uuid.NewString(): map[string]any{
						"metric":    risk.MetricTaskSpecificRiskScore,
						"entity_id": uuid.NewString(),
						"value":     99.0,
					},
				},
			},
		}))
		got, err := explainer.Explain(ctx, risk.MetricTotalProjectLocationRiskScore, orphanLoc, at.Add(time.Hour), true)
		require.NoError(t, err)
		assert.Empty(t, got.Dependencies)
		assert.NotEmpty(t, got.Errors)
	})
}

func TestExplainIsTenantScoped(t *testing.T) {
	store := riskmemory.New()
	taskID := uuid.New()
	ownerID := id.NewTenantID()
	at := time.Date(2026, time.March, 10, 3, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(context.Background(), risk.Row{
		MetricName:   risk.MetricTaskSpecificRiskScore,
		EntityKind:   risk.KindTask,
		EntityID:     taskID,
		TenantID:     ownerID,
		CalculatedAt: at,
		Value:        floatPtr(87.5),
		Inputs:       map[string]any{"hesp": 100.0},
	}))

	explainer := risk.NewExplainer(store)

	ownerCtx := requestcontext.WithTenantID(context.Background(), ownerID)
	got, err := explainer.Explain(ownerCtx, risk.MetricTaskSpecificRiskScore, taskID, at, false)
	require.NoError(t, err)
	assert.Equal(t, 87.5, *got.Value)

	// Another tenant holding the entity id learns nothing, not even that
	// the series exists.
	foreignCtx := requestcontext.WithTenantID(context.Background(), id.NewTenantID())
	_, err = explainer.Explain(foreignCtx, risk.MetricTaskSpecificRiskScore, taskID, at, true)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestExplainUnknownMetricAndMissingRow(t *testing.T) {
	explainer := risk.NewExplainer(riskmemory.New())
	ctx := context.Background()

	_, err := explainer.Explain(ctx, "made_up_metric", uuid.New(), time.Now(), false)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = explainer.Explain(ctx, risk.MetricTaskSpecificRiskScore, uuid.New(), time.Now(), false)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
