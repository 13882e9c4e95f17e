//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"worksafe/internal/risk"
	riskpostgres "worksafe/internal/risk/store/postgres"
	id "worksafe/pkg/domain"
	"worksafe/pkg/platform/sentinel"
	"worksafe/pkg/testutil"
	"worksafe/pkg/testutil/containers"
)

var metricClock = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type RiskStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *riskpostgres.Store
}

func TestRiskStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RiskStoreSuite))
}

func (s *RiskStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = riskpostgres.New(s.pg.DB)
}

func (s *RiskStoreSuite) SetupTest() {
	err := s.pg.TruncateTables(context.Background(),
		"rm_task_specific_risk_score", "rm_contractor_safety_score")
	s.Require().NoError(err)
}

func (s *RiskStoreSuite) row(entityID uuid.UUID, tenantID id.TenantID, at time.Time, value float64) risk.Row {
	return risk.Row{
		MetricName:   risk.MetricTaskSpecificRiskScore,
		EntityKind:   risk.KindTask,
		EntityID:     entityID,
		TenantID:     tenantID,
		CalculatedAt: at,
		Value:        &value,
		Inputs:       map[string]any{"hesp": 100.0, "applicable_hazards": 2.0},
		Params:       map[string]any{"hazard_weight": 0.25},
	}
}

func (s *RiskStoreSuite) TestAppendLatestAtRoundTrip() {
	ctx := context.Background()
	entityID := uuid.New()
	tenantID := id.NewTenantID()

	s.Require().NoError(s.store.Append(ctx, s.row(entityID, tenantID, metricClock, 150)))

	got, err := s.store.LatestAt(ctx, risk.MetricTaskSpecificRiskScore, entityID, metricClock)
	s.Require().NoError(err)
	s.Equal(entityID, got.EntityID)
	s.Equal(tenantID, got.TenantID)
	s.Require().NotNil(got.Value)
	s.InDelta(150, *got.Value, 1e-9)
	s.Empty(got.Reason)
	s.True(got.CalculatedAt.Equal(metricClock))
	s.Equal(100.0, got.Inputs["hesp"])
	s.Equal(0.25, got.Params["hazard_weight"])
}

func (s *RiskStoreSuite) TestLatestAtPicksNewestAtOrBeforeAsOf() {
	ctx := context.Background()
	entityID := uuid.New()
	tenantID := id.NewTenantID()

	// Append out of chronological order; the read must sort, not trust
	// insertion order.
	s.Require().NoError(s.store.Append(ctx, s.row(entityID, tenantID, metricClock.Add(2*time.Hour), 300)))
	s.Require().NoError(s.store.Append(ctx, s.row(entityID, tenantID, metricClock, 100)))
	s.Require().NoError(s.store.Append(ctx, s.row(entityID, tenantID, metricClock.Add(time.Hour), 200)))

	got, err := s.store.LatestAt(ctx, risk.MetricTaskSpecificRiskScore, entityID, metricClock.Add(90*time.Minute))
	s.Require().NoError(err)
	s.InDelta(200, *got.Value, 1e-9)

	got, err = s.store.LatestAt(ctx, risk.MetricTaskSpecificRiskScore, entityID, metricClock.Add(24*time.Hour))
	s.Require().NoError(err)
	s.InDelta(300, *got.Value, 1e-9)

	_, err = s.store.LatestAt(ctx, risk.MetricTaskSpecificRiskScore, entityID, metricClock.Add(-time.Minute))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RiskStoreSuite) TestEqualTimestampsBreakTiesOnInsertionOrder() {
	ctx := context.Background()
	entityID := uuid.New()
	tenantID := id.NewTenantID()

	s.Require().NoError(s.store.Append(ctx, s.row(entityID, tenantID, metricClock, 100)))
	s.Require().NoError(s.store.Append(ctx, s.row(entityID, tenantID, metricClock, 125)))

	got, err := s.store.LatestAt(ctx, risk.MetricTaskSpecificRiskScore, entityID, metricClock)
	s.Require().NoError(err)
	s.InDelta(125, *got.Value, 1e-9)
}

func (s *RiskStoreSuite) TestNotAvailableMarkerRoundTrip() {
	ctx := context.Background()
	entityID := uuid.New()

	marker := risk.Row{
		MetricName:   risk.MetricContractorSafetyScore,
		EntityKind:   risk.KindContractor,
		EntityID:     entityID,
		TenantID:     id.NewTenantID(),
		CalculatedAt: metricClock,
		Reason:       "contractor has no completed work packages",
	}
	s.Require().NoError(s.store.Append(ctx, marker))

	got, err := s.store.LatestAt(ctx, risk.MetricContractorSafetyScore, entityID, metricClock)
	s.Require().NoError(err)
	s.Nil(got.Value)
	s.Equal("contractor has no completed work packages", got.Reason)
}

func (s *RiskStoreSuite) TestHistoryIsNewestFirstAndBounded() {
	ctx := context.Background()
	entityID := uuid.New()
	tenantID := id.NewTenantID()

	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Append(ctx,
			s.row(entityID, tenantID, metricClock.Add(time.Duration(i)*time.Hour), float64(100+i))))
	}

	rows, err := s.store.History(ctx, risk.MetricTaskSpecificRiskScore, entityID,
		metricClock.Add(24*time.Hour), 3)
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.InDelta(104, *rows[0].Value, 1e-9)
	s.InDelta(103, *rows[1].Value, 1e-9)
	s.InDelta(102, *rows[2].Value, 1e-9)
}

func (s *RiskStoreSuite) TestReadsAreTenantScoped() {
	entityID := uuid.New()
	owner := id.NewTenantID()

	s.Require().NoError(s.store.Append(context.Background(), s.row(entityID, owner, metricClock, 87.5)))

	ownerCtx := testutil.ContextForTenant(owner, metricClock)
	got, err := s.store.LatestAt(ownerCtx, risk.MetricTaskSpecificRiskScore, entityID, metricClock)
	s.Require().NoError(err)
	s.InDelta(87.5, *got.Value, 1e-9)

	foreignCtx := testutil.ContextForTenant(id.NewTenantID(), metricClock)
	_, err = s.store.LatestAt(foreignCtx, risk.MetricTaskSpecificRiskScore, entityID, metricClock)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	rows, err := s.store.History(foreignCtx, risk.MetricTaskSpecificRiskScore, entityID, metricClock, 0)
	s.Require().NoError(err)
	s.Empty(rows)
}

func (s *RiskStoreSuite) TestUnknownMetricIsRejected() {
	ctx := context.Background()

	err := s.store.Append(ctx, risk.Row{
		MetricName:   "no_such_metric",
		EntityID:     uuid.New(),
		TenantID:     id.NewTenantID(),
		CalculatedAt: metricClock,
	})
	s.Require().Error(err)

	_, err = s.store.LatestAt(ctx, "no_such_metric", uuid.New(), metricClock)
	s.Require().Error(err)
}
