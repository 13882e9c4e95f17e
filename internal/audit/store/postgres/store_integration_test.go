//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"worksafe/internal/audit"
	auditpostgres "worksafe/internal/audit/store/postgres"
	"worksafe/internal/entity"
	id "worksafe/pkg/domain"
	"worksafe/pkg/requestcontext"
	"worksafe/pkg/testutil/containers"
)

var auditClock = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type AuditStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *auditpostgres.Store
}

func TestAuditStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = auditpostgres.New(s.pg.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	err := s.pg.TruncateTables(context.Background(), "audit_events")
	s.Require().NoError(err)
}

func (s *AuditStoreSuite) newEvent(tenantID id.TenantID, eventType audit.EventType, at time.Time, refs ...entity.Ref) *audit.Event {
	s.T().Helper()
	ev := &audit.Event{
		ID:       id.NewAuditEventID(),
		Type:     eventType,
		TenantID: tenantID,
		Actor: requestcontext.Actor{
			UserID: id.NewUserID(),
			Name:   "test-actor",
			Source: "user",
		},
		RequestID: "req-" + uuid.NewString()[:8],
		CreatedAt: at,
	}
	for _, ref := range refs {
		ev.Diffs = append(ev.Diffs, audit.Diff{
			ObjectType: ref.Type,
			ObjectID:   ref.ID,
			Type:       audit.DiffUpdated,
			OldValues:  json.RawMessage(`{"name":"before"}`),
			NewValues:  json.RawMessage(`{"name":"after"}`),
			CreatedAt:  at,
		})
	}
	return ev
}

func (s *AuditStoreSuite) TestAppendAndListRoundTrip() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	ref := entity.Ref{Type: entity.TypeWorkPackage, ID: uuid.New()}

	ev := s.newEvent(tenantID, audit.EventWorkPackageUpdated, auditClock, ref)
	s.Require().NoError(s.store.Append(ctx, ev))

	events, err := s.store.ListForObject(ctx, tenantID, ref, audit.ListQuery{})
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	got := events[0]
	s.Equal(ev.ID, got.ID)
	s.Equal(audit.EventWorkPackageUpdated, got.Type)
	s.Equal(ev.Actor.UserID, got.Actor.UserID)
	s.Equal("test-actor", got.Actor.Name)
	s.Equal(ev.RequestID, got.RequestID)
	s.True(got.CreatedAt.Equal(auditClock))

	s.Require().Len(got.Diffs, 1)
	s.Equal(ref.Type, got.Diffs[0].ObjectType)
	s.Equal(ref.ID, got.Diffs[0].ObjectID)
	s.Equal(audit.DiffUpdated, got.Diffs[0].Type)
	s.JSONEq(`{"name":"before"}`, string(got.Diffs[0].OldValues))
	s.JSONEq(`{"name":"after"}`, string(got.Diffs[0].NewValues))
}

func (s *AuditStoreSuite) TestListIsNewestFirstAndHonorsSinceAndLimit() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	ref := entity.Ref{Type: entity.TypeTask, ID: uuid.New()}

	for i := 0; i < 3; i++ {
		ev := s.newEvent(tenantID, audit.TypeFor(entity.TypeTask, audit.ActionUpdated),
			auditClock.Add(time.Duration(i)*time.Hour), ref)
		s.Require().NoError(s.store.Append(ctx, ev))
	}

	events, err := s.store.ListForObject(ctx, tenantID, ref, audit.ListQuery{})
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.True(events[0].CreatedAt.After(events[1].CreatedAt))
	s.True(events[1].CreatedAt.After(events[2].CreatedAt))

	events, err = s.store.ListForObject(ctx, tenantID, ref, audit.ListQuery{
		Since: auditClock.Add(90 * time.Minute),
	})
	s.Require().NoError(err)
	s.Len(events, 1)

	events, err = s.store.ListForObject(ctx, tenantID, ref, audit.ListQuery{Limit: 2})
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *AuditStoreSuite) TestEvaluatedEventsAreSuppressedByDefault() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	ref := entity.Ref{Type: entity.TypeSiteCondition, ID: uuid.New()}

	created := s.newEvent(tenantID, audit.TypeFor(entity.TypeSiteCondition, audit.ActionCreated), auditClock, ref)
	evaluated := s.newEvent(tenantID, audit.EventSiteConditionEvaluated, auditClock.Add(time.Minute), ref)
	s.Require().NoError(s.store.Append(ctx, created))
	s.Require().NoError(s.store.Append(ctx, evaluated))

	events, err := s.store.ListForObject(ctx, tenantID, ref, audit.ListQuery{})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(created.ID, events[0].ID)

	events, err = s.store.ListForObject(ctx, tenantID, ref, audit.ListQuery{IncludeEvaluated: true})
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *AuditStoreSuite) TestListForObjectsMergesTrails() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	wpRef := entity.Ref{Type: entity.TypeWorkPackage, ID: uuid.New()}
	locRef := entity.Ref{Type: entity.TypeLocation, ID: uuid.New()}

	s.Require().NoError(s.store.Append(ctx,
		s.newEvent(tenantID, audit.EventWorkPackageCreated, auditClock, wpRef)))
	s.Require().NoError(s.store.Append(ctx,
		s.newEvent(tenantID, audit.TypeFor(entity.TypeLocation, audit.ActionCreated), auditClock.Add(time.Minute), locRef)))
	// One event touching both refs must come back once, not twice.
	s.Require().NoError(s.store.Append(ctx,
		s.newEvent(tenantID, audit.EventWorkPackageArchived, auditClock.Add(2*time.Minute), wpRef, locRef)))

	events, err := s.store.ListForObjects(ctx, tenantID,
		[]entity.Ref{wpRef, locRef}, audit.ListQuery{})
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(audit.EventWorkPackageArchived, events[0].Type)
	s.Len(events[0].Diffs, 2)
}

func (s *AuditStoreSuite) TestTrailsAreTenantScoped() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	ref := entity.Ref{Type: entity.TypeWorkPackage, ID: uuid.New()}

	s.Require().NoError(s.store.Append(ctx,
		s.newEvent(tenantID, audit.EventWorkPackageCreated, auditClock, ref)))

	events, err := s.store.ListForObject(ctx, id.NewTenantID(), ref, audit.ListQuery{})
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *AuditStoreSuite) TestDeleteOlderThanCascadesDiffs() {
	ctx := context.Background()
	tenantID := id.NewTenantID()
	ref := entity.Ref{Type: entity.TypeWorkPackage, ID: uuid.New()}

	old := s.newEvent(tenantID, audit.EventWorkPackageCreated, auditClock.AddDate(0, 0, -120), ref)
	recent := s.newEvent(tenantID, audit.EventWorkPackageUpdated, auditClock.AddDate(0, 0, -10), ref)
	s.Require().NoError(s.store.Append(ctx, old))
	s.Require().NoError(s.store.Append(ctx, recent))

	n, err := s.store.DeleteOlderThan(ctx, auditClock.AddDate(0, 0, -90))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	events, err := s.store.ListForObject(ctx, tenantID, ref, audit.ListQuery{})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(recent.ID, events[0].ID)

	var orphans int
	err = s.pg.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM audit_event_diffs WHERE event_id = $1`,
		uuid.UUID(old.ID)).Scan(&orphans)
	s.Require().NoError(err)
	s.Zero(orphans)
}
