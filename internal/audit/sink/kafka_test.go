package sink

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worksafe/internal/audit"
	"worksafe/internal/entity"
	id "worksafe/pkg/domain"
	"worksafe/pkg/platform/circuit"
	"worksafe/pkg/requestcontext"
)

func TestEnvelopeCarriesEventAndDiffs(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	objectID := uuid.New()
	event := &audit.Event{
		ID:       id.NewAuditEventID(),
		Type:     audit.EventWorkPackageUpdated,
		TenantID: id.NewTenantID(),
		Actor: requestcontext.Actor{
			UserID: id.NewUserID(),
			Name:   "jordan",
			Source: "user",
		},
		RequestID: "req-1",
		CreatedAt: at,
		Diffs: []audit.Diff{{
			ObjectType: entity.TypeWorkPackage,
			ObjectID:   objectID,
			Type:       audit.DiffUpdated,
			OldValues:  json.RawMessage(`{"name":"before"}`),
			NewValues:  json.RawMessage(`{"name":"after"}`),
		}},
	}

	env := toEnvelope(event)

	assert.Equal(t, event.ID.String(), env.ID)
	assert.Equal(t, "work-package-updated", env.Type)
	assert.Equal(t, event.TenantID.String(), env.TenantID)
	assert.Equal(t, event.Actor.UserID.String(), env.ActorID)
	assert.Equal(t, "jordan", env.ActorName)
	assert.Equal(t, "req-1", env.RequestID)
	require.Len(t, env.Diffs, 1)
	assert.Equal(t, "work_package", env.Diffs[0].ObjectType)
	assert.Equal(t, objectID.String(), env.Diffs[0].ObjectID)
	assert.JSONEq(t, `{"name":"before"}`, string(env.Diffs[0].OldValues))
	assert.JSONEq(t, `{"name":"after"}`, string(env.Diffs[0].NewValues))

	// The envelope must round-trip through JSON without losing raw diffs.
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var back envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, env.ID, back.ID)
	assert.JSONEq(t, string(env.Diffs[0].NewValues), string(back.Diffs[0].NewValues))
}

func TestEnvelopeOmitsSystemActorID(t *testing.T) {
	event := &audit.Event{
		ID:       id.NewAuditEventID(),
		Type:     audit.EventSystemMigration,
		TenantID: id.NewTenantID(),
		Actor:    requestcontext.SystemActor("risk-reactor"),
		Diffs: []audit.Diff{{
			ObjectType: entity.TypeTask,
			ObjectID:   uuid.New(),
			Type:       audit.DiffCreated,
		}},
	}

	raw, err := json.Marshal(toEnvelope(event))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "actor_id")
	assert.Equal(t, "risk-reactor", decoded["actor_name"])
}

func TestProbeLetsEveryNthShedEventThrough(t *testing.T) {
	k := &Kafka{breaker: circuit.New("kafka-audit")}

	var allowed int
	for i := 0; i < 3*probeInterval; i++ {
		if k.probe() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}
