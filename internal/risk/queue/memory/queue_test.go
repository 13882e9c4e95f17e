package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worksafe/internal/risk"
	id "worksafe/pkg/domain"
)

func trigger(kind risk.TriggerKind, entityID uuid.UUID, at time.Time) risk.Trigger {
	return risk.Trigger{
		Kind:       kind,
		TenantID:   id.TenantID(uuid.MustParse("4fd00f00-0000-0000-0000-000000000001")),
		EntityID:   entityID,
		EnqueuedAt: at,
	}
}

func TestQueueIsFIFO(t *testing.T) {
	q := New()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, trigger(risk.TriggerTaskChanged, a, now)))
	require.NoError(t, q.Enqueue(ctx, trigger(risk.TriggerLocationChanged, b, now)))

	first, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, a, first.EntityID)

	second, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, b, second.EntityID)
}

func TestEnqueueCoalescesSameKindAndEntity(t *testing.T) {
	q := New()
	ctx := context.Background()
	entityID := uuid.New()
	base := time.Now()

	require.NoError(t, q.Enqueue(ctx, trigger(risk.TriggerTaskChanged, entityID, base)))
	require.NoError(t, q.Enqueue(ctx, trigger(risk.TriggerTaskChanged, entityID, base.Add(time.Second))))
	require.NoError(t, q.Enqueue(ctx, trigger(risk.TriggerTaskChanged, entityID, base.Add(2*time.Second))))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.EnqueuedAt.Equal(base.Add(2*time.Second)), "last write wins")

	testEmpty(t, q)
}

func TestDifferentKindsDoNotCoalesce(t *testing.T) {
	q := New()
	ctx := context.Background()
	entityID := uuid.New()
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, trigger(risk.TriggerTaskChanged, entityID, now)))
	require.NoError(t, q.Enqueue(ctx, trigger(risk.TriggerLocationChanged, entityID, now)))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

func TestDequeueTimesOutEmpty(t *testing.T) {
	q := New()
	got, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDequeueHonorsCancellation(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	q := New()
	ctx := context.Background()
	entityID := uuid.New()

	done := make(chan *risk.Trigger, 1)
	go func() {
		got, _ := q.Dequeue(ctx, 5*time.Second)
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, trigger(risk.TriggerTaskChanged, entityID, time.Now())))

	select {
	case got := <-done:
		require.NotNil(t, got)
		assert.Equal(t, entityID, got.EntityID)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake on enqueue")
	}
}

func testEmpty(t *testing.T, q *Queue) {
	t.Helper()
	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Zero(t, depth)
}
