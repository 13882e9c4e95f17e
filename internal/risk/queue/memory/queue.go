// Package memory is the in-process trigger queue used by tests and
// single-node deployments without Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/platform/metrics"
	"worksafe/internal/risk"
)

type itemKey struct {
	kind     risk.TriggerKind
	entityID uuid.UUID
}

// Queue is a FIFO of triggers with last-write-wins coalescing: a trigger
// for a (kind, entity) pair already waiting replaces the pending payload
// instead of queueing a second computation of the same work.
type Queue struct {
	mu      sync.Mutex
	order   []itemKey
	pending map[itemKey]risk.Trigger
	wake    chan struct{}
	stats   *metrics.Metrics
}

// Option configures the queue.
type Option func(*Queue)

// WithMetrics reports queue depth and coalesced triggers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.stats = m }
}

func New(opts ...Option) *Queue {
	q := &Queue{
		pending: make(map[itemKey]risk.Trigger),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Enqueue(_ context.Context, t risk.Trigger) error {
	k := itemKey{kind: t.Kind, entityID: t.EntityID}

	q.mu.Lock()
	_, waiting := q.pending[k]
	q.pending[k] = t
	if !waiting {
		q.order = append(q.order, k)
	}
	depth := len(q.order)
	q.mu.Unlock()

	if q.stats != nil {
		if waiting {
			q.stats.TriggersCoalesced.Inc()
		}
		q.stats.ReactorQueueDepth.Set(float64(depth))
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*risk.Trigger, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	for {
		if t, ok := q.pop(); ok {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-q.wake:
		}
	}
}

func (q *Queue) pop() (*risk.Trigger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return nil, false
	}
	k := q.order[0]
	q.order = q.order[1:]
	t := q.pending[k]
	delete(q.pending, k)
	if q.stats != nil {
		q.stats.ReactorQueueDepth.Set(float64(len(q.order)))
	}
	return &t, true
}

func (q *Queue) Depth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order), nil
}
