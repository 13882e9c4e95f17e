// Package redisqueue backs the trigger queue with Redis so triggers survive
// process restarts and multiple reactor nodes share one queue.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"worksafe/internal/platform/metrics"
	platformredis "worksafe/internal/platform/redis"
	"worksafe/internal/risk"
	dErrors "worksafe/pkg/domainerr"
)

const (
	listKey    = "worksafe:reactor:queue"
	payloadKey = "worksafe:reactor:payloads"
)

// Queue keeps ordering in a Redis list of (kind, entity) members and the
// trigger payloads in a hash keyed by the same member. A member already in
// the hash means the pair is waiting; overwriting its payload coalesces the
// duplicate, last write wins.
type Queue struct {
	client *platformredis.Client
	stats  *metrics.Metrics
}

// Option configures the queue.
type Option func(*Queue)

// WithMetrics reports queue depth and coalesced triggers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.stats = m }
}

func New(client *platformredis.Client, opts ...Option) *Queue {
	q := &Queue{client: client}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func member(t risk.Trigger) string {
	return string(t.Kind) + "|" + t.EntityID.String()
}

func (q *Queue) Enqueue(ctx context.Context, t risk.Trigger) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode trigger")
	}
	m := member(t)

	fresh, err := q.client.HSetNX(ctx, payloadKey, m, raw).Result()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "stage trigger payload")
	}
	if !fresh {
		// Pair already waiting; replace the payload and skip the list push.
		if err := q.client.HSet(ctx, payloadKey, m, raw).Err(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "coalesce trigger payload")
		}
		if q.stats != nil {
			q.stats.TriggersCoalesced.Inc()
		}
		return nil
	}

	depth, err := q.client.RPush(ctx, listKey, m).Result()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "enqueue trigger")
	}
	if q.stats != nil {
		q.stats.ReactorQueueDepth.Set(float64(depth))
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*risk.Trigger, error) {
	res, err := q.client.BLPop(ctx, wait, listKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "dequeue trigger")
	}
	// BLPop returns [key, member].
	m := res[1]

	// Take the payload and its hash slot in one step. A separate HGET then
	// HDEL would leave a window where a coalescing HSET lands between the
	// two and its payload is deleted without ever being delivered.
	raw, err := takeScript.Run(ctx, q.client, []string{payloadKey}, m).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "take trigger payload")
	}

	if q.stats != nil {
		if depth, err := q.client.LLen(ctx, listKey).Result(); err == nil {
			q.stats.ReactorQueueDepth.Set(float64(depth))
		}
	}

	var t risk.Trigger
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode trigger")
	}
	return &t, nil
}

var takeScript = redis.NewScript(`
local raw = redis.call("HGET", KEYS[1], ARGV[1])
if raw then
	redis.call("HDEL", KEYS[1], ARGV[1])
end
return raw`)

func (q *Queue) Depth(ctx context.Context) (int, error) {
	depth, err := q.client.LLen(ctx, listKey).Result()
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read queue depth")
	}
	return int(depth), nil
}
