// Package lock serializes metric computation per entity so two reactor
// workers never interleave rows of the same series.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	platformredis "worksafe/internal/platform/redis"
)

// Locker grants an exclusive lease on one entity. Acquire blocks until the
// lease is granted or ctx ends; the returned release must be called.
type Locker interface {
	Acquire(ctx context.Context, entityID uuid.UUID) (release func(), err error)
}

// Memory serializes within one process.
type Memory struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (m *Memory) Acquire(ctx context.Context, entityID uuid.UUID) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[entityID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[entityID] = l
	}
	m.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		l.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		return l.Unlock, nil
	case <-ctx.Done():
		// The goroutine still takes the lock eventually; hand it back.
		go func() {
			<-acquired
			l.Unlock()
		}()
		return nil, ctx.Err()
	}
}

// Redis leases a key per entity via SET NX with a TTL so a crashed worker
// cannot wedge the entity forever.
type Redis struct {
	client *platformredis.Client
	lease  time.Duration
	retry  time.Duration
}

func NewRedis(client *platformredis.Client) *Redis {
	return &Redis{
		client: client,
		lease:  30 * time.Second,
		retry:  50 * time.Millisecond,
	}
}

func (r *Redis) Acquire(ctx context.Context, entityID uuid.UUID) (func(), error) {
	key := "worksafe:reactor:lock:" + entityID.String()
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				// Release only our own lease; a lease that expired and was
				// re-acquired by another worker must stay.
				releaseScript.Run(context.Background(), r.client, []string{key}, token)
			}
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
