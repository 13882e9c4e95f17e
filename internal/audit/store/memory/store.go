// Package memory implements the audit store against process memory,
// joining the entity memory store's staging transaction so events publish
// atomically with the rows they describe.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"worksafe/internal/audit"
	"worksafe/internal/entity"
	entitymemory "worksafe/internal/entity/store/memory"
	id "worksafe/pkg/domain"
	"worksafe/pkg/platform/sentinel"
)

// Store holds committed audit events in order of arrival.
type Store struct {
	backend *entitymemory.Store

	mu     sync.RWMutex
	events []audit.Event
}

// New builds an audit store that publishes through backend's transactions.
func New(backend *entitymemory.Store) *Store {
	return &Store{backend: backend}
}

// Append stages the event on the session transaction when one is present,
// otherwise publishes immediately. The retention sweep and system writers
// run outside a session.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	cp := cloneEvent(event)
	err := s.backend.OnCommit(ctx, func() {
		s.publish(cp)
	})
	if errors.Is(err, sentinel.ErrInvalidState) {
		s.publish(cp)
		return nil
	}
	return err
}

func (s *Store) publish(ev audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// ListForObject returns events touching ref, newest first.
func (s *Store) ListForObject(ctx context.Context, tenantID id.TenantID, ref entity.Ref, q audit.ListQuery) ([]audit.Event, error) {
	return s.ListForObjects(ctx, tenantID, []entity.Ref{ref}, q)
}

// ListForObjects returns events touching any of refs, newest first.
func (s *Store) ListForObjects(_ context.Context, tenantID id.TenantID, refs []entity.Ref, q audit.ListQuery) ([]audit.Event, error) {
	want := make(map[entity.Ref]struct{}, len(refs))
	for _, r := range refs {
		want[r] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for i := range s.events {
		ev := s.events[i]
		if ev.TenantID != tenantID {
			continue
		}
		if !q.IncludeEvaluated && ev.Type.IsEvaluated() {
			continue
		}
		if !q.Since.IsZero() && ev.CreatedAt.Before(q.Since) {
			continue
		}
		if !touchesAny(ev, want) {
			continue
		}
		out = append(out, cloneEvent(&ev))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// DeleteOlderThan drops events created before cutoff.
func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var removed int64
	for i := range s.events {
		if s.events[i].CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, s.events[i])
	}
	s.events = kept
	return removed, nil
}

func touchesAny(ev audit.Event, want map[entity.Ref]struct{}) bool {
	for _, d := range ev.Diffs {
		if _, ok := want[entity.Ref{Type: d.ObjectType, ID: d.ObjectID}]; ok {
			return true
		}
	}
	return false
}

func cloneEvent(ev *audit.Event) audit.Event {
	cp := *ev
	cp.Diffs = make([]audit.Diff, len(ev.Diffs))
	copy(cp.Diffs, ev.Diffs)
	return cp
}
