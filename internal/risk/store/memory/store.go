// Package memory is the in-process metric row store used by tests and
// single-node deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/risk"
	"worksafe/pkg/platform/sentinel"
	"worksafe/pkg/requestcontext"
)

type key struct {
	metric   string
	entityID uuid.UUID
}

// Store keeps append-only metric rows ordered by calculated_at per
// (metric, entity) series.
type Store struct {
	mu   sync.RWMutex
	rows map[key][]risk.Row
}

func New() *Store {
	return &Store{rows: make(map[key][]risk.Row)}
}

func (s *Store) Append(_ context.Context, row risk.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{metric: row.MetricName, entityID: row.EntityID}
	series := append(s.rows[k], row)
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].CalculatedAt.Before(series[j].CalculatedAt)
	})
	s.rows[k] = series
	return nil
}

func (s *Store) LatestAt(ctx context.Context, metricName string, entityID uuid.UUID, asOf time.Time) (*risk.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.rows[key{metric: metricName, entityID: entityID}]
	for i := len(series) - 1; i >= 0; i-- {
		if !visible(ctx, series[i]) {
			continue
		}
		if !series[i].CalculatedAt.After(asOf) {
			row := cloneRow(series[i])
			return &row, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// History returns every row of a series at or before asOf, newest first.
// The explain engine uses it to walk recalculation history.
func (s *Store) History(ctx context.Context, metricName string, entityID uuid.UUID, asOf time.Time, limit int) ([]risk.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.rows[key{metric: metricName, entityID: entityID}]
	out := make([]risk.Row, 0, len(series))
	for i := len(series) - 1; i >= 0; i-- {
		if !visible(ctx, series[i]) {
			continue
		}
		if series[i].CalculatedAt.After(asOf) {
			continue
		}
		out = append(out, cloneRow(series[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// visible hides rows of other tenants; they are indistinguishable from
// absent rows. A context without a tenant (admin tooling) sees everything.
func visible(ctx context.Context, row risk.Row) bool {
	caller := requestcontext.TenantID(ctx)
	return caller.IsNil() || caller == row.TenantID
}

func cloneRow(row risk.Row) risk.Row {
	out := row
	if row.Value != nil {
		v := *row.Value
		out.Value = &v
	}
	out.Inputs = cloneMap(row.Inputs)
	out.Params = cloneMap(row.Params)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
