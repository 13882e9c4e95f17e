package risk

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/entity/store"
	"worksafe/internal/library"
	id "worksafe/pkg/domain"
	"worksafe/pkg/platform/sentinel"
)

// Env is everything a compute function may touch: entity reads, stored
// metric rows, the library catalog and tenant params. Compute functions are
// pure given an Env and never write entity state.
type Env struct {
	Reader  store.Reader
	Metrics Store
	Library *library.Service
	Params  Params
}

// Params resolves tenant-scoped calculation constants. Absent overrides
// fall back to the engine defaults.
type Params interface {
	For(ctx context.Context, tenantID id.TenantID, metric string) map[string]any
}

// StaticParams is the default Params source: engine defaults plus optional
// per-tenant overrides loaded at startup.
type StaticParams struct {
	Defaults  map[string]map[string]any
	Overrides map[id.TenantID]map[string]map[string]any
}

func (p *StaticParams) For(_ context.Context, tenantID id.TenantID, metric string) map[string]any {
	out := map[string]any{}
	for k, v := range p.Defaults[metric] {
		out[k] = v
	}
	if byMetric, ok := p.Overrides[tenantID]; ok {
		for k, v := range byMetric[metric] {
			out[k] = v
		}
	}
	return out
}

// DefaultParams carries the stock calculation constants.
func DefaultParams() *StaticParams {
	return &StaticParams{
		Defaults: map[string]map[string]any{
			MetricContractorSafetyScore: {
				"weight_history":   0.5,
				"weight_execution": 0.3,
				"weight_rating":    0.2,
			},
			MetricSupervisorEngagementFactor: {
				"baseline": 10.0,
			},
			MetricTaskSpecificRiskScore: {
				"hazard_factor": 0.25,
			},
		},
	}
}

// requireLatest loads a dependency row or converts absence into the typed
// missing-dependency failure the reactor reacts to.
func (e *Env) requireLatest(ctx context.Context, metric string, kind Kind, entityID uuid.UUID, asOf time.Time) (*Row, error) {
	row, err := e.Metrics.LatestAt(ctx, metric, entityID, asOf)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, &MissingDependencyError{Metric: metric, EntityKind: kind, EntityID: entityID}
		}
		return nil, err
	}
	if row.Value == nil {
		return nil, &NotAvailableError{Reason: "dependency " + metric + " is not available"}
	}
	return row, nil
}

func paramFloat(params map[string]any, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}
