// Package risk implements the explainable risk-metric engine: a registry of
// metric definitions with declared dependencies, an append-only row store,
// the reactor that turns domain triggers into ordered recomputations, and
// the explain engine that reconstructs how any stored value came to be.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "worksafe/pkg/domain"
)

// Kind is the entity kind a metric keys on.
type Kind string

const (
	KindContractor  Kind = "contractor"
	KindSupervisor  Kind = "supervisor"
	KindCrew        Kind = "crew"
	KindTask        Kind = "task"
	KindLocation    Kind = "location"
	KindWorkPackage Kind = "work_package"
	KindTenant      Kind = "tenant"
)

// Metric names. Each one maps to its own append-only table, rm_<name>.
const (
	MetricContractorSafetyHistory    = "contractor_safety_history"
	MetricContractorProjectExecution = "contractor_project_execution"
	MetricContractorSafetyRating     = "contractor_safety_rating"
	MetricContractorSafetyScore      = "contractor_safety_score"

	MetricGlobalContractorSafetyScoreAvg    = "global_contractor_safety_score_avg"
	MetricGlobalContractorSafetyScoreStdDev = "global_contractor_safety_score_stddev"

	MetricSupervisorEngagementFactor          = "supervisor_engagement_factor"
	MetricSupervisorRelativePrecursorRisk     = "supervisor_relative_precursor_risk"
	MetricGlobalSupervisorPrecursorRiskAvg    = "global_supervisor_relative_precursor_risk_avg"
	MetricGlobalSupervisorPrecursorRiskStdDev = "global_supervisor_relative_precursor_risk_stddev"

	MetricCrewRelativePrecursorRisk     = "crew_relative_precursor_risk"
	MetricGlobalCrewPrecursorRiskAvg    = "global_crew_relative_precursor_risk_avg"
	MetricGlobalCrewPrecursorRiskStdDev = "global_crew_relative_precursor_risk_stddev"

	MetricTaskSpecificRiskScore         = "task_specific_risk_score"
	MetricTotalProjectLocationRiskScore = "total_project_location_risk_score"
	MetricTotalProjectRiskScore         = "total_project_risk_score"
)

// Row is one stored calculation. Rows are append-only; a recalculation
// writes a new row and readers take the latest at or before an instant.
// A nil Value with a Reason is a marker row for a not-available outcome,
// stored so the explain engine can reconstruct history.
type Row struct {
	MetricName   string         `json:"metric_name"`
	EntityKind   Kind           `json:"entity_kind"`
	EntityID     uuid.UUID      `json:"entity_id"`
	TenantID     id.TenantID    `json:"tenant_id"`
	CalculatedAt time.Time      `json:"calculated_at"`
	Value        *float64       `json:"value"`
	Reason       string         `json:"reason,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
}

// Store is the append-only metric row store.
type Store interface {
	Append(ctx context.Context, row Row) error
	// LatestAt returns the newest row for (metric, entity) with
	// calculated_at at or before asOf, or sentinel.ErrNotFound.
	LatestAt(ctx context.Context, metricName string, entityID uuid.UUID, asOf time.Time) (*Row, error)
}

// Result is a successful computation: the value plus the realized inputs
// and active params that explain it.
type Result struct {
	Value  float64
	Inputs map[string]any
	Params map[string]any
}

// ComputeFn evaluates a metric for one entity at an instant. It returns a
// Result, a *MissingDependencyError when a dependency row does not exist
// yet, or a *NotAvailableError when the entity state forbids a value.
type ComputeFn func(ctx context.Context, env *Env, entityID uuid.UUID, asOf time.Time) (Result, error)

// Definition declares one metric: its stable name, the entity kind it keys
// on, the metrics it consumes, and its compute function.
type Definition struct {
	Name      string
	Kind      Kind
	DependsOn []string
	Compute   ComputeFn
}

// MissingDependencyError identifies a dependency row that does not exist
// yet. The reactor backfills the missing metric inline and retries; a
// branch that cannot be repaired is left to the nightly pass. Never
// surfaced to callers.
type MissingDependencyError struct {
	Metric     string
	EntityKind Kind
	EntityID   uuid.UUID
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("dependency %s not yet calculated for %s %s", e.Metric, e.EntityKind, e.EntityID)
}

// NotAvailableError marks an entity state that forbids a value, such as an
// archived work package or a date outside its window. Recorded as a marker
// row.
type NotAvailableError struct {
	Reason string
}

func (e *NotAvailableError) Error() string { return e.Reason }

// TriggerKind names a domain-level change the reactor reacts to.
type TriggerKind string

const (
	TriggerProjectChanged       TriggerKind = "project-changed"
	TriggerLocationChanged      TriggerKind = "location-changed"
	TriggerActivityChanged      TriggerKind = "activity-changed"
	TriggerTaskChanged          TriggerKind = "task-changed"
	TriggerSiteConditionChanged TriggerKind = "site-condition-changed"
	TriggerIncidentChanged      TriggerKind = "incident-changed"
	TriggerContractorChanged    TriggerKind = "contractor-changed"
	TriggerSupervisorChanged    TriggerKind = "supervisor-changed"
)

// Trigger is one (kind, entity-id) item on the reactor queue.
type Trigger struct {
	Kind       TriggerKind `json:"kind"`
	TenantID   id.TenantID `json:"tenant_id"`
	EntityID   uuid.UUID   `json:"entity_id"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// Enqueuer is the write side of the trigger queue; managers emit triggers
// through it after their audit scope commits.
type Enqueuer interface {
	Enqueue(ctx context.Context, t Trigger) error
}

// Queue is the reactor's trigger FIFO. Dequeue blocks up to wait and
// returns nil when nothing arrived.
type Queue interface {
	Enqueuer
	Dequeue(ctx context.Context, wait time.Duration) (*Trigger, error)
	Depth(ctx context.Context) (int, error)
}
