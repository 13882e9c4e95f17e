package risk

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/entity"
	"worksafe/internal/entity/store"
	"worksafe/internal/worksite/models"
	id "worksafe/pkg/domain"
)

// Catalog returns every metric definition the engine knows.
func Catalog() []Definition {
	return []Definition{
		{Name: MetricContractorSafetyHistory, Kind: KindContractor, Compute: computeContractorSafetyHistory},
		{Name: MetricContractorProjectExecution, Kind: KindContractor, Compute: computeContractorProjectExecution},
		{Name: MetricContractorSafetyRating, Kind: KindContractor, Compute: computeContractorSafetyRating},
		{
			Name: MetricContractorSafetyScore,
			Kind: KindContractor,
			DependsOn: []string{
				MetricContractorSafetyHistory,
				MetricContractorProjectExecution,
				MetricContractorSafetyRating,
			},
			Compute: computeContractorSafetyScore,
		},
		{
			Name:      MetricGlobalContractorSafetyScoreAvg,
			Kind:      KindTenant,
			DependsOn: []string{MetricContractorSafetyScore},
			Compute:   computeGlobalContractorSafetyScoreAvg,
		},
		{
			Name:      MetricGlobalContractorSafetyScoreStdDev,
			Kind:      KindTenant,
			DependsOn: []string{MetricContractorSafetyScore, MetricGlobalContractorSafetyScoreAvg},
			Compute:   computeGlobalContractorSafetyScoreStdDev,
		},

		{Name: MetricSupervisorEngagementFactor, Kind: KindSupervisor, Compute: computeSupervisorEngagementFactor},
		{Name: MetricSupervisorRelativePrecursorRisk, Kind: KindSupervisor, Compute: computeSupervisorRelativePrecursorRisk},
		{
			Name:      MetricGlobalSupervisorPrecursorRiskAvg,
			Kind:      KindTenant,
			DependsOn: []string{MetricSupervisorRelativePrecursorRisk},
			Compute:   globalAggregate(MetricSupervisorRelativePrecursorRisk, entity.TypeSupervisor, aggAvg),
		},
		{
			Name:      MetricGlobalSupervisorPrecursorRiskStdDev,
			Kind:      KindTenant,
			DependsOn: []string{MetricSupervisorRelativePrecursorRisk, MetricGlobalSupervisorPrecursorRiskAvg},
			Compute:   globalAggregate(MetricSupervisorRelativePrecursorRisk, entity.TypeSupervisor, aggStdDev),
		},

		{Name: MetricCrewRelativePrecursorRisk, Kind: KindCrew, Compute: computeCrewRelativePrecursorRisk},
		{
			Name:      MetricGlobalCrewPrecursorRiskAvg,
			Kind:      KindTenant,
			DependsOn: []string{MetricCrewRelativePrecursorRisk},
			Compute:   globalAggregate(MetricCrewRelativePrecursorRisk, entity.TypeCrew, aggAvg),
		},
		{
			Name:      MetricGlobalCrewPrecursorRiskStdDev,
			Kind:      KindTenant,
			DependsOn: []string{MetricCrewRelativePrecursorRisk, MetricGlobalCrewPrecursorRiskAvg},
			Compute:   globalAggregate(MetricCrewRelativePrecursorRisk, entity.TypeCrew, aggStdDev),
		},

		{Name: MetricTaskSpecificRiskScore, Kind: KindTask, Compute: computeTaskSpecificRiskScore},
		{
			Name:      MetricTotalProjectLocationRiskScore,
			Kind:      KindLocation,
			DependsOn: []string{MetricTaskSpecificRiskScore},
			Compute:   computeTotalProjectLocationRiskScore,
		},
		{
			Name:      MetricTotalProjectRiskScore,
			Kind:      KindWorkPackage,
			DependsOn: []string{MetricTotalProjectLocationRiskScore},
			Compute:   computeTotalProjectRiskScore,
		},
	}
}

// TriggerMetrics maps a trigger kind to the metrics it may invalidate. The
// reactor topologically sorts this set before computing.
func TriggerMetrics(kind TriggerKind) []string {
	switch kind {
	case TriggerProjectChanged:
		return []string{MetricTotalProjectRiskScore}
	case TriggerLocationChanged, TriggerActivityChanged, TriggerSiteConditionChanged:
		return []string{MetricTotalProjectLocationRiskScore, MetricTotalProjectRiskScore}
	case TriggerTaskChanged:
		return []string{
			MetricTaskSpecificRiskScore,
			MetricTotalProjectLocationRiskScore,
			MetricTotalProjectRiskScore,
		}
	case TriggerIncidentChanged:
		return []string{
			MetricContractorSafetyHistory,
			MetricContractorSafetyScore,
			MetricGlobalContractorSafetyScoreAvg,
			MetricGlobalContractorSafetyScoreStdDev,
			MetricSupervisorEngagementFactor,
			MetricSupervisorRelativePrecursorRisk,
			MetricGlobalSupervisorPrecursorRiskAvg,
			MetricGlobalSupervisorPrecursorRiskStdDev,
			MetricCrewRelativePrecursorRisk,
			MetricGlobalCrewPrecursorRiskAvg,
			MetricGlobalCrewPrecursorRiskStdDev,
		}
	case TriggerContractorChanged:
		return []string{
			MetricContractorSafetyHistory,
			MetricContractorProjectExecution,
			MetricContractorSafetyRating,
			MetricContractorSafetyScore,
			MetricGlobalContractorSafetyScoreAvg,
			MetricGlobalContractorSafetyScoreStdDev,
		}
	case TriggerSupervisorChanged:
		return []string{
			MetricSupervisorEngagementFactor,
			MetricSupervisorRelativePrecursorRisk,
			MetricGlobalSupervisorPrecursorRiskAvg,
			MetricGlobalSupervisorPrecursorRiskStdDev,
		}
	}
	return nil
}

// depRef is the provenance shape stored under inputs["dependencies"] so the
// explain engine and the monotone-dependency invariant can trace a row back
// to the exact rows it consumed.
func depRef(row *Row) map[string]any {
	return map[string]any{
		"metric":        row.MetricName,
		"entity_id":     row.EntityID.String(),
		"value":         *row.Value,
		"calculated_at": row.CalculatedAt,
	}
}

func computeContractorSafetyHistory(ctx context.Context, env *Env, entityID uuid.UUID, asOf time.Time) (Result, error) {
	incidents, err := listIncidents(ctx, env, "contractor_id", entityID)
	if err != nil {
		return Result{}, err
	}
	var sum float64
	for _, inc := range incidents {
		if inc.OccurredAt.After(asOf) {
			continue
		}
		sum += inc.Severity.SeverityWeight()
	}
	return Result{
		Value:  sum,
		Inputs: map[string]any{"incident_count": len(incidents), "severity_sum": sum},
	}, nil
}

func computeContractorProjectExecution(ctx context.Context, env *Env, entityID uuid.UUID, _ time.Time) (Result, error) {
	wps, err := env.Reader.List(ctx, store.Filter{
		Type:       entity.TypeWorkPackage,
		Conditions: map[string]any{"contractor_id": id.ContractorID(entityID)},
	})
	if err != nil {
		return Result{}, err
	}
	if len(wps) == 0 {
		return Result{}, &NotAvailableError{Reason: "contractor has no work packages"}
	}
	var completed int
	for _, rec := range wps {
		wp, ok := rec.(*models.WorkPackage)
		if ok && wp.Status == models.WorkPackageCompleted {
			completed++
		}
	}
	value := 100 * float64(completed) / float64(len(wps))
	return Result{
		Value:  value,
		Inputs: map[string]any{"work_packages": len(wps), "completed": completed},
	}, nil
}

func computeContractorSafetyRating(ctx context.Context, env *Env, entityID uuid.UUID, _ time.Time) (Result, error) {
	rec, err := env.Reader.Get(ctx, entity.Ref{Type: entity.TypeContractor, ID: entityID})
	if err != nil {
		return Result{}, &NotAvailableError{Reason: "contractor not found or archived"}
	}
	c, ok := rec.(*models.Contractor)
	if !ok {
		return Result{}, &NotAvailableError{Reason: "contractor not found or archived"}
	}
	return Result{
		Value:  c.SafetyRating,
		Inputs: map[string]any{"safety_rating": c.SafetyRating},
	}, nil
}

func computeContractorSafetyScore(ctx context.Context, env *Env, entityID uuid.UUID, asOf time.Time) (Result, error) {
	history, err := env.requireLatest(ctx, MetricContractorSafetyHistory, KindContractor, entityID, asOf)
	if err != nil {
		return Result{}, err
	}
	execution, err := env.requireLatest(ctx, MetricContractorProjectExecution, KindContractor, entityID, asOf)
	if err != nil {
		return Result{}, err
	}
	rating, err := env.requireLatest(ctx, MetricContractorSafetyRating, KindContractor, entityID, asOf)
	if err != nil {
		return Result{}, err
	}

	params := env.Params.For(ctx, history.TenantID, MetricContractorSafetyScore)
	wh := paramFloat(params, "weight_history", 0.5)
	we := paramFloat(params, "weight_execution", 0.3)
	wr := paramFloat(params, "weight_rating", 0.2)

	value := wh**history.Value + we**execution.Value + wr**rating.Value
	return Result{
		Value: value,
		Inputs: map[string]any{
			"dependencies": map[string]any{
				MetricContractorSafetyHistory:    depRef(history),
				MetricContractorProjectExecution: depRef(execution),
				MetricContractorSafetyRating:     depRef(rating),
			},
		},
		Params: params,
	}, nil
}

func computeGlobalContractorSafetyScoreAvg(ctx context.Context, env *Env, _ uuid.UUID, asOf time.Time) (Result, error) {
	values, deps, err := latestForAll(ctx, env, entity.TypeContractor, MetricContractorSafetyScore, KindContractor, asOf)
	if err != nil {
		return Result{}, err
	}
	if len(values) == 0 {
		return Result{}, &NotAvailableError{Reason: "tenant has no contractors with safety scores"}
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	return Result{
		Value:  avg,
		Inputs: map[string]any{"dependencies": deps, "contractors": len(values)},
	}, nil
}

func computeGlobalContractorSafetyScoreStdDev(ctx context.Context, env *Env, entityID uuid.UUID, asOf time.Time) (Result, error) {
	values, deps, err := latestForAll(ctx, env, entity.TypeContractor, MetricContractorSafetyScore, KindContractor, asOf)
	if err != nil {
		return Result{}, err
	}
	if len(values) == 0 {
		return Result{}, &NotAvailableError{Reason: "tenant has no contractors with safety scores"}
	}
	avgRow, err := env.requireLatest(ctx, MetricGlobalContractorSafetyScoreAvg, KindTenant, entityID, asOf)
	if err != nil {
		return Result{}, err
	}
	var variance float64
	for _, v := range values {
		d := v - *avgRow.Value
		variance += d * d
	}
	variance /= float64(len(values))
	deps[MetricGlobalContractorSafetyScoreAvg] = depRef(avgRow)
	return Result{
		Value:  math.Sqrt(variance),
		Inputs: map[string]any{"dependencies": deps, "contractors": len(values)},
	}, nil
}

func computeSupervisorEngagementFactor(ctx context.Context, env *Env, entityID uuid.UUID, asOf time.Time) (Result, error) {
	incidents, err := listIncidents(ctx, env, "supervisor_id", entityID)
	if err != nil {
		return Result{}, err
	}
	tenantID := tenantOf(ctx, env, entity.TypeSupervisor, entityID)
	params := env.Params.For(ctx, tenantID, MetricSupervisorEngagementFactor)
	baseline := paramFloat(params, "baseline", 10)
	value := baseline - float64(len(incidents))
	if value < 0 {
		value = 0
	}
	return Result{
		Value:  value,
		Inputs: map[string]any{"incident_count": len(incidents), "baseline": baseline},
		Params: params,
	}, nil
}

func computeSupervisorRelativePrecursorRisk(ctx context.Context, env *Env, entityID uuid.UUID, _ time.Time) (Result, error) {
	return relativePrecursorRisk(ctx, env, entity.TypeSupervisor, "supervisor_id", entityID)
}

func computeCrewRelativePrecursorRisk(ctx context.Context, env *Env, entityID uuid.UUID, _ time.Time) (Result, error) {
	return relativePrecursorRisk(ctx, env, entity.TypeCrew, "crew_id", entityID)
}

// relativePrecursorRisk is the precursor sum of one supervisor or crew
// relative to the tenant average across its peers. Precursors are the low
// severity incidents that tend to precede serious ones.
func relativePrecursorRisk(ctx context.Context, env *Env, peerType entity.Type, column string, entityID uuid.UUID) (Result, error) {
	peers, err := env.Reader.List(ctx, store.Filter{Type: peerType})
	if err != nil {
		return Result{}, err
	}
	if len(peers) == 0 {
		return Result{}, &NotAvailableError{Reason: "tenant has no " + string(peerType) + " rows"}
	}

	var own, total float64
	for _, peer := range peers {
		sum, err := precursorSum(ctx, env, column, peer.Ref().ID)
		if err != nil {
			return Result{}, err
		}
		total += sum
		if peer.Ref().ID == entityID {
			own = sum
		}
	}
	if total == 0 {
		return Result{}, &NotAvailableError{Reason: "no precursor incidents recorded for tenant"}
	}
	avg := total / float64(len(peers))
	return Result{
		Value: own / avg,
		Inputs: map[string]any{
			"precursor_sum": own,
			"tenant_avg":    avg,
			"peer_count":    len(peers),
		},
	}, nil
}

func precursorSum(ctx context.Context, env *Env, column string, entityID uuid.UUID) (float64, error) {
	incidents, err := env.Reader.List(ctx, store.Filter{
		Type:       entity.TypeIncident,
		Conditions: map[string]any{column: entityID.String()},
	})
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, rec := range incidents {
		inc, ok := rec.(*models.Incident)
		if !ok {
			continue
		}
		if inc.Severity == models.IncidentNearMiss || inc.Severity == models.IncidentFirstAid {
			sum += inc.Severity.SeverityWeight()
		}
	}
	return sum, nil
}

func computeTaskSpecificRiskScore(ctx context.Context, env *Env, entityID uuid.UUID, _ time.Time) (Result, error) {
	rec, err := env.Reader.Get(ctx, entity.Ref{Type: entity.TypeTask, ID: entityID})
	if err != nil {
		return Result{}, &NotAvailableError{Reason: "task not found or archived"}
	}
	task, ok := rec.(*models.Task)
	if !ok {
		return Result{}, &NotAvailableError{Reason: "task not found or archived"}
	}

	libRow, err := env.Library.Get(ctx, task.LibraryTaskID)
	if err != nil {
		return Result{}, &NotAvailableError{Reason: "library task row missing"}
	}
	hesp := 100.0
	if raw, ok := libRow.Attributes["hesp"]; ok {
		if f, ok := raw.(float64); ok {
			hesp = f
		}
	}

	hazards, err := env.Reader.List(ctx, store.Filter{
		Type: entity.TypeHazard,
		Conditions: map[string]any{
			"parent_type":   models.HazardParentTask,
			"parent_id":     entityID.String(),
			"is_applicable": true,
		},
	})
	if err != nil {
		return Result{}, err
	}

	params := env.Params.For(ctx, task.Tenant(), MetricTaskSpecificRiskScore)
	factor := paramFloat(params, "hazard_factor", 0.25)
	value := hesp * (1 + factor*float64(len(hazards)))
	return Result{
		Value: value,
		Inputs: map[string]any{
			"hesp":               hesp,
			"applicable_hazards": len(hazards),
			"library_task_id":    task.LibraryTaskID.String(),
		},
		Params: params,
	}, nil
}

func computeTotalProjectLocationRiskScore(ctx context.Context, env *Env, entityID uuid.UUID, asOf time.Time) (Result, error) {
	if _, err := env.Reader.Get(ctx, entity.Ref{Type: entity.TypeLocation, ID: entityID}); err != nil {
		return Result{}, &NotAvailableError{Reason: "location not found or archived"}
	}

	tasks, err := env.Reader.List(ctx, store.Filter{
		Type:       entity.TypeTask,
		Conditions: map[string]any{"location_id": id.LocationID(entityID)},
	})
	if err != nil {
		return Result{}, err
	}

	deps := map[string]any{}
	var sum float64
	for _, rec := range tasks {
		taskID := rec.Ref().ID
		row, err := env.requireLatest(ctx, MetricTaskSpecificRiskScore, KindTask, taskID, asOf)
		if err != nil {
			return Result{}, err
		}
		sum += *row.Value
		deps[taskID.String()] = depRef(row)
	}
	return Result{
		Value:  sum,
		Inputs: map[string]any{"dependencies": deps, "task_count": len(tasks)},
	}, nil
}

func computeTotalProjectRiskScore(ctx context.Context, env *Env, entityID uuid.UUID, asOf time.Time) (Result, error) {
	rec, err := env.Reader.Get(ctx, entity.Ref{Type: entity.TypeWorkPackage, ID: entityID})
	if err != nil {
		return Result{}, &NotAvailableError{Reason: "work package not found or archived"}
	}
	wp, ok := rec.(*models.WorkPackage)
	if !ok {
		return Result{}, &NotAvailableError{Reason: "work package not found or archived"}
	}
	day := id.DateOf(asOf)
	if !day.Within(wp.StartDate, wp.EndDate) {
		return Result{}, &NotAvailableError{Reason: "date outside the work package window"}
	}

	locations, err := env.Reader.List(ctx, store.Filter{
		Type:       entity.TypeLocation,
		Conditions: map[string]any{"work_package_id": wp.ID},
	})
	if err != nil {
		return Result{}, err
	}

	deps := map[string]any{}
	var sum float64
	for _, locRec := range locations {
		locID := locRec.Ref().ID
		row, err := env.requireLatest(ctx, MetricTotalProjectLocationRiskScore, KindLocation, locID, asOf)
		if err != nil {
			return Result{}, err
		}
		sum += *row.Value
		deps[locID.String()] = depRef(row)
	}
	return Result{
		Value:  sum,
		Inputs: map[string]any{"dependencies": deps, "location_count": len(locations)},
	}, nil
}

type aggKind int

const (
	aggAvg aggKind = iota
	aggStdDev
)

// globalAggregate builds the avg/stddev compute for a per-entity metric
// rolled up to the tenant.
func globalAggregate(metric string, peerType entity.Type, kind aggKind) ComputeFn {
	return func(ctx context.Context, env *Env, entityID uuid.UUID, asOf time.Time) (Result, error) {
		values, deps, err := latestForAll(ctx, env, peerType, metric, kindOfType(peerType), asOf)
		if err != nil {
			return Result{}, err
		}
		if len(values) == 0 {
			return Result{}, &NotAvailableError{Reason: "no " + metric + " rows for tenant"}
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		avg := sum / float64(len(values))
		value := avg
		if kind == aggStdDev {
			var variance float64
			for _, v := range values {
				d := v - avg
				variance += d * d
			}
			value = math.Sqrt(variance / float64(len(values)))
		}
		return Result{
			Value:  value,
			Inputs: map[string]any{"dependencies": deps, "peer_count": len(values)},
		}, nil
	}
}

// latestForAll resolves the newest row of a metric for every entity of a
// type in the tenant. A skipped marker row aborts nothing; the entity is
// simply left out.
func latestForAll(ctx context.Context, env *Env, peerType entity.Type, metric string, kind Kind, asOf time.Time) ([]float64, map[string]any, error) {
	peers, err := env.Reader.List(ctx, store.Filter{Type: peerType})
	if err != nil {
		return nil, nil, err
	}
	values := make([]float64, 0, len(peers))
	deps := map[string]any{}
	for _, peer := range peers {
		peerID := peer.Ref().ID
		row, err := env.requireLatest(ctx, metric, kind, peerID, asOf)
		if err != nil {
			var na *NotAvailableError
			if errors.As(err, &na) {
				continue
			}
			return nil, nil, err
		}
		values = append(values, *row.Value)
		deps[peerID.String()] = depRef(row)
	}
	return values, deps, nil
}

func listIncidents(ctx context.Context, env *Env, column string, owner uuid.UUID) ([]*models.Incident, error) {
	recs, err := env.Reader.List(ctx, store.Filter{
		Type:       entity.TypeIncident,
		Conditions: map[string]any{column: owner.String()},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*models.Incident, 0, len(recs))
	for _, rec := range recs {
		if inc, ok := rec.(*models.Incident); ok {
			out = append(out, inc)
		}
	}
	return out, nil
}

func tenantOf(ctx context.Context, env *Env, t entity.Type, entityID uuid.UUID) id.TenantID {
	rec, err := env.Reader.Get(ctx, entity.Ref{Type: t, ID: entityID}, store.WithArchived())
	if err != nil {
		return id.TenantID{}
	}
	return rec.Tenant()
}

func kindOfType(t entity.Type) Kind {
	switch t {
	case entity.TypeContractor:
		return KindContractor
	case entity.TypeSupervisor:
		return KindSupervisor
	case entity.TypeCrew:
		return KindCrew
	case entity.TypeTask:
		return KindTask
	case entity.TypeLocation:
		return KindLocation
	case entity.TypeWorkPackage:
		return KindWorkPackage
	}
	return KindTenant
}
