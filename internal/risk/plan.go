package risk

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"worksafe/internal/entity"
	"worksafe/internal/worksite/models"
)

// planStep is one computation the reactor will run: a metric definition
// bound to the entity ids it must be evaluated for.
type planStep struct {
	def     Definition
	targets []uuid.UUID
}

// plan orders the metrics a trigger invalidates so every dependency inside
// the set is computed before its consumers, and binds each metric to its
// target entities. Dependencies outside the set are read from storage.
func plan(ctx context.Context, env *Env, defs map[string]Definition, t Trigger) ([]planStep, error) {
	names := TriggerMetrics(t.Kind)
	if len(names) == 0 {
		return nil, fmt.Errorf("no metrics registered for trigger kind %q", t.Kind)
	}
	ordered, err := topoSort(defs, names)
	if err != nil {
		return nil, err
	}

	steps := make([]planStep, 0, len(ordered))
	for _, name := range ordered {
		def := defs[name]
		targets, err := targetsFor(ctx, env, t, def)
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			continue
		}
		steps = append(steps, planStep{def: def, targets: targets})
	}
	return steps, nil
}

// topoSort returns the subset of names in dependency order. Edges outside
// the subset are ignored; a cycle is a programming error in the catalog.
func topoSort(defs map[string]Definition, names []string) ([]string, error) {
	inSet := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := defs[n]; !ok {
			return nil, fmt.Errorf("unknown metric %q", n)
		}
		inSet[n] = true
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	ordered := make([]string, 0, len(names))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle through metric %q", name)
		}
		state[name] = visiting
		deps := append([]string(nil), defs[name].DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			if inSet[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[name] = done
		ordered = append(ordered, name)
		return nil
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for _, name := range sorted {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// targetsFor maps a trigger's changed entity to the entities a metric must
// be recomputed for, walking containment upward where the kinds differ.
// An empty result means the metric is unaffected, such as an incident with
// no crew attached.
func targetsFor(ctx context.Context, env *Env, t Trigger, def Definition) ([]uuid.UUID, error) {
	if def.Kind == KindTenant {
		return []uuid.UUID{uuid.UUID(t.TenantID)}, nil
	}

	switch t.Kind {
	case TriggerProjectChanged:
		if def.Kind == KindWorkPackage {
			return []uuid.UUID{t.EntityID}, nil
		}

	case TriggerLocationChanged:
		switch def.Kind {
		case KindLocation:
			return []uuid.UUID{t.EntityID}, nil
		case KindWorkPackage:
			return workPackageOfLocation(ctx, env, t.EntityID)
		}

	case TriggerActivityChanged:
		rec, err := env.Reader.Get(ctx, entity.Ref{Type: entity.TypeActivity, ID: t.EntityID})
		if err != nil {
			return nil, nil
		}
		act, ok := rec.(*models.Activity)
		if !ok {
			return nil, nil
		}
		return containerTargets(ctx, env, def.Kind, uuid.UUID(act.LocationID))

	case TriggerSiteConditionChanged:
		rec, err := env.Reader.Get(ctx, entity.Ref{Type: entity.TypeSiteCondition, ID: t.EntityID})
		if err != nil {
			return nil, nil
		}
		sc, ok := rec.(*models.SiteCondition)
		if !ok {
			return nil, nil
		}
		return containerTargets(ctx, env, def.Kind, uuid.UUID(sc.LocationID))

	case TriggerTaskChanged:
		if def.Kind == KindTask {
			return []uuid.UUID{t.EntityID}, nil
		}
		rec, err := env.Reader.Get(ctx, entity.Ref{Type: entity.TypeTask, ID: t.EntityID})
		if err != nil {
			return nil, nil
		}
		task, ok := rec.(*models.Task)
		if !ok {
			return nil, nil
		}
		return containerTargets(ctx, env, def.Kind, uuid.UUID(task.LocationID))

	case TriggerIncidentChanged:
		rec, err := env.Reader.Get(ctx, entity.Ref{Type: entity.TypeIncident, ID: t.EntityID})
		if err != nil {
			return nil, nil
		}
		inc, ok := rec.(*models.Incident)
		if !ok {
			return nil, nil
		}
		switch def.Kind {
		case KindContractor:
			if !inc.ContractorID.IsNil() {
				return []uuid.UUID{uuid.UUID(inc.ContractorID)}, nil
			}
		case KindSupervisor:
			if !inc.SupervisorID.IsNil() {
				return []uuid.UUID{uuid.UUID(inc.SupervisorID)}, nil
			}
		case KindCrew:
			if !inc.CrewID.IsNil() {
				return []uuid.UUID{uuid.UUID(inc.CrewID)}, nil
			}
		}

	case TriggerContractorChanged:
		if def.Kind == KindContractor {
			return []uuid.UUID{t.EntityID}, nil
		}

	case TriggerSupervisorChanged:
		if def.Kind == KindSupervisor {
			return []uuid.UUID{t.EntityID}, nil
		}
	}
	return nil, nil
}

func containerTargets(ctx context.Context, env *Env, kind Kind, locationID uuid.UUID) ([]uuid.UUID, error) {
	switch kind {
	case KindLocation:
		return []uuid.UUID{locationID}, nil
	case KindWorkPackage:
		return workPackageOfLocation(ctx, env, locationID)
	}
	return nil, nil
}

func workPackageOfLocation(ctx context.Context, env *Env, locationID uuid.UUID) ([]uuid.UUID, error) {
	rec, err := env.Reader.Get(ctx, entity.Ref{Type: entity.TypeLocation, ID: locationID})
	if err != nil {
		return nil, nil
	}
	loc, ok := rec.(*models.Location)
	if !ok {
		return nil, nil
	}
	return []uuid.UUID{uuid.UUID(loc.WorkPackageID)}, nil
}
