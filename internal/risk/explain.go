package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	dErrors "worksafe/pkg/domainerr"
)

// Explanation reconstructs how a stored metric value came to be: the row
// itself plus, in verbose mode, the dependency rows it consumed, resolved
// recursively from the provenance recorded at calculation time.
type Explanation struct {
	Metric       string         `json:"metric"`
	EntityKind   Kind           `json:"entity_kind"`
	EntityID     uuid.UUID      `json:"entity_id"`
	CalculatedAt time.Time      `json:"calculated_at"`
	Value        *float64       `json:"value"`
	Reason       string         `json:"reason,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	Dependencies []*Explanation `json:"dependencies,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
}

// Explainer answers provenance queries over the metric row store.
type Explainer struct {
	store Store
	defs  map[string]Definition
}

func NewExplainer(store Store) *Explainer {
	e := &Explainer{store: store, defs: make(map[string]Definition)}
	for _, def := range Catalog() {
		e.defs[def.Name] = def
	}
	return e
}

// Explain resolves the latest row of a metric at asOf. Verbose walks the
// whole dependency tree; non-verbose stops at the row's own inputs.
func (e *Explainer) Explain(ctx context.Context, metric string, entityID uuid.UUID, asOf time.Time, verbose bool) (*Explanation, error) {
	def, ok := e.defs[metric]
	if !ok {
		return nil, dErrors.Validation("metric", fmt.Sprintf("unknown metric %q", metric))
	}

	row, err := e.store.LatestAt(ctx, metric, entityID, asOf)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound,
			fmt.Sprintf("no %s row for %s at %s", metric, entityID, asOf.Format(time.RFC3339)))
	}

	out := explanationOf(def, row)
	if verbose {
		e.resolveDependencies(ctx, out, row)
	}
	return out, nil
}

func explanationOf(def Definition, row *Row) *Explanation {
	return &Explanation{
		Metric:       row.MetricName,
		EntityKind:   def.Kind,
		EntityID:     row.EntityID,
		CalculatedAt: row.CalculatedAt,
		Value:        row.Value,
		Reason:       row.Reason,
		Inputs:       row.Inputs,
		Params:       row.Params,
	}
}

// resolveDependencies walks the provenance refs stored under
// inputs["dependencies"] and loads each referenced row as it was at the
// parent's calculation instant.
func (e *Explainer) resolveDependencies(ctx context.Context, out *Explanation, row *Row) {
	refs, ok := row.Inputs["dependencies"].(map[string]any)
	if !ok {
		return
	}
	keys := make([]string, 0, len(refs))
	for k := range refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ref, ok := refs[k].(map[string]any)
		if !ok {
			continue
		}
		metric, _ := ref["metric"].(string)
		depDef, ok := e.defs[metric]
		if !ok {
			out.Errors = append(out.Errors, fmt.Sprintf("unknown dependency metric %q", metric))
			continue
		}
		depID, err := uuid.Parse(stringOf(ref["entity_id"]))
		if err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("bad entity id in %s provenance: %v", metric, err))
			continue
		}

		depRow, err := e.store.LatestAt(ctx, metric, depID, row.CalculatedAt)
		if err != nil {
			out.Errors = append(out.Errors,
				fmt.Sprintf("dependency row %s/%s missing at %s", metric, depID, row.CalculatedAt.Format(time.RFC3339)))
			continue
		}
		depOut := explanationOf(depDef, depRow)
		e.resolveDependencies(ctx, depOut, depRow)
		out.Dependencies = append(out.Dependencies, depOut)
	}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
