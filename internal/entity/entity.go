// Package entity defines the substrate the audit and risk subsystems operate
// on: tenant-scoped, soft-archivable records with a uniform column encoding.
//
// Models are plain structs; the only capability the change tracker needs is
// the column snapshot produced by Columns. Encoding goes through the json
// tags so a struct field, its column name, and its diff representation can
// never drift apart.
package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "worksafe/pkg/domain"
)

// Type names a covered entity kind. Values double as the object_type column
// of audit diffs and as table-name lookups in the descriptor registry.
type Type string

const (
	TypeWorkPackage            Type = "work_package"
	TypeLocation               Type = "location"
	TypeActivity               Type = "activity"
	TypeTask                   Type = "task"
	TypeSiteCondition          Type = "site_condition"
	TypeHazard                 Type = "hazard"
	TypeControl                Type = "control"
	TypeDailyReport            Type = "daily_report"
	TypeJobSafetyBriefing      Type = "job_safety_briefing"
	TypeEnergyBasedObservation Type = "energy_based_observation"
	TypeContractor             Type = "contractor"
	TypeSupervisor             Type = "supervisor"
	TypeCrew                   Type = "crew"
	TypeIncident               Type = "incident"
)

// Ref identifies one entity instance.
type Ref struct {
	Type Type
	ID   uuid.UUID
}

func (r Ref) String() string { return string(r.Type) + "/" + r.ID.String() }

// Record is the contract every covered entity satisfies.
type Record interface {
	Ref() Ref
	Tenant() id.TenantID
	// ArchivedAt returns the soft-archive timestamp, nil while live.
	ArchivedAt() *time.Time
	// SetArchivedAt stamps (or clears) the soft-archive timestamp.
	SetArchivedAt(*time.Time)
}

// Columns encodes a record into its column snapshot via the json tags,
// excluding the id column. Document columns come out as nested values and
// are diffed as JSON patches by the tracker.
func Columns(rec Record) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Ref(), err)
	}
	cols := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&cols); err != nil {
		return nil, fmt.Errorf("decode columns of %s: %w", rec.Ref(), err)
	}
	delete(cols, "id")
	return cols, nil
}

// Decode reconstructs a record from a column snapshot. The target must be a
// pointer to the concrete model type.
func Decode(cols map[string]any, target Record) error {
	raw, err := json.Marshal(cols)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// Descriptor carries the persistence metadata of one entity type.
type Descriptor struct {
	Type  Type
	Table string
	// DocumentColumns lists JSON document columns; the tracker stores their
	// changes as RFC 6902 patches instead of whole-value old/new pairs.
	DocumentColumns []string
	// New allocates an empty record of this type for decoding.
	New func() Record
}

// IsDocumentColumn reports whether col carries a JSON document.
func (d Descriptor) IsDocumentColumn(col string) bool {
	for _, c := range d.DocumentColumns {
		if c == col {
			return true
		}
	}
	return false
}

// Registry maps entity types to descriptors. One shared registry is built at
// startup; lookups after that are read-only.
type Registry struct {
	byType map[Type]Descriptor
}

// NewRegistry builds a registry from descriptors, rejecting duplicates.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{byType: make(map[Type]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Type == "" || d.Table == "" || d.New == nil {
			return nil, fmt.Errorf("descriptor for %q is incomplete", d.Type)
		}
		if _, dup := r.byType[d.Type]; dup {
			return nil, fmt.Errorf("duplicate descriptor for %q", d.Type)
		}
		r.byType[d.Type] = d
	}
	return r, nil
}

// Lookup returns the descriptor for an entity type.
func (r *Registry) Lookup(t Type) (Descriptor, error) {
	d, ok := r.byType[t]
	if !ok {
		return Descriptor{}, fmt.Errorf("no descriptor registered for entity type %q", t)
	}
	return d, nil
}

// Types returns all registered entity types.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	return out
}
