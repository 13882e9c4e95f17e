// Package library holds the tenant-agnostic reference catalog: the task,
// hazard, control, site condition, activity type, region and division rows
// that work entities point at. Tenants never duplicate catalog rows; a
// per-tenant settings table gates which rows each tenant sees.
package library

import (
	"strings"
	"time"

	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
)

// Kind partitions the catalog.
type Kind string

const (
	KindTask          Kind = "task"
	KindHazard        Kind = "hazard"
	KindControl       Kind = "control"
	KindSiteCondition Kind = "site_condition"
	KindActivityType  Kind = "activity_type"
	KindRegion        Kind = "region"
	KindDivision      Kind = "division"
)

var kinds = map[Kind]struct{}{
	KindTask: {}, KindHazard: {}, KindControl: {}, KindSiteCondition: {},
	KindActivityType: {}, KindRegion: {}, KindDivision: {},
}

// ParseKind validates a catalog kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kinds[k]; !ok {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown library kind %q", s)
	}
	return k, nil
}

// Row is one catalog entry. Attributes carries kind-specific detail such as
// a library task's base risk band or a hazard's energy type.
type Row struct {
	ID         id.LibraryRowID `json:"id"`
	Kind       Kind            `json:"kind"`
	Name       string          `json:"name"`
	Category   string          `json:"category,omitempty"`
	Attributes map[string]any  `json:"attributes,omitempty"`
	ArchivedAt *time.Time      `json:"archived_at,omitempty"`
}

// NewRow validates and builds a catalog row.
func NewRow(kind Kind, name, category string, attributes map[string]any) (*Row, error) {
	if _, ok := kinds[kind]; !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown library kind %q", kind)
	}
	if strings.TrimSpace(name) == "" {
		return nil, dErrors.Validation("name", "must not be empty")
	}
	return &Row{
		ID:         id.NewLibraryRowID(),
		Kind:       kind,
		Name:       name,
		Category:   category,
		Attributes: attributes,
	}, nil
}

// Setting links a tenant to a catalog row. Absence of a setting means the
// row is invisible to the tenant.
type Setting struct {
	TenantID id.TenantID     `json:"tenant_id"`
	RowID    id.LibraryRowID `json:"row_id"`
	Enabled  bool            `json:"enabled"`
}
