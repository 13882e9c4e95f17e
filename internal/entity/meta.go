package entity

import (
	"time"

	id "worksafe/pkg/domain"
)

// Meta is the tenant/lifecycle envelope embedded by every covered model.
// Its json tags are the column names the tracker diffs against.
type Meta struct {
	TenantID  id.TenantID `json:"tenant_id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Archived  *time.Time  `json:"archived_at"`
}

// NewMeta stamps a fresh envelope for a newly created entity.
func NewMeta(tenantID id.TenantID, now time.Time) Meta {
	return Meta{TenantID: tenantID, CreatedAt: now, UpdatedAt: now}
}

func (m *Meta) Tenant() id.TenantID        { return m.TenantID }
func (m *Meta) ArchivedAt() *time.Time     { return m.Archived }
func (m *Meta) SetArchivedAt(t *time.Time) { m.Archived = t }

// IsArchived reports whether the entity is soft-archived.
func (m *Meta) IsArchived() bool { return m.Archived != nil }

// Touch bumps the updated_at column.
func (m *Meta) Touch(now time.Time) { m.UpdatedAt = now }
