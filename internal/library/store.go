package library

import (
	"context"
	"sort"
	"sync"

	id "worksafe/pkg/domain"
	"worksafe/pkg/platform/sentinel"
)

// Store persists catalog rows and tenant settings.
type Store interface {
	Get(ctx context.Context, rowID id.LibraryRowID) (*Row, error)
	ListByKind(ctx context.Context, kind Kind) ([]Row, error)
	Upsert(ctx context.Context, row *Row) error
	SettingsFor(ctx context.Context, tenantID id.TenantID, kind Kind) ([]Setting, error)
	PutSetting(ctx context.Context, s Setting) error
}

// MemoryStore keeps the catalog in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	rows     map[id.LibraryRowID]Row
	settings map[id.TenantID]map[id.LibraryRowID]Setting
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:     make(map[id.LibraryRowID]Row),
		settings: make(map[id.TenantID]map[id.LibraryRowID]Setting),
	}
}

func (s *MemoryStore) Get(_ context.Context, rowID id.LibraryRowID) (*Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[rowID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := row
	return &cp, nil
}

func (s *MemoryStore) ListByKind(_ context.Context, kind Kind) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Row
	for _, row := range s.rows {
		if row.Kind != kind || row.ArchivedAt != nil {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, row *Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.ID] = *row
	return nil
}

func (s *MemoryStore) SettingsFor(_ context.Context, tenantID id.TenantID, kind Kind) ([]Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Setting
	for rowID, setting := range s.settings[tenantID] {
		row, ok := s.rows[rowID]
		if !ok || row.Kind != kind {
			continue
		}
		out = append(out, setting)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RowID.String() < out[j].RowID.String()
	})
	return out, nil
}

func (s *MemoryStore) PutSetting(_ context.Context, setting Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[setting.RowID]; !ok {
		return sentinel.ErrNotFound
	}
	byRow, ok := s.settings[setting.TenantID]
	if !ok {
		byRow = make(map[id.LibraryRowID]Setting)
		s.settings[setting.TenantID] = byRow
	}
	byRow[setting.RowID] = setting
	return nil
}
