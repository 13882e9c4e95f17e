package library

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	platformredis "worksafe/internal/platform/redis"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
)

const cacheTTL = 15 * time.Minute

// Service is the catalog manager: tenant-visible reads with a redis
// read-through cache, and admin-only mutations that invalidate it. Catalog
// reads are hot on every work package page so they never hit postgres twice
// within the TTL.
type Service struct {
	store  Store
	cache  *platformredis.Client // nil disables caching
	logger *slog.Logger
}

// Option configures the service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithCache(c *platformredis.Client) Option {
	return func(s *Service) { s.cache = c }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns one catalog row regardless of tenant visibility. Used when
// resolving references already stored on work entities.
func (s *Service) Get(ctx context.Context, rowID id.LibraryRowID) (*Row, error) {
	row, err := s.store.Get(ctx, rowID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound,
			fmt.Sprintf("library row %s", rowID))
	}
	return row, nil
}

// ListForTenant returns the catalog rows of a kind the tenant has enabled,
// through the cache when one is configured.
func (s *Service) ListForTenant(ctx context.Context, tenantID id.TenantID, kind Kind) ([]Row, error) {
	key := cacheKey(tenantID, kind)
	if rows, ok := s.cacheGet(ctx, key); ok {
		return rows, nil
	}

	all, err := s.store.ListByKind(ctx, kind)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.SettingsFor(ctx, tenantID, kind)
	if err != nil {
		return nil, err
	}
	enabled := make(map[id.LibraryRowID]bool, len(settings))
	for _, st := range settings {
		enabled[st.RowID] = st.Enabled
	}

	var out []Row
	for _, row := range all {
		if enabled[row.ID] {
			out = append(out, row)
		}
	}

	s.cachePut(ctx, key, out)
	return out, nil
}

// CreateRow adds a catalog row. Admin only; callers wrap it in an audit
// scope via RegisterManualDiff since catalog rows live outside the entity
// substrate.
func (s *Service) CreateRow(ctx context.Context, kind Kind, name, category string, attributes map[string]any) (*Row, error) {
	row, err := NewRow(kind, name, category, attributes)
	if err != nil {
		return nil, err
	}
	if err := s.store.Upsert(ctx, row); err != nil {
		return nil, err
	}
	s.invalidateKind(ctx, kind)
	return row, nil
}

// ArchiveRow soft-archives a catalog row; existing references keep
// resolving through Get.
func (s *Service) ArchiveRow(ctx context.Context, rowID id.LibraryRowID, at time.Time) (*Row, error) {
	row, err := s.Get(ctx, rowID)
	if err != nil {
		return nil, err
	}
	if row.ArchivedAt != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "library row already archived")
	}
	row.ArchivedAt = &at
	if err := s.store.Upsert(ctx, row); err != nil {
		return nil, err
	}
	s.invalidateKind(ctx, row.Kind)
	return row, nil
}

// EnableForTenant turns a catalog row on or off for a tenant.
func (s *Service) EnableForTenant(ctx context.Context, tenantID id.TenantID, rowID id.LibraryRowID, enabled bool) error {
	err := s.store.PutSetting(ctx, Setting{TenantID: tenantID, RowID: rowID, Enabled: enabled})
	if err != nil {
		return err
	}
	row, err := s.store.Get(ctx, rowID)
	if err == nil {
		s.invalidate(ctx, cacheKey(tenantID, row.Kind))
	}
	return nil
}

func cacheKey(tenantID id.TenantID, kind Kind) string {
	return fmt.Sprintf("worksafe:library:%s:%s", tenantID, kind)
}

func (s *Service) cacheGet(ctx context.Context, key string) ([]Row, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		s.logger.Warn("library cache entry corrupt, dropping", "key", key)
		s.cache.Del(ctx, key)
		return nil, false
	}
	return rows, true
}

func (s *Service) cachePut(ctx context.Context, key string, rows []Row) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		s.logger.Warn("library cache write failed", "key", key, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	s.cache.Del(ctx, key)
}

// invalidateKind drops every tenant's cached view of a kind. Admin catalog
// mutations are rare so a SCAN is acceptable.
func (s *Service) invalidateKind(ctx context.Context, kind Kind) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("worksafe:library:*:%s", kind)
	iter := s.cache.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		s.cache.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn("library cache invalidation scan failed", "error", err)
	}
}
