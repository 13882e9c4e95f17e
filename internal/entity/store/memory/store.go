// Package memory implements the entity store against process memory. It
// mirrors the postgres store's semantics (tenant isolation, soft-archive
// filtering, cursor pagination, transactional staging) so services and the
// audit context can be exercised without a database.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"worksafe/internal/entity"
	"worksafe/internal/entity/store"
	"worksafe/pkg/platform/sentinel"
	"worksafe/pkg/requestcontext"
)

type stagedRow struct {
	cols    map[string]any // nil means delete
	deleted bool
}

type memTx struct {
	mu     sync.Mutex
	staged map[entity.Ref]*stagedRow
	order  []entity.Ref
	hooks  []func()
	done   bool
}

type txKey struct{}

// Store holds committed rows as column snapshots keyed by ref.
type Store struct {
	registry *entity.Registry

	mu   sync.RWMutex
	rows map[entity.Ref]map[string]any
}

// New builds an empty in-memory store.
func New(registry *entity.Registry) *Store {
	return &Store{registry: registry, rows: make(map[entity.Ref]map[string]any)}
}

// Begin opens a staging transaction carried in the returned context.
func (s *Store) Begin(ctx context.Context) (context.Context, error) {
	return context.WithValue(ctx, txKey{}, &memTx{staged: make(map[entity.Ref]*stagedRow)}), nil
}

func txFrom(ctx context.Context) (*memTx, bool) {
	t, ok := ctx.Value(txKey{}).(*memTx)
	return t, ok
}

// Commit publishes staged rows.
func (s *Store) Commit(ctx context.Context) error {
	t, ok := txFrom(ctx)
	if !ok {
		return sentinel.ErrInvalidState
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return sentinel.ErrInvalidState
	}
	t.done = true

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range t.order {
		row := t.staged[ref]
		if row.deleted {
			delete(s.rows, ref)
			continue
		}
		s.rows[ref] = row.cols
	}
	for _, hook := range t.hooks {
		hook()
	}
	return nil
}

// OnCommit registers fn to run if and when the transaction carried by ctx
// commits. The audit store uses this to publish events atomically with the
// entity rows they describe.
func (s *Store) OnCommit(ctx context.Context, fn func()) error {
	t, ok := txFrom(ctx)
	if !ok {
		return sentinel.ErrInvalidState
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return sentinel.ErrInvalidState
	}
	t.hooks = append(t.hooks, fn)
	return nil
}

// Rollback discards staged rows.
func (s *Store) Rollback(ctx context.Context) error {
	t, ok := txFrom(ctx)
	if !ok {
		return sentinel.ErrInvalidState
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.staged = make(map[entity.Ref]*stagedRow)
	t.order = nil
	return nil
}

func (s *Store) stage(ctx context.Context, ref entity.Ref, cols map[string]any, deleted bool) error {
	t, ok := txFrom(ctx)
	if !ok {
		return sentinel.ErrInvalidState
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return sentinel.ErrInvalidState
	}
	if _, seen := t.staged[ref]; !seen {
		t.order = append(t.order, ref)
	}
	t.staged[ref] = &stagedRow{cols: cols, deleted: deleted}
	return nil
}

// Insert stages a new row.
func (s *Store) Insert(ctx context.Context, rec entity.Record) error {
	ref := rec.Ref()
	s.mu.RLock()
	_, exists := s.rows[ref]
	s.mu.RUnlock()
	if exists {
		return sentinel.ErrConflict
	}
	cols, err := fullColumns(rec)
	if err != nil {
		return err
	}
	return s.stage(ctx, ref, cols, false)
}

// Update stages the full current snapshot; the changed column list only
// matters for SQL stores.
func (s *Store) Update(ctx context.Context, rec entity.Record, _ []string) error {
	cols, err := fullColumns(rec)
	if err != nil {
		return err
	}
	return s.stage(ctx, rec.Ref(), cols, false)
}

// Delete stages a physical delete.
func (s *Store) Delete(ctx context.Context, ref entity.Ref) error {
	return s.stage(ctx, ref, nil, true)
}

func fullColumns(rec entity.Record) (map[string]any, error) {
	cols, err := entity.Columns(rec)
	if err != nil {
		return nil, err
	}
	cols["id"] = rec.Ref().ID.String()
	return cols, nil
}

func (s *Store) visible(ctx context.Context, cols map[string]any) bool {
	caller := requestcontext.TenantID(ctx)
	if caller.IsNil() {
		return true
	}
	tenant, _ := cols["tenant_id"].(string)
	return tenant == caller.String()
}

func (s *Store) lookup(ctx context.Context, ref entity.Ref) (map[string]any, bool) {
	// Within a transaction, staged rows shadow committed ones.
	if t, ok := txFrom(ctx); ok {
		t.mu.Lock()
		row, staged := t.staged[ref]
		t.mu.Unlock()
		if staged {
			if row.deleted {
				return nil, false
			}
			return row.cols, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cols, ok := s.rows[ref]
	return cols, ok
}

// Get returns one record by ref, honoring tenant isolation and soft-archive
// visibility.
func (s *Store) Get(ctx context.Context, ref entity.Ref, opts ...store.Option) (entity.Record, error) {
	o := store.Apply(opts...)
	cols, ok := s.lookup(ctx, ref)
	if !ok || !s.visible(ctx, cols) {
		return nil, sentinel.ErrNotFound
	}
	if !o.IncludeArchived && cols["archived_at"] != nil {
		return nil, sentinel.ErrNotFound
	}
	return s.decode(ref.Type, cols)
}

// List returns records matching the filter, ordered by id ascending with
// cursor pagination.
func (s *Store) List(ctx context.Context, f store.Filter) ([]entity.Record, error) {
	merged := make(map[entity.Ref]map[string]any)
	s.mu.RLock()
	for ref, cols := range s.rows {
		if ref.Type == f.Type {
			merged[ref] = cols
		}
	}
	s.mu.RUnlock()
	if t, ok := txFrom(ctx); ok {
		t.mu.Lock()
		for ref, row := range t.staged {
			if ref.Type != f.Type {
				continue
			}
			if row.deleted {
				delete(merged, ref)
				continue
			}
			merged[ref] = row.cols
		}
		t.mu.Unlock()
	}

	refs := make([]entity.Ref, 0, len(merged))
	for ref := range merged {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID.String() < refs[j].ID.String() })

	var out []entity.Record
	for _, ref := range refs {
		if f.AfterID != uuid.Nil && ref.ID.String() <= f.AfterID.String() {
			continue
		}
		cols := merged[ref]
		if !s.visible(ctx, cols) {
			continue
		}
		if !f.IncludeArchived && cols["archived_at"] != nil {
			continue
		}
		if !store.MatchConditions(cols, f.Conditions) {
			continue
		}
		rec, err := s.decode(ref.Type, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) decode(t entity.Type, cols map[string]any) (entity.Record, error) {
	desc, err := s.registry.Lookup(t)
	if err != nil {
		return nil, err
	}
	rec := desc.New()
	if err := entity.Decode(cols, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
