// Package session implements the unit of work the audit context brackets.
//
// A session snapshots every record it sees; at flush time it classifies
// records as new, dirty or deleted and hands the typed change set to the
// change tracker. Nothing outside this package inspects store internals.
package session

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"worksafe/internal/entity"
	"worksafe/pkg/platform/sentinel"
	"worksafe/pkg/requestcontext"
)

// Backend stages and persists entity changes inside one transaction.
// The postgres backend joins a *sql.Tx carried in the context; the memory
// backend keeps a journal it applies on commit.
type Backend interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Insert(ctx context.Context, rec entity.Record) error
	Update(ctx context.Context, rec entity.Record, changed []string) error
	Delete(ctx context.Context, ref entity.Ref) error
}

// Change is one classified entity mutation with the column-level detail the
// tracker needs.
type Change struct {
	Record   entity.Record
	Ref      entity.Ref
	Old      map[string]any // previous values of changed columns (nil for new)
	New      map[string]any // current values of changed columns (nil for deleted)
	Archived bool           // archived_at transitioned nil → non-nil
}

// Changes is the full classification of a session at flush time.
type Changes struct {
	New     []Change
	Dirty   []Change
	Deleted []Change
}

// Empty reports whether nothing is pending.
func (c Changes) Empty() bool {
	return len(c.New) == 0 && len(c.Dirty) == 0 && len(c.Deleted) == 0
}

type trackedRecord struct {
	rec      entity.Record
	snapshot map[string]any
}

// Session is a single-writer unit of work. One open audit context per
// session; parallel sessions are independent.
type Session struct {
	backend  Backend
	registry *entity.Registry

	mu        sync.Mutex
	ctx       context.Context // carries the backend transaction
	autoflush bool
	auditOpen bool
	flushed   bool
	closed    bool

	tracked map[entity.Ref]*trackedRecord
	order   []entity.Ref // insertion order of added records, for stable flush
	added   map[entity.Ref]entity.Record
	deleted map[entity.Ref]*trackedRecord
}

// Begin opens a session and its backend transaction.
func Begin(ctx context.Context, backend Backend, registry *entity.Registry) (*Session, error) {
	txCtx, err := backend.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	return &Session{
		backend:   backend,
		registry:  registry,
		ctx:       txCtx,
		autoflush: true,
		tracked:   make(map[entity.Ref]*trackedRecord),
		added:     make(map[entity.Ref]entity.Record),
		deleted:   make(map[entity.Ref]*trackedRecord),
	}, nil
}

// Context returns the transaction-carrying context for store reads that
// should observe the session's uncommitted state.
func (s *Session) Context() context.Context { return s.ctx }

// Registry exposes the descriptor registry to the tracker.
func (s *Session) Registry() *entity.Registry { return s.registry }

// SetAutoflush toggles eager flushing. The audit context disables it inside
// a scope to preserve new/dirty/deleted state for diff synthesis, and
// restores it on every exit path.
func (s *Session) SetAutoflush(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoflush = on
}

// Autoflush reports the current autoflush setting.
func (s *Session) Autoflush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoflush
}

// MarkAuditOpen claims the session for an audit context. A second claim
// while one is open is the nested-audit-context failure.
func (s *Session) MarkAuditOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditOpen {
		return sentinel.ErrInvalidState
	}
	s.auditOpen = true
	return nil
}

// MarkAuditClosed releases the audit claim.
func (s *Session) MarkAuditClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditOpen = false
}

func (s *Session) tenantGuard(rec entity.Record) error {
	caller := requestcontext.TenantID(s.ctx)
	if caller.IsNil() {
		return nil // system scopes (migrations, evaluator) carry no tenant
	}
	if rec.Tenant() != caller {
		return sentinel.ErrTenantMismatch
	}
	return nil
}

// Track registers a loaded record so later mutations can be diffed against
// its snapshot. Tracking an already-tracked ref refreshes nothing; the
// original snapshot is the diff baseline.
func (s *Session) Track(rec entity.Record) error {
	if err := s.tenantGuard(rec); err != nil {
		return err
	}
	cols, err := entity.Columns(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := rec.Ref()
	if _, seen := s.tracked[ref]; seen {
		return nil
	}
	s.tracked[ref] = &trackedRecord{rec: rec, snapshot: cols}
	return nil
}

// Add stages a new record for insertion.
func (s *Session) Add(rec entity.Record) error {
	if err := s.tenantGuard(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := rec.Ref()
	if _, dup := s.added[ref]; dup {
		return sentinel.ErrConflict
	}
	s.added[ref] = rec
	s.order = append(s.order, ref)
	return nil
}

// Delete stages a physical delete. Only admin paths reach this; ordinary
// removal is soft archive.
func (s *Session) Delete(rec entity.Record) error {
	if err := s.tenantGuard(rec); err != nil {
		return err
	}
	cols, err := entity.Columns(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := rec.Ref()
	if _, wasNew := s.added[ref]; wasNew {
		delete(s.added, ref)
		return nil
	}
	delete(s.tracked, ref)
	s.deleted[ref] = &trackedRecord{rec: rec, snapshot: cols}
	return nil
}

// Pending classifies the session's state without mutating it. The audit
// context calls this to synthesize diffs before flushing.
func (s *Session) Pending() (Changes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classify()
}

func (s *Session) classify() (Changes, error) {
	var out Changes

	for _, ref := range s.order {
		rec, ok := s.added[ref]
		if !ok {
			continue
		}
		cols, err := entity.Columns(rec)
		if err != nil {
			return Changes{}, err
		}
		out.New = append(out.New, Change{Record: rec, Ref: ref, New: cols})
	}

	dirtyRefs := make([]entity.Ref, 0, len(s.tracked))
	for ref := range s.tracked {
		dirtyRefs = append(dirtyRefs, ref)
	}
	sort.Slice(dirtyRefs, func(i, j int) bool {
		if dirtyRefs[i].Type != dirtyRefs[j].Type {
			return dirtyRefs[i].Type < dirtyRefs[j].Type
		}
		return dirtyRefs[i].ID.String() < dirtyRefs[j].ID.String()
	})
	for _, ref := range dirtyRefs {
		tr := s.tracked[ref]
		cols, err := entity.Columns(tr.rec)
		if err != nil {
			return Changes{}, err
		}
		oldVals := make(map[string]any)
		newVals := make(map[string]any)
		for col, newVal := range cols {
			oldVal, existed := tr.snapshot[col]
			if existed && reflect.DeepEqual(oldVal, newVal) {
				continue
			}
			oldVals[col] = oldVal
			newVals[col] = newVal
		}
		if len(newVals) == 0 {
			continue
		}
		archived := false
		if newArch, changed := newVals["archived_at"]; changed {
			oldArch := oldVals["archived_at"]
			archived = isNullish(oldArch) && !isNullish(newArch)
		}
		out.Dirty = append(out.Dirty, Change{
			Record: tr.rec, Ref: ref,
			Old: oldVals, New: newVals, Archived: archived,
		})
	}

	deletedRefs := make([]entity.Ref, 0, len(s.deleted))
	for ref := range s.deleted {
		deletedRefs = append(deletedRefs, ref)
	}
	sort.Slice(deletedRefs, func(i, j int) bool {
		if deletedRefs[i].Type != deletedRefs[j].Type {
			return deletedRefs[i].Type < deletedRefs[j].Type
		}
		return deletedRefs[i].ID.String() < deletedRefs[j].ID.String()
	})
	for _, ref := range deletedRefs {
		tr := s.deleted[ref]
		out.Deleted = append(out.Deleted, Change{Record: tr.rec, Ref: ref, Old: tr.snapshot})
	}

	return out, nil
}

// Flush pushes staged changes into the backend transaction and refreshes
// snapshots so a second flush in the same session is a no-op.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changes, err := s.classify()
	if err != nil {
		return err
	}

	for _, ch := range changes.New {
		if err := s.backend.Insert(s.ctx, ch.Record); err != nil {
			return fmt.Errorf("insert %s: %w", ch.Ref, err)
		}
	}
	for _, ch := range changes.Dirty {
		changed := make([]string, 0, len(ch.New))
		for col := range ch.New {
			changed = append(changed, col)
		}
		sort.Strings(changed)
		if err := s.backend.Update(s.ctx, ch.Record, changed); err != nil {
			return fmt.Errorf("update %s: %w", ch.Ref, err)
		}
	}
	for _, ch := range changes.Deleted {
		if err := s.backend.Delete(s.ctx, ch.Ref); err != nil {
			return fmt.Errorf("delete %s: %w", ch.Ref, err)
		}
	}

	// Inserted and updated records become tracked with fresh snapshots.
	for _, ch := range changes.New {
		cols, err := entity.Columns(ch.Record)
		if err != nil {
			return err
		}
		s.tracked[ch.Ref] = &trackedRecord{rec: ch.Record, snapshot: cols}
		delete(s.added, ch.Ref)
	}
	for _, ch := range changes.Dirty {
		cols, err := entity.Columns(ch.Record)
		if err != nil {
			return err
		}
		s.tracked[ch.Ref].snapshot = cols
	}
	s.deleted = make(map[entity.Ref]*trackedRecord)
	s.order = nil
	s.flushed = true
	return nil
}

// Commit flushes any remaining changes and commits the transaction.
func (s *Session) Commit() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sentinel.ErrInvalidState
	}
	s.closed = true
	return s.backend.Commit(s.ctx)
}

// Rollback abandons the transaction and all staged changes.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.added = make(map[entity.Ref]entity.Record)
	s.deleted = make(map[entity.Ref]*trackedRecord)
	s.order = nil
	return s.backend.Rollback(s.ctx)
}

func isNullish(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
