// Package postgres implements the entity store and session backend against
// PostgreSQL. Rows are read back as jsonb snapshots (to_jsonb) so one store
// serves every registered entity type without per-entity scan code.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"worksafe/internal/entity"
	"worksafe/internal/entity/store"
	"worksafe/pkg/platform/sentinel"
	"worksafe/pkg/platform/tx"
	"worksafe/pkg/requestcontext"
)

// Store is the PostgreSQL entity store.
type Store struct {
	db       *sql.DB
	registry *entity.Registry
}

// New builds the store over an open pool.
func New(db *sql.DB, registry *entity.Registry) *Store {
	return &Store{db: db, registry: registry}
}

// Begin opens the session transaction and carries it in the context.
func (s *Store) Begin(ctx context.Context) (context.Context, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	return tx.WithTx(ctx, sqlTx), nil
}

// Commit commits the context transaction.
func (s *Store) Commit(ctx context.Context) error {
	sqlTx, ok := tx.From(ctx)
	if !ok {
		return sentinel.ErrInvalidState
	}
	return mapError(sqlTx.Commit())
}

// Rollback rolls back the context transaction.
func (s *Store) Rollback(ctx context.Context) error {
	sqlTx, ok := tx.From(ctx)
	if !ok {
		return sentinel.ErrInvalidState
	}
	err := sqlTx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return mapError(err)
}

// Insert writes a new row built from the record's column snapshot.
func (s *Store) Insert(ctx context.Context, rec entity.Record) error {
	desc, err := s.registry.Lookup(rec.Ref().Type)
	if err != nil {
		return err
	}
	cols, err := entity.Columns(rec)
	if err != nil {
		return err
	}
	cols["id"] = rec.Ref().ID.String()

	names := sortedKeys(cols)
	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = driverValue(cols[name])
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		desc.Table, strings.Join(names, ", "), strings.Join(placeholders, ", "),
	)
	if _, err := tx.Resolve(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		return mapError(err)
	}
	return nil
}

// Update writes only the changed columns, guarded by id and tenant so a
// cross-tenant write can never land.
func (s *Store) Update(ctx context.Context, rec entity.Record, changed []string) error {
	if len(changed) == 0 {
		return nil
	}
	desc, err := s.registry.Lookup(rec.Ref().Type)
	if err != nil {
		return err
	}
	cols, err := entity.Columns(rec)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(changed))
	args := make([]any, 0, len(changed)+2)
	for i, col := range changed {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, driverValue(cols[col]))
	}
	args = append(args, rec.Ref().ID, uuid.UUID(rec.Tenant()))
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d AND tenant_id = $%d",
		desc.Table, strings.Join(sets, ", "), len(changed)+1, len(changed)+2,
	)
	res, err := tx.Resolve(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Delete physically removes a row. Admin paths only.
func (s *Store) Delete(ctx context.Context, ref entity.Ref) error {
	desc, err := s.registry.Lookup(ref.Type)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", desc.Table)
	if _, err := tx.Resolve(ctx, s.db).ExecContext(ctx, query, ref.ID); err != nil {
		return mapError(err)
	}
	return nil
}

// Get returns one record by ref, honoring tenant isolation and soft-archive
// visibility.
func (s *Store) Get(ctx context.Context, ref entity.Ref, opts ...store.Option) (entity.Record, error) {
	o := store.Apply(opts...)
	desc, err := s.registry.Lookup(ref.Type)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT to_jsonb(t) FROM %s t WHERE id = $1", desc.Table)
	args := []any{ref.ID}
	if caller := requestcontext.TenantID(ctx); !caller.IsNil() {
		query += " AND tenant_id = $2"
		args = append(args, uuid.UUID(caller))
	}
	if !o.IncludeArchived {
		query += " AND archived_at IS NULL"
	}

	var raw []byte
	err = tx.Resolve(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return decode(desc, raw)
}

// List returns matching records ordered by id ascending with cursor
// pagination.
func (s *Store) List(ctx context.Context, f store.Filter) ([]entity.Record, error) {
	desc, err := s.registry.Lookup(f.Type)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if caller := requestcontext.TenantID(ctx); !caller.IsNil() {
		where = append(where, "tenant_id = "+arg(uuid.UUID(caller)))
	}
	if !f.IncludeArchived {
		where = append(where, "archived_at IS NULL")
	}
	if f.AfterID != uuid.Nil {
		where = append(where, "id > "+arg(f.AfterID))
	}
	for _, col := range sortedKeys(f.Conditions) {
		where = append(where, col+" = "+arg(driverValue(store.Normalize(f.Conditions[col]))))
	}

	query := fmt.Sprintf("SELECT to_jsonb(t) FROM %s t", desc.Table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := tx.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []entity.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, mapError(err)
		}
		rec, err := decode(desc, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, mapError(rows.Err())
}

func decode(desc entity.Descriptor, raw []byte) (entity.Record, error) {
	cols := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&cols); err != nil {
		return nil, fmt.Errorf("decode %s row: %w", desc.Type, err)
	}
	rec := desc.New()
	if err := entity.Decode(cols, rec); err != nil {
		return nil, fmt.Errorf("decode %s row: %w", desc.Type, err)
	}
	return rec, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// driverValue converts an encoded column value into something database/sql
// accepts: composites become jsonb payloads, json.Number stays numeric.
func driverValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return raw
	default:
		return val
	}
}

// mapError translates driver failures into sentinel errors so services stay
// ignorant of SQLSTATE.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return fmt.Errorf("%w: %s", sentinel.ErrConflict, pgErr.ConstraintName)
		case pgErr.Code == "40001" || pgErr.Code == "40P01": // serialization, deadlock
			return fmt.Errorf("%w: %s", sentinel.ErrTransient, pgErr.Code)
		}
	}
	return err
}
