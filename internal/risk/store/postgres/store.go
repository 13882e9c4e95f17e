// Package postgres persists metric rows, one append-only rm_<metric> table
// per metric so each series stays narrow and the hot latest-at read stays
// index-only.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/risk"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/platform/sentinel"
	"worksafe/pkg/platform/tx"
	"worksafe/pkg/requestcontext"
)

// Store reads and writes rm_* tables.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// tableFor maps a metric name to its table. Names come from the static
// catalog, never from user input, so interpolation is safe; the allowlist
// below still guards against a stray name reaching SQL.
func tableFor(metricName string) (string, error) {
	if !knownMetrics[metricName] {
		return "", fmt.Errorf("unknown metric table for %q", metricName)
	}
	return "rm_" + metricName, nil
}

var knownMetrics = func() map[string]bool {
	out := make(map[string]bool)
	for _, def := range risk.Catalog() {
		out[def.Name] = true
	}
	return out
}()

func (s *Store) Append(ctx context.Context, row risk.Row) error {
	table, err := tableFor(row.MetricName)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolve metric table")
	}
	inputs, err := encodeJSON(row.Inputs)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode metric inputs")
	}
	params, err := encodeJSON(row.Params)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode metric params")
	}

	var value sql.Null[float64]
	if row.Value != nil {
		value = sql.Null[float64]{V: *row.Value, Valid: true}
	}
	var reason sql.NullString
	if row.Reason != "" {
		reason = sql.NullString{String: row.Reason, Valid: true}
	}

	q := tx.Resolve(ctx, s.db)
	_, err = q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s
			(entity_id, tenant_id, calculated_at, value, reason, inputs, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, table),
		row.EntityID, uuid.UUID(row.TenantID), row.CalculatedAt,
		value, reason, inputs, params)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "append metric row")
	}
	return nil
}

func (s *Store) LatestAt(ctx context.Context, metricName string, entityID uuid.UUID, asOf time.Time) (*risk.Row, error) {
	rows, err := s.history(ctx, metricName, entityID, asOf, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &rows[0], nil
}

// History returns rows of a series at or before asOf, newest first.
func (s *Store) History(ctx context.Context, metricName string, entityID uuid.UUID, asOf time.Time, limit int) ([]risk.Row, error) {
	return s.history(ctx, metricName, entityID, asOf, limit)
}

func (s *Store) history(ctx context.Context, metricName string, entityID uuid.UUID, asOf time.Time, limit int) ([]risk.Row, error) {
	table, err := tableFor(metricName)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resolve metric table")
	}
	query := fmt.Sprintf(`
		SELECT entity_id, tenant_id, calculated_at, value, reason, inputs, params
		FROM %s
		WHERE entity_id = $1 AND calculated_at <= $2`, table)
	args := []any{entityID, asOf}
	// Rows of other tenants are indistinguishable from absent rows, matching
	// the entity store's read scoping.
	if caller := requestcontext.TenantID(ctx); !caller.IsNil() {
		args = append(args, uuid.UUID(caller))
		query += fmt.Sprintf(" AND tenant_id = $%d", len(args))
	}
	query += " ORDER BY calculated_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	q := tx.Resolve(ctx, s.db)
	res, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read metric rows")
	}
	defer res.Close()

	var out []risk.Row
	for res.Next() {
		row, err := scanRow(res, metricName)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := res.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read metric rows")
	}
	return out, nil
}

func scanRow(res *sql.Rows, metricName string) (risk.Row, error) {
	var (
		row      risk.Row
		tenantID uuid.UUID
		value    sql.Null[float64]
		reason   sql.NullString
		inputs   []byte
		params   []byte
	)
	if err := res.Scan(&row.EntityID, &tenantID, &row.CalculatedAt,
		&value, &reason, &inputs, &params); err != nil {
		return risk.Row{}, dErrors.Wrap(err, dErrors.CodeInternal, "scan metric row")
	}
	row.MetricName = metricName
	row.TenantID = id.TenantID(tenantID)
	if value.Valid {
		row.Value = &value.V
	}
	row.Reason = reason.String
	if err := decodeJSON(inputs, &row.Inputs); err != nil {
		return risk.Row{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode metric inputs")
	}
	if err := decodeJSON(params, &row.Params); err != nil {
		return risk.Row{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode metric params")
	}
	return row, nil
}

func encodeJSON(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func decodeJSON(raw []byte, target *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
