package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/platform/sentinel"
	"worksafe/pkg/platform/tx"
)

// PostgresStore persists the catalog in library_rows plus
// tenant_library_settings.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, rowID id.LibraryRowID) (*Row, error) {
	q := tx.Resolve(ctx, s.db)
	row := q.QueryRowContext(ctx, `
		SELECT id, kind, name, category, attributes, archived_at
		FROM library_rows WHERE id = $1`, uuid.UUID(rowID))
	return scanRow(row)
}

func (s *PostgresStore) ListByKind(ctx context.Context, kind Kind) ([]Row, error) {
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT id, kind, name, category, attributes, archived_at
		FROM library_rows
		WHERE kind = $1 AND archived_at IS NULL
		ORDER BY name ASC`, string(kind))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list library rows")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, row *Row) error {
	attrs, err := json.Marshal(row.Attributes)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode library attributes")
	}
	q := tx.Resolve(ctx, s.db)
	_, err = q.ExecContext(ctx, `
		INSERT INTO library_rows (id, kind, name, category, attributes, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			attributes = EXCLUDED.attributes,
			archived_at = EXCLUDED.archived_at`,
		uuid.UUID(row.ID), string(row.Kind), row.Name, row.Category, attrs, row.ArchivedAt)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "upsert library row")
	}
	return nil
}

func (s *PostgresStore) SettingsFor(ctx context.Context, tenantID id.TenantID, kind Kind) ([]Setting, error) {
	q := tx.Resolve(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT s.tenant_id, s.row_id, s.enabled
		FROM tenant_library_settings s
		JOIN library_rows r ON r.id = s.row_id
		WHERE s.tenant_id = $1 AND r.kind = $2
		ORDER BY s.row_id ASC`,
		uuid.UUID(tenantID), string(kind))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list tenant library settings")
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var (
			setting  Setting
			tenantID uuid.UUID
			rowID    uuid.UUID
		)
		if err := rows.Scan(&tenantID, &rowID, &setting.Enabled); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan library setting")
		}
		setting.TenantID = id.TenantID(tenantID)
		setting.RowID = id.LibraryRowID(rowID)
		out = append(out, setting)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutSetting(ctx context.Context, setting Setting) error {
	q := tx.Resolve(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO tenant_library_settings (tenant_id, row_id, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, row_id) DO UPDATE SET enabled = EXCLUDED.enabled`,
		uuid.UUID(setting.TenantID), uuid.UUID(setting.RowID), setting.Enabled)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "put library setting")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner) (*Row, error) {
	var (
		r        Row
		rowID    uuid.UUID
		kind     string
		category sql.NullString
		attrs    []byte
	)
	err := sc.Scan(&rowID, &kind, &r.Name, &category, &attrs, &r.ArchivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan library row")
	}
	r.ID = id.LibraryRowID(rowID)
	r.Kind = Kind(kind)
	r.Category = category.String
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &r.Attributes); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode library attributes")
		}
	}
	return &r, nil
}
