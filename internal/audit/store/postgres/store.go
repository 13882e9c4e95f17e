// Package postgres persists audit events in audit_events plus
// audit_event_diffs, joining the ambient session transaction so an event
// commits with the entity rows it describes.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/audit"
	"worksafe/internal/entity"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/platform/tx"
	"worksafe/pkg/requestcontext"
)

// Store reads and writes the audit trail.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes the event row and its diffs.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	q := tx.Resolve(ctx, s.db)

	var actorID any
	if !event.Actor.UserID.IsNil() {
		actorID = uuid.UUID(event.Actor.UserID)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, event_type, tenant_id, actor_id, actor_name, actor_source,
			 client_ip, user_agent, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(event.ID), string(event.Type), uuid.UUID(event.TenantID),
		actorID, event.Actor.Name, event.Actor.Source,
		event.Actor.ClientIP, event.Actor.UserAgent, event.RequestID,
		event.CreatedAt)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "insert audit event")
	}

	for i := range event.Diffs {
		d := &event.Diffs[i]
		_, err := q.ExecContext(ctx, `
			INSERT INTO audit_event_diffs
				(event_id, object_type, object_id, diff_type,
				 old_values, new_values, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.UUID(event.ID), string(d.ObjectType), d.ObjectID,
			string(d.Type), nullableJSON(d.OldValues), nullableJSON(d.NewValues),
			d.CreatedAt)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "insert audit diff")
		}
	}
	return nil
}

// ListForObject returns events that touched ref, newest first.
func (s *Store) ListForObject(ctx context.Context, tenantID id.TenantID, ref entity.Ref, q audit.ListQuery) ([]audit.Event, error) {
	return s.ListForObjects(ctx, tenantID, []entity.Ref{ref}, q)
}

// ListForObjects returns events that touched any of refs, newest first.
func (s *Store) ListForObjects(ctx context.Context, tenantID id.TenantID, refs []entity.Ref, lq audit.ListQuery) ([]audit.Event, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	q := tx.Resolve(ctx, s.db)

	args := []any{uuid.UUID(tenantID)}
	var pairs []string
	for _, r := range refs {
		args = append(args, string(r.Type), r.ID)
		pairs = append(pairs, fmt.Sprintf("(d.object_type = $%d AND d.object_id = $%d)",
			len(args)-1, len(args)))
	}

	query := `
		SELECT DISTINCT e.id, e.event_type, e.tenant_id, e.actor_id,
			e.actor_name, e.actor_source, e.client_ip, e.user_agent,
			e.request_id, e.created_at
		FROM audit_events e
		JOIN audit_event_diffs d ON d.event_id = e.id
		WHERE e.tenant_id = $1 AND (` + strings.Join(pairs, " OR ") + `)`
	if !lq.IncludeEvaluated {
		query += ` AND e.event_type NOT LIKE '%-evaluated'`
	}
	if !lq.Since.IsZero() {
		args = append(args, lq.Since)
		query += fmt.Sprintf(" AND e.created_at >= $%d", len(args))
	}
	query += " ORDER BY e.created_at DESC, e.id DESC"
	if lq.Limit > 0 {
		args = append(args, lq.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit events")
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit events")
	}

	for i := range events {
		diffs, err := s.loadDiffs(ctx, q, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Diffs = diffs
	}
	return events, nil
}

// DeleteOlderThan removes events created before cutoff; diffs cascade.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "audit retention sweep")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) loadDiffs(ctx context.Context, q tx.Querier, eventID id.AuditEventID) ([]audit.Diff, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT object_type, object_id, diff_type, old_values, new_values, created_at
		FROM audit_event_diffs
		WHERE event_id = $1
		ORDER BY object_type ASC, object_id ASC`,
		uuid.UUID(eventID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load audit diffs")
	}
	defer rows.Close()

	var diffs []audit.Diff
	for rows.Next() {
		var (
			d        audit.Diff
			objType  string
			diffType string
			oldVals  []byte
			newVals  []byte
		)
		if err := rows.Scan(&objType, &d.ObjectID, &diffType, &oldVals, &newVals, &d.CreatedAt); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan audit diff")
		}
		d.ObjectType = entity.Type(objType)
		d.Type = audit.DiffType(diffType)
		d.OldValues = oldVals
		d.NewValues = newVals
		diffs = append(diffs, d)
	}
	return diffs, rows.Err()
}

func scanEvent(rows *sql.Rows) (audit.Event, error) {
	var (
		ev        audit.Event
		eventID   uuid.UUID
		tenantID  uuid.UUID
		eventType string
		actorID   sql.Null[uuid.UUID]
		actor     requestcontext.Actor
	)
	if err := rows.Scan(&eventID, &eventType, &tenantID, &actorID,
		&actor.Name, &actor.Source, &actor.ClientIP, &actor.UserAgent,
		&ev.RequestID, &ev.CreatedAt); err != nil {
		return audit.Event{}, dErrors.Wrap(err, dErrors.CodeInternal, "scan audit event")
	}
	ev.ID = id.AuditEventID(eventID)
	ev.TenantID = id.TenantID(tenantID)
	ev.Type = audit.EventType(eventType)
	if actorID.Valid {
		actor.UserID = id.UserID(actorID.V)
	}
	ev.Actor = actor
	return ev, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
