// Package audit implements the tamper-resistant diff log: the change
// tracker, the audit context that brackets a unit of work, and the event
// model both persist.
package audit

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/entity"
	id "worksafe/pkg/domain"
	"worksafe/pkg/requestcontext"
)

// EventType names what happened, per covered entity. The wire form is
// "<entity>-<action>", e.g. "work-package-created".
type EventType string

// Action is the verb half of an event type.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionArchived  Action = "archived"
	ActionDeleted   Action = "deleted"
	ActionEvaluated Action = "evaluated"
	ActionReopened  Action = "reopened"
	ActionCompleted Action = "completed"
)

// TypeFor derives the event type for an entity kind and action.
func TypeFor(t entity.Type, action Action) EventType {
	kebab := strings.ReplaceAll(string(t), "_", "-")
	return EventType(kebab + "-" + string(action))
}

// Commonly referenced event types. The full space is entity × action via
// TypeFor; these exist so call sites and tests read naturally.
const (
	EventWorkPackageCreated     EventType = "work-package-created"
	EventWorkPackageUpdated     EventType = "work-package-updated"
	EventWorkPackageArchived    EventType = "work-package-archived"
	EventSiteConditionEvaluated EventType = "site-condition-evaluated"
	EventSystemMigration        EventType = "system-migration"
)

// IsEvaluated reports whether the event came from the site-condition
// evaluator; such events are suppressed from user-facing project audit views
// but kept in storage.
func (t EventType) IsEvaluated() bool {
	return strings.HasSuffix(string(t), "-"+string(ActionEvaluated))
}

// DiffType classifies one entity diff within an event.
type DiffType string

const (
	DiffCreated  DiffType = "created"
	DiffUpdated  DiffType = "updated"
	DiffArchived DiffType = "archived"
	DiffDeleted  DiffType = "deleted"
)

// Diff is the old/new projection of a single entity's change within an
// event. For scalar columns old/new are JSON dicts of changed fields only;
// for JSON document columns the dict values are RFC 6902 patch lists,
// forward in new and reverse in old.
type Diff struct {
	ObjectType entity.Type
	ObjectID   uuid.UUID
	Type       DiffType
	OldValues  json.RawMessage // null for created
	NewValues  json.RawMessage // null for deleted
	CreatedAt  time.Time
}

// Event is one committed audit scope: the actor, when, and every diff the
// scope produced. An event never exists without at least one diff.
type Event struct {
	ID        id.AuditEventID
	Type      EventType
	TenantID  id.TenantID
	Actor     requestcontext.Actor
	RequestID string
	CreatedAt time.Time
	Diffs     []Diff
}
