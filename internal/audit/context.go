package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"worksafe/internal/entity"
	"worksafe/internal/entity/session"
	"worksafe/internal/platform/metrics"
	id "worksafe/pkg/domain"
	dErrors "worksafe/pkg/domainerr"
	"worksafe/pkg/requestcontext"
)

// Store persists events inside the session's transaction and serves the
// read side of the audit trail.
type Store interface {
	// Append writes the event and its diffs. It must run against the
	// transaction carried by ctx so the event commits or rolls back with
	// the entity rows it describes.
	Append(ctx context.Context, event *Event) error
	// ListForObject returns events that touched the given object, newest
	// first.
	ListForObject(ctx context.Context, tenantID id.TenantID, ref entity.Ref, q ListQuery) ([]Event, error)
	// ListForObjects returns events that touched any of the given objects,
	// newest first. Used by the project-level audit trail.
	ListForObjects(ctx context.Context, tenantID id.TenantID, refs []entity.Ref, q ListQuery) ([]Event, error)
	// DeleteOlderThan removes events (and their diffs) created before the
	// cutoff. Retention sweep only.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ListQuery narrows an audit read.
type ListQuery struct {
	// IncludeEvaluated admits site-condition-evaluated events, which are
	// suppressed by default.
	IncludeEvaluated bool
	Since            time.Time
	Limit            int
}

// Sink receives sealed events after commit, best effort. The Kafka exporter
// implements it; a nil sink is valid.
type Sink interface {
	Publish(ctx context.Context, event *Event)
}

// State is the audit context lifecycle position.
type State int

const (
	StateOpen State = iota
	StateFlushed
	StateSealed
	StateAborted
)

// Context brackets one auditable unit of work. Open it before mutating,
// call Create exactly once with the event type, and Close on every exit
// path. Mutations left pending at Close without a Create abort the whole
// transaction.
type Context struct {
	sess    *session.Session
	tracker *Tracker
	store   Store

	logger *slog.Logger
	stats  *metrics.Metrics
	sink   Sink

	state          State
	priorAutoflush bool
	manual         []Diff
	event          *Event
}

// Option configures an audit context.
type Option func(*Context)

func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Context) { c.stats = m }
}

func WithSink(s Sink) Option {
	return func(c *Context) { c.sink = s }
}

// Open claims the session for a new audit scope. Opening a second context
// on the same session fails; the caller's transaction is untouched in that
// case.
func Open(sess *session.Session, store Store, opts ...Option) (*Context, error) {
	c := &Context{
		sess:    sess,
		tracker: NewTracker(sess.Registry()),
		store:   store,
		logger:  slog.Default(),
		state:   StateOpen,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := sess.MarkAuditOpen(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation,
			"audit context already open on this session")
	}
	c.priorAutoflush = sess.Autoflush()
	sess.SetAutoflush(false)
	return c, nil
}

// State returns the lifecycle position, for tests and diagnostics.
func (c *Context) State() State { return c.state }

// Event returns the sealed event, or nil before Create succeeds.
func (c *Context) Event() *Event { return c.event }

// RegisterManualDiff attaches a diff the change tracker cannot see, such as
// a bulk statement executed outside the session. NewValues and OldValues
// follow the same conventions as tracked diffs.
func (c *Context) RegisterManualDiff(objType entity.Type, objID uuid.UUID, diffType DiffType, oldValues, newValues []byte) {
	c.manual = append(c.manual, Diff{
		ObjectType: objType,
		ObjectID:   objID,
		Type:       diffType,
		OldValues:  oldValues,
		NewValues:  newValues,
	})
}

// Create synthesizes diffs from everything pending on the session, flushes,
// writes the event in the same transaction, and commits. After a successful
// Create the context is sealed and Close is a no-op.
func (c *Context) Create(eventType EventType) (*Event, error) {
	if c.state != StateOpen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation,
			"audit create on a non-open context")
	}

	ctx := c.sess.Context()
	now := requestcontext.Now(ctx)
	actor := requestcontext.ActorFrom(ctx)
	tenantID := requestcontext.TenantID(ctx)

	changes, err := c.sess.Pending()
	if err != nil {
		c.abort()
		return nil, err
	}
	diffs, err := c.tracker.Diffs(changes, now)
	if err != nil {
		c.abort()
		return nil, err
	}
	for i := range c.manual {
		c.manual[i].CreatedAt = now
	}
	diffs = append(diffs, c.manual...)
	if len(diffs) == 0 {
		c.abort()
		return nil, dErrors.New(dErrors.CodeInvariantViolation,
			"audit event would carry no diffs")
	}

	c.state = StateFlushed
	if err := c.sess.Flush(); err != nil {
		c.abort()
		return nil, err
	}

	event := &Event{
		ID:        id.NewAuditEventID(),
		Type:      eventType,
		TenantID:  tenantID,
		Actor:     actor,
		RequestID: requestcontext.RequestID(ctx),
		CreatedAt: now,
		Diffs:     diffs,
	}
	if err := c.store.Append(ctx, event); err != nil {
		c.abort()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append audit event")
	}
	if err := c.sess.Commit(); err != nil {
		c.abort()
		return nil, err
	}

	c.state = StateSealed
	c.event = event
	c.sess.SetAutoflush(c.priorAutoflush)
	c.sess.MarkAuditClosed()

	if c.stats != nil {
		c.stats.AuditEventsCommitted.WithLabelValues(string(eventType)).Inc()
		c.stats.AuditDiffsRecorded.Add(float64(len(diffs)))
	}
	c.logger.Info("audit event committed",
		"event_id", event.ID.String(),
		"event_type", string(eventType),
		"diffs", len(diffs))
	if c.sink != nil {
		c.sink.Publish(context.WithoutCancel(ctx), event)
	}
	return event, nil
}

// Close releases the scope. Sealed and aborted contexts pass through; an
// open context with pending mutations is the leaked-diffs failure, which
// rolls the transaction back and reports it. An open context with nothing
// pending rolls back silently, covering early error returns before any
// mutation happened.
func (c *Context) Close() error {
	switch c.state {
	case StateSealed, StateAborted:
		return nil
	}

	changes, pendErr := c.sess.Pending()
	leaked := pendErr == nil && !changes.Empty()
	leaked = leaked || len(c.manual) > 0

	c.abort()

	if leaked {
		n := len(changes.New) + len(changes.Dirty) + len(changes.Deleted) + len(c.manual)
		if c.stats != nil {
			c.stats.LeakedDiffAborts.Inc()
		}
		c.logger.Error("audit context closed with uncommitted diffs, rolling back",
			"pending", n)
		return dErrors.New(dErrors.CodeLeakedDiffs,
			"audit context closed with uncommitted diffs")
	}
	return pendErr
}

func (c *Context) abort() {
	if c.state == StateAborted || c.state == StateSealed {
		return
	}
	c.state = StateAborted
	if err := c.sess.Rollback(); err != nil {
		c.logger.Error("audit rollback failed", "error", err)
	}
	c.sess.SetAutoflush(c.priorAutoflush)
	c.sess.MarkAuditClosed()
}
