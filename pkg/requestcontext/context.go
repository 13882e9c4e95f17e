// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets values; services and stores read them. Keeping this package
// free of net/http lets workers and tests inject the same values without a
// request in flight.
//
// Usage in services (read values):
//
//	tenantID := requestcontext.TenantID(ctx)
//	actor := requestcontext.Actor(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithTenantID(ctx, tenantID)
//	ctx = requestcontext.WithActor(ctx, actor)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "worksafe/pkg/domain"
)

// Actor identifies who performed an operation. It is recorded on every audit
// event. Actors are usually end users resolved from auth claims; system
// processes (migrations, the evaluator, the retention sweep) use a Source of
// "system" and an empty UserID.
type Actor struct {
	UserID    id.UserID
	Name      string
	Source    string // "user" | "system" | "integration"
	ClientIP  string
	UserAgent string
}

// IsSystem reports whether the actor is an internal process rather than an
// end user.
func (a Actor) IsSystem() bool { return a.Source == "system" }

// SystemActor is the actor recorded for internally initiated mutations.
func SystemActor(name string) Actor {
	return Actor{Name: name, Source: "system"}
}

type (
	tenantIDKey    struct{}
	actorKey       struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyTenantID    = tenantIDKey{}
	ContextKeyActor       = actorKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// TenantID retrieves the caller's tenant from the context.
// Returns the zero value (nil UUID) if not set.
func TenantID(ctx context.Context) id.TenantID {
	if tenantID, ok := ctx.Value(ContextKeyTenantID).(id.TenantID); ok {
		return tenantID
	}
	return id.TenantID{}
}

// WithTenantID injects a tenant ID into the context.
func WithTenantID(ctx context.Context, tenantID id.TenantID) context.Context {
	return context.WithValue(ctx, ContextKeyTenantID, tenantID)
}

// Actor retrieves the acting identity from the context.
func ActorFrom(ctx context.Context) Actor {
	if actor, ok := ctx.Value(ContextKeyActor).(Actor); ok {
		return actor
	}
	return Actor{}
}

// WithActor injects the acting identity into the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, sweeps, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
