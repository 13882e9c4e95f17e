package testutil

import (
	"context"
	"time"

	id "worksafe/pkg/domain"
	"worksafe/pkg/requestcontext"
)

// Context returns a context carrying a fresh tenant, a named test actor,
// and a fixed clock so assertions on timestamps are deterministic.
func Context(at time.Time) (context.Context, id.TenantID, requestcontext.Actor) {
	tenantID := id.NewTenantID()
	actor := requestcontext.Actor{
		UserID: id.NewUserID(),
		Name:   "test-actor",
		Source: "user",
	}
	ctx := context.Background()
	ctx = requestcontext.WithTenantID(ctx, tenantID)
	ctx = requestcontext.WithActor(ctx, actor)
	ctx = requestcontext.WithTime(ctx, at)
	return ctx, tenantID, actor
}

// ContextForTenant returns a context bound to an existing tenant.
func ContextForTenant(tenantID id.TenantID, at time.Time) context.Context {
	ctx := context.Background()
	ctx = requestcontext.WithTenantID(ctx, tenantID)
	ctx = requestcontext.WithActor(ctx, requestcontext.Actor{
		UserID: id.NewUserID(),
		Name:   "test-actor",
		Source: "user",
	})
	ctx = requestcontext.WithTime(ctx, at)
	return ctx
}
