package risk

import (
	"context"
	"log/slog"
	"time"

	"worksafe/internal/entity"
	"worksafe/internal/entity/store"
	id "worksafe/pkg/domain"
	"worksafe/pkg/requestcontext"
)

// TenantSource enumerates the tenants a full recompute must cover.
type TenantSource interface {
	Tenants(ctx context.Context) ([]id.TenantID, error)
}

// Nightly enqueues a full-fleet recompute once a day. Triggers go through
// the normal queue so coalescing, locking and dependency ordering apply;
// the pass also repairs any trigger lost to best-effort enqueueing during
// the day.
type Nightly struct {
	reader  store.Reader
	tenants TenantSource
	queue   Enqueuer
	hour    int
	logger  *slog.Logger
}

func NewNightly(reader store.Reader, tenants TenantSource, queue Enqueuer, logger *slog.Logger) *Nightly {
	return &Nightly{
		reader:  reader,
		tenants: tenants,
		queue:   queue,
		hour:    2,
		logger:  logger,
	}
}

// Run blocks until ctx ends, firing once per day at the configured UTC hour.
func (n *Nightly) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.untilNextRun(time.Now().UTC())):
		}
		if err := n.RecomputeAll(ctx); err != nil {
			n.logger.Error("nightly recompute", "error", err)
		}
	}
}

func (n *Nightly) untilNextRun(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), n.hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// RecomputeAll enqueues one trigger per entity per tenant.
func (n *Nightly) RecomputeAll(ctx context.Context) error {
	tenants, err := n.tenants.Tenants(ctx)
	if err != nil {
		return err
	}
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tctx := requestcontext.WithTenantID(ctx, tenantID)
		tctx = requestcontext.WithActor(tctx, requestcontext.SystemActor("nightly-recompute"))
		if err := n.recomputeTenant(tctx, tenantID); err != nil {
			n.logger.Error("nightly recompute tenant", "tenant_id", tenantID, "error", err)
		}
	}
	return nil
}

func (n *Nightly) recomputeTenant(ctx context.Context, tenantID id.TenantID) error {
	kinds := []struct {
		entityType entity.Type
		trigger    TriggerKind
	}{
		{entity.TypeContractor, TriggerContractorChanged},
		{entity.TypeSupervisor, TriggerSupervisorChanged},
		{entity.TypeIncident, TriggerIncidentChanged},
		{entity.TypeTask, TriggerTaskChanged},
		{entity.TypeLocation, TriggerLocationChanged},
		{entity.TypeWorkPackage, TriggerProjectChanged},
	}
	now := time.Now().UTC()
	var enqueued int
	for _, k := range kinds {
		recs, err := n.reader.List(ctx, store.Filter{Type: k.entityType})
		if err != nil {
			return err
		}
		for _, rec := range recs {
			t := Trigger{
				Kind:       k.trigger,
				TenantID:   tenantID,
				EntityID:   rec.Ref().ID,
				EnqueuedAt: now,
			}
			if err := n.queue.Enqueue(ctx, t); err != nil {
				return err
			}
			enqueued++
		}
	}
	n.logger.Info("nightly recompute enqueued", "tenant_id", tenantID, "triggers", enqueued)
	return nil
}
