package audit

import (
	"context"
	"log/slog"
	"time"

	"worksafe/internal/platform/config"
)

// Sweeper enforces the tenant audit retention policy by deleting events
// older than the configured horizon. With retention set to forever it is a
// permanent no-op.
type Sweeper struct {
	store     Store
	retention config.AuditRetention
	interval  time.Duration
	logger    *slog.Logger
}

// NewSweeper builds a sweeper that runs every interval.
func NewSweeper(store Store, retention config.AuditRetention, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, retention: retention, interval: interval, logger: logger}
}

// Run blocks until ctx is done, sweeping on each tick.
func (s *Sweeper) Run(ctx context.Context) {
	if s.retention.Forever() {
		s.logger.Info("audit retention is forever, sweeper idle")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes everything past the horizon once.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retention.Days)
	removed, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("audit retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("audit retention sweep",
			"removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	}
}
