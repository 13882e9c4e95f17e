package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the core.
type Metrics struct {
	AuditEventsCommitted *prometheus.CounterVec
	AuditDiffsRecorded   prometheus.Counter
	LeakedDiffAborts     prometheus.Counter

	ReactorQueueDepth   prometheus.Gauge
	TriggersCoalesced   prometheus.Counter
	MetricComputations  *prometheus.CounterVec
	ComputationDuration prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AuditEventsCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worksafe_audit_events_committed_total",
			Help: "Audit events committed, by event type",
		}, []string{"event_type"}),
		AuditDiffsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worksafe_audit_diffs_recorded_total",
			Help: "Individual entity diffs attached to audit events",
		}),
		LeakedDiffAborts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worksafe_audit_leaked_diff_aborts_total",
			Help: "Audit scopes rolled back because diffs were pending at exit",
		}),
		ReactorQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worksafe_reactor_queue_depth",
			Help: "Triggers currently waiting in the reactor queue",
		}),
		TriggersCoalesced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worksafe_reactor_triggers_coalesced_total",
			Help: "Triggers dropped by (kind, entity) last-write-wins coalescing",
		}),
		MetricComputations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worksafe_risk_computations_total",
			Help: "Risk metric computations, by metric name and outcome",
		}, []string{"metric", "outcome"}),
		ComputationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worksafe_risk_computation_duration_seconds",
			Help:    "Wall time of individual risk metric computations",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// ObserveComputation records one metric computation outcome.
func (m *Metrics) ObserveComputation(metric, outcome string, d time.Duration) {
	m.MetricComputations.WithLabelValues(metric, outcome).Inc()
	m.ComputationDuration.Observe(d.Seconds())
}
