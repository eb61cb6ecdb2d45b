package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/intake/ext"
	"github.com/xraph/intake/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.JobEnqueued      = (*MetricsExtension)(nil)
	_ ext.JobStarted       = (*MetricsExtension)(nil)
	_ ext.JobCompleted     = (*MetricsExtension)(nil)
	_ ext.JobRetrying      = (*MetricsExtension)(nil)
	_ ext.JobDead          = (*MetricsExtension)(nil)
	_ ext.LeasesRecovered  = (*MetricsExtension)(nil)
	_ ext.StoreUnavailable = (*MetricsExtension)(nil)
)

// MetricsExtension records queue lifecycle counters as Prometheus
// metrics. Register it as an observer to track enqueue, completion,
// retry and dead rates, lease recoveries and store outages.
type MetricsExtension struct {
	JobEnqueued      *prometheus.CounterVec
	JobStarted       *prometheus.CounterVec
	JobCompleted     *prometheus.CounterVec
	JobRetried       *prometheus.CounterVec
	JobDead          *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	LeasesRecovered  prometheus.Counter
	StoreUnavailable *prometheus.CounterVec
}

// NewMetricsExtension creates a MetricsExtension and registers its
// collectors with reg. It panics if a collector is already registered,
// like prometheus.MustRegister.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	kind := []string{"kind"}
	m := &MetricsExtension{
		JobEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake", Subsystem: "job", Name: "enqueued_total",
			Help: "Jobs pushed to the queue.",
		}, kind),
		JobStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake", Subsystem: "job", Name: "started_total",
			Help: "Job attempts started by a worker.",
		}, kind),
		JobCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake", Subsystem: "job", Name: "completed_total",
			Help: "Jobs acknowledged after a successful attempt.",
		}, kind),
		JobRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake", Subsystem: "job", Name: "retried_total",
			Help: "Failed attempts scheduled for retry.",
		}, kind),
		JobDead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake", Subsystem: "job", Name: "dead_total",
			Help: "Jobs moved to dead.",
		}, kind),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake", Subsystem: "job", Name: "duration_seconds",
			Help:    "Duration of successful job attempts.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, kind),
		LeasesRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "intake", Subsystem: "queue", Name: "leases_recovered_total",
			Help: "Active jobs returned to waiting after their lease lapsed.",
		}),
		StoreUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake", Subsystem: "queue", Name: "store_errors_total",
			Help: "Failed queue store operations, by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.JobEnqueued, m.JobStarted, m.JobCompleted, m.JobRetried,
		m.JobDead, m.JobDuration, m.LeasesRecovered, m.StoreUnavailable,
	)
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(_ context.Context, j *job.Job) error {
	m.JobEnqueued.WithLabelValues(j.Kind).Inc()
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(_ context.Context, j *job.Job) error {
	m.JobStarted.WithLabelValues(j.Kind).Inc()
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	m.JobCompleted.WithLabelValues(j.Kind).Inc()
	m.JobDuration.WithLabelValues(j.Kind).Observe(elapsed.Seconds())
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(_ context.Context, j *job.Job, _ error, _ time.Time) error {
	m.JobRetried.WithLabelValues(j.Kind).Inc()
	return nil
}

// OnJobDead implements ext.JobDead.
func (m *MetricsExtension) OnJobDead(_ context.Context, j *job.Job, _ error) error {
	m.JobDead.WithLabelValues(j.Kind).Inc()
	return nil
}

// ── Queue health hooks ──────────────────────────────

// OnLeasesRecovered implements ext.LeasesRecovered.
func (m *MetricsExtension) OnLeasesRecovered(_ context.Context, count int64) error {
	m.LeasesRecovered.Add(float64(count))
	return nil
}

// OnStoreUnavailable implements ext.StoreUnavailable.
func (m *MetricsExtension) OnStoreUnavailable(_ context.Context, op string, _ error) error {
	m.StoreUnavailable.WithLabelValues(op).Inc()
	return nil
}
