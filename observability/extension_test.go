package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/intake/ext"
	"github.com/xraph/intake/job"
	"github.com/xraph/intake/observability"
)

func newTestExtension(t *testing.T) (*observability.MetricsExtension, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return observability.NewMetricsExtension(reg), reg
}

func newTestJob() *job.Job {
	return job.New(job.KindConfirmationEmail, nil, 3)
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension(t)
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_JobLifecycle(t *testing.T) {
	e, _ := newTestExtension(t)
	ctx := context.Background()
	j := newTestJob()
	kind := job.KindConfirmationEmail

	_ = e.OnJobEnqueued(ctx, j)
	_ = e.OnJobStarted(ctx, j)
	_ = e.OnJobRetrying(ctx, j, errors.New("421"), time.Now())
	_ = e.OnJobStarted(ctx, j)
	_ = e.OnJobCompleted(ctx, j, 120*time.Millisecond)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"enqueued", e.JobEnqueued.WithLabelValues(kind), 1},
		{"started", e.JobStarted.WithLabelValues(kind), 2},
		{"retried", e.JobRetried.WithLabelValues(kind), 1},
		{"completed", e.JobCompleted.WithLabelValues(kind), 1},
		{"dead", e.JobDead.WithLabelValues(kind), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestMetricsExtension_Dead(t *testing.T) {
	e, _ := newTestExtension(t)
	_ = e.OnJobDead(context.Background(), newTestJob(), errors.New("550"))
	if got := testutil.ToFloat64(e.JobDead.WithLabelValues(job.KindConfirmationEmail)); got != 1 {
		t.Errorf("dead = %v, want 1", got)
	}
}

func TestMetricsExtension_QueueHealth(t *testing.T) {
	e, _ := newTestExtension(t)
	ctx := context.Background()

	_ = e.OnLeasesRecovered(ctx, 3)
	_ = e.OnStoreUnavailable(ctx, "claim", errors.New("down"))
	_ = e.OnStoreUnavailable(ctx, "claim", errors.New("down"))
	_ = e.OnStoreUnavailable(ctx, "ack", errors.New("down"))

	if got := testutil.ToFloat64(e.LeasesRecovered); got != 3 {
		t.Errorf("leases recovered = %v, want 3", got)
	}
	if got := testutil.ToFloat64(e.StoreUnavailable.WithLabelValues("claim")); got != 2 {
		t.Errorf("claim errors = %v, want 2", got)
	}
}

func TestMetricsExtension_RegisteredAsObserver(t *testing.T) {
	e, reg := newTestExtension(t)
	r := ext.NewRegistry(nil)
	r.Register(e)

	r.EmitJobEnqueued(context.Background(), newTestJob())

	n, err := testutil.GatherAndCount(reg, "intake_job_enqueued_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Errorf("series = %d, want 1", n)
	}
}

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := observability.SetupTracing(context.Background(), observability.TracingConfig{})
	if err != nil {
		t.Fatalf("SetupTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
