// Package engine wires the queue together: it builds the job registry,
// the observer registry, the middleware chain, the executor and the worker
// pool from a Dispatcher, and provides the producer API.
//
// The engine package exists to break an import cycle: the root intake
// package defines Entity and the sentinel errors (imported by job, worker
// and the stores) and so cannot import those packages back.
//
//	d, err := intake.New(
//	    intake.WithStore(pgStore),
//	    intake.WithConcurrency(5),
//	)
//
//	eng, err := engine.Build(d,
//	    engine.WithMetricsRegisterer(prometheus.DefaultRegisterer),
//	)
//	engine.Register(eng, notify.ConfirmationDefinition(sender, logger))
//
//	jobID, err := eng.Submit(ctx, p.Confirmation()) // p is a *patient.Patient
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/intake"
	"github.com/xraph/intake/backoff"
	"github.com/xraph/intake/dlq"
	"github.com/xraph/intake/ext"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
	mw "github.com/xraph/intake/middleware"
	"github.com/xraph/intake/observability"
	"github.com/xraph/intake/worker"
)

const instrumentationName = "github.com/xraph/intake"

// Engine wraps a Dispatcher with typed subsystem access.
// Use Build() to create one from a Dispatcher.
type Engine struct {
	d          *intake.Dispatcher
	config     intake.Config
	extensions *ext.Registry
	registry   *job.Registry
	jobStore   job.Store
	dlqService *dlq.Service
	pool       *worker.Pool
	mws        []mw.Middleware
	logger     *slog.Logger

	metricsReg prometheus.Registerer
	metricsExt *observability.MetricsExtension

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an observer with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware appends middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithMetricsRegisterer registers the Prometheus lifecycle counters with
// reg. Without it no Prometheus collectors are created.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(eng *Engine) {
		eng.metricsReg = reg
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Dispatcher.
// The Dispatcher's store must implement job.Store.
func Build(d *intake.Dispatcher, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	store := d.Store()

	if store == nil {
		return nil, intake.ErrNoStore
	}

	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("intake: store %T does not implement job.Store", store)
	}

	eng := &Engine{
		d:          d,
		config:     d.Config(),
		extensions: ext.NewRegistry(logger),
		registry:   job.NewRegistry(),
		jobStore:   js,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.metricsReg != nil {
		eng.metricsExt = observability.NewMetricsExtension(eng.metricsReg)
		eng.extensions.Register(eng.metricsExt)
	}

	eng.dlqService = dlq.NewService(js).WithEnqueuer(eng)

	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default chain: recover → tracing → metrics → logging → attempt → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Attempt(),
		mw.Timeout(eng.timeoutFor),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	cfg := eng.config
	storeRetry := backoff.NewJittered(cfg.StoreRetryMin, cfg.StoreRetryMax)
	policy := backoff.NewPolicy(backoff.NewExponential(cfg.BackoffBase, cfg.BackoffMax))
	executor := worker.NewExecutor(eng.registry, eng.extensions, js, policy, storeRetry, logger, allMws...)

	eng.pool = worker.NewPool(js, executor, eng.extensions, logger,
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithLeaseDuration(cfg.LeaseDuration),
		worker.WithHeartbeatInterval(cfg.Heartbeat()),
		worker.WithReapInterval(cfg.ReapInterval),
		worker.WithShutdownTimeout(cfg.ShutdownTimeout),
		worker.WithStoreRetry(storeRetry),
	)

	// Wire back into the Dispatcher.
	d.SetPool(eng.pool)
	d.SetExtensions(eng.extensions)

	return eng, nil
}

func (eng *Engine) timeoutFor(kind string) time.Duration {
	opts, ok := eng.registry.Options(kind)
	if !ok {
		return 0
	}
	return opts.Timeout
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue marshals payload, builds a job of kind and enqueues it.
func Enqueue[T any](ctx context.Context, eng *Engine, kind string, payload T) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", kind, err)
	}
	j := eng.newJob(kind, data)
	if err := eng.Enqueue(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Submit enqueues a confirmation email for a newly registered patient.
// The job is durable once Submit returns nil.
func (eng *Engine) Submit(ctx context.Context, p job.ConfirmationPayload) (id.JobID, error) {
	j, err := eng.BuildJob(p)
	if err != nil {
		return id.Nil, err
	}
	if err := eng.Enqueue(ctx, j); err != nil {
		return id.Nil, err
	}
	return j.ID, nil
}

// BuildJob validates p and builds its confirmation job without pushing it,
// for callers that commit the job in their own transaction.
func (eng *Engine) BuildJob(p job.ConfirmationPayload) (*job.Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return eng.newJob(job.KindConfirmationEmail, data), nil
}

func (eng *Engine) newJob(kind string, payload []byte) *job.Job {
	maxAttempts := eng.config.MaxAttempts
	if opts, ok := eng.registry.Options(kind); ok && opts.MaxAttempts > 0 {
		maxAttempts = opts.MaxAttempts
	}
	return job.New(kind, payload, maxAttempts)
}

// Enqueue pushes a prepared job, notifies observers and wakes an idle
// worker.
func (eng *Engine) Enqueue(ctx context.Context, j *job.Job) error {
	if err := eng.jobStore.PushJob(ctx, j); err != nil {
		return fmt.Errorf("enqueue %s: %w", j.Kind, err)
	}
	eng.extensions.EmitJobEnqueued(ctx, j)
	eng.logger.Debug("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", j.Kind),
	)
	eng.pool.Wake()
	return nil
}

// Wake nudges idle workers after a job was committed outside Enqueue.
func (eng *Engine) Wake() { eng.pool.Wake() }

// Start begins processing jobs.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.d.Start(ctx)
}

// Stop drains the pool, notifies observers and closes the store.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.d.Stop(ctx)
}

// Extensions returns the observer registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Dispatcher returns the underlying Dispatcher.
func (eng *Engine) Dispatcher() *intake.Dispatcher { return eng.d }

// JobStore returns the queue store.
func (eng *Engine) JobStore() job.Store { return eng.jobStore }

// DLQService returns the dead job service.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }
