package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// Storer is the lifecycle surface of a queue store. The full contract is
// job.Store; the Dispatcher only needs to migrate, ping and close it.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// poolRunner is an internal interface for worker pool lifecycle.
type poolRunner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for observer lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Dispatcher owns the queue configuration, the store handle and, once
// engine.Build has run, the worker pool. It is the handle returned by
// initialisation and consumed by shutdown.
type Dispatcher struct {
	config     Config
	logger     *slog.Logger
	store      Storer
	extensions extensionEmitter
	pool       poolRunner

	started bool
}

// New creates a Dispatcher with the given options.
func New(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.config.Concurrency < 1 {
		return nil, fmt.Errorf("intake: concurrency must be at least 1, got %d", d.config.Concurrency)
	}
	if d.config.MaxAttempts < 1 {
		return nil, fmt.Errorf("intake: max attempts must be at least 1, got %d", d.config.MaxAttempts)
	}
	if d.config.LeaseDuration <= 0 {
		return nil, fmt.Errorf("intake: lease duration must be positive")
	}
	return d, nil
}

// Logger returns the dispatcher's logger.
func (d *Dispatcher) Logger() *slog.Logger { return d.logger }

// Store returns the dispatcher's store.
func (d *Dispatcher) Store() Storer { return d.store }

// Config returns a copy of the dispatcher's configuration.
func (d *Dispatcher) Config() Config { return d.config }

// SetPool sets the worker pool (called by engine.Build).
func (d *Dispatcher) SetPool(p poolRunner) { d.pool = p }

// SetExtensions sets the observer emitter (called by engine.Build).
func (d *Dispatcher) SetExtensions(e extensionEmitter) { d.extensions = e }

// Start begins job processing.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.pool == nil {
		return ErrNoStore
	}
	if d.started {
		return ErrAlreadyStarted
	}
	if err := d.pool.Start(ctx); err != nil {
		return err
	}
	d.started = true
	return nil
}

// Stop drains the worker pool, notifies observers and closes the store.
// It is safe to call on a dispatcher that never started.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.pool != nil && d.started {
		if err := d.pool.Stop(ctx); err != nil {
			d.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
		d.started = false
	}
	if d.extensions != nil {
		d.extensions.EmitShutdown(ctx)
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(d *Dispatcher) error {
		d.config = cfg
		return nil
	}
}

// WithConcurrency sets the maximum number of jobs processed at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) error {
		d.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how long idle workers wait between claims.
func WithPollInterval(p time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.PollInterval = p
		return nil
	}
}

// WithShutdownTimeout bounds how long Stop drains in-flight jobs.
func WithShutdownTimeout(t time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.ShutdownTimeout = t
		return nil
	}
}

// WithLeaseDuration sets how long a claim is valid without a heartbeat.
func WithLeaseDuration(l time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.LeaseDuration = l
		return nil
	}
}

// WithReapInterval sets how often expired leases are recovered.
func WithReapInterval(r time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.ReapInterval = r
		return nil
	}
}

// WithMaxAttempts sets the attempt budget for submitted jobs.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) error {
		d.config.MaxAttempts = n
		return nil
	}
}

// WithBackoff sets the base and cap of the exponential retry delay.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(d *Dispatcher) error {
		d.config.BackoffBase = base
		d.config.BackoffMax = maxDelay
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// WithStore sets the queue store. It must also implement job.Store for
// engine.Build to accept it.
func WithStore(s Storer) Option {
	return func(d *Dispatcher) error {
		d.store = s
		return nil
	}
}
