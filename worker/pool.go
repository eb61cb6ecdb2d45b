package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/intake"
	"github.com/xraph/intake/backoff"
	"github.com/xraph/intake/ext"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

// activeJob is an in-flight job tracked for heartbeats and abandonment.
type activeJob struct {
	workerID id.WorkerID
	cancel   context.CancelFunc
}

// Pool runs up to concurrency claim loops against the store. Each loop
// has its own worker ID, claims one job at a time and runs it to
// completion through the Executor before claiming again.
type Pool struct {
	store      job.Store
	executor   *Executor
	extensions *ext.Registry
	logger     *slog.Logger
	poolID     id.WorkerID

	concurrency       int
	pollInterval      time.Duration
	leaseDuration     time.Duration
	heartbeatInterval time.Duration
	reapInterval      time.Duration
	shutdownTimeout   time.Duration
	storeRetry        backoff.Strategy

	mu      sync.Mutex
	running bool

	stopCh  chan struct{} // closed by Stop: no new claims
	bgStop  chan struct{} // closed after workers exit: stops heartbeat/reaper
	wakeCh  chan struct{}
	workers sync.WaitGroup
	bg      sync.WaitGroup

	// abandonCtx scopes every handler run and store call. Cancelling it
	// hands in-flight jobs over to lease recovery.
	abandonCtx context.Context
	abandon    context.CancelFunc

	// claimCtx is cancelled as soon as Stop begins, so a claim still in
	// flight at the store is aborted rather than committed.
	claimCtx     context.Context
	cancelClaims context.CancelFunc

	activeMu sync.Mutex
	active   map[string]activeJob
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of claim loops.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long an idle loop waits before claiming again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithLeaseDuration sets the lease requested on every claim.
func WithLeaseDuration(d time.Duration) PoolOption {
	return func(p *Pool) { p.leaseDuration = d }
}

// WithHeartbeatInterval sets how often in-flight leases are extended.
// Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithReapInterval sets how often expired leases are requeued. Zero
// disables the reaper.
func WithReapInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.reapInterval = d }
}

// WithShutdownTimeout bounds how long Stop drains in-flight jobs.
func WithShutdownTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.shutdownTimeout = d }
}

// WithStoreRetry sets the delay strategy between failed claims.
func WithStoreRetry(s backoff.Strategy) PoolOption {
	return func(p *Pool) { p.storeRetry = s }
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:           store,
		executor:        executor,
		extensions:      extensions,
		logger:          logger,
		poolID:          id.NewWorkerID(),
		concurrency:     5,
		pollInterval:    500 * time.Millisecond,
		leaseDuration:   30 * time.Second,
		reapInterval:    10 * time.Second,
		shutdownTimeout: 30 * time.Second,
		storeRetry:      backoff.NewJittered(250*time.Millisecond, 15*time.Second),
		active:          make(map[string]activeJob),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the pool's identifier, used in logs.
func (p *Pool) ID() id.WorkerID { return p.poolID }

// Start launches the claim loops plus the heartbeat and reaper loops. It
// returns immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return intake.ErrAlreadyStarted
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.bgStop = make(chan struct{})
	p.wakeCh = make(chan struct{}, p.concurrency)
	p.abandonCtx, p.abandon = context.WithCancel(context.WithoutCancel(ctx))
	p.claimCtx, p.cancelClaims = context.WithCancel(p.abandonCtx)

	p.logger.Info("worker pool starting",
		slog.String("pool_id", p.poolID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Duration("lease", p.leaseDuration),
	)

	for range p.concurrency {
		p.workers.Add(1)
		go p.claimLoop(id.NewWorkerID())
	}
	if p.heartbeatInterval > 0 {
		p.bg.Add(1)
		go p.every(p.heartbeatInterval, p.extendLeases)
	}
	if p.reapInterval > 0 {
		p.bg.Add(1)
		go p.every(p.reapInterval, p.requeueExpired)
	}
	return nil
}

// Stop stops claiming and waits for in-flight jobs to be settled. If the
// shutdown timeout or ctx runs out first, in-flight jobs are abandoned:
// their handlers and pending store calls are cancelled and the jobs are
// recovered by the reaper once their leases lapse.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("pool_id", p.poolID.String()))
	close(p.stopCh)
	p.cancelClaims()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.shutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		p.logger.Info("worker pool drained")
	case <-timer.C:
		p.abandonActive(done)
	case <-ctx.Done():
		p.abandonActive(done)
	}

	close(p.bgStop)
	p.bg.Wait()
	p.abandon()
	return nil
}

// abandonActive cancels every in-flight job and gives the loops a moment
// to notice. Handlers that ignore their context are left running.
func (p *Pool) abandonActive(done <-chan struct{}) {
	p.activeMu.Lock()
	n := len(p.active)
	p.activeMu.Unlock()

	p.logger.Warn("worker pool drain timed out, abandoning jobs to lease recovery",
		slog.Int("in_flight", n),
	)
	p.abandon()

	select {
	case <-done:
	case <-time.After(time.Second):
		p.logger.Warn("handlers still running after abandonment")
	}
}

// Wake nudges idle loops to claim immediately. It never blocks.
func (p *Pool) Wake() {
	p.mu.Lock()
	ch := p.wakeCh
	running := p.running
	p.mu.Unlock()
	if !running {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// InFlight returns the number of jobs currently being run.
func (p *Pool) InFlight() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.active)
}

func (p *Pool) claimLoop(workerID id.WorkerID) {
	defer p.workers.Done()

	failures := 0
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		j, err := p.store.ClaimJob(p.claimCtx, workerID, p.leaseDuration)
		if err != nil {
			if p.claimCtx.Err() != nil {
				return
			}
			failures++
			p.extensions.EmitStoreUnavailable(p.abandonCtx, "claim", err)
			delay := p.storeRetry.Delay(failures)
			p.logger.Error("claim failed",
				slog.String("worker_id", workerID.String()),
				slog.Int("consecutive_failures", failures),
				slog.Duration("retry_in", delay),
				slog.String("error", err.Error()),
			)
			p.wait(delay)
			continue
		}
		failures = 0

		if j == nil {
			p.wait(p.pollInterval)
			continue
		}
		p.run(workerID, j)
	}
}

func (p *Pool) run(workerID id.WorkerID, j *job.Job) {
	ctx, cancel := context.WithCancel(p.abandonCtx)
	defer cancel()

	// Stores return the claim with WorkerID set; this guards backends
	// that omit it.
	j.WorkerID = workerID
	p.track(j.ID.String(), activeJob{workerID: workerID, cancel: cancel})
	defer p.untrack(j.ID.String())

	p.extensions.EmitJobStarted(ctx, j)

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Debug("job attempt ended with error",
			slog.String("job_id", j.ID.String()),
			slog.String("job_kind", j.Kind),
			slog.String("error", err.Error()),
		)
	}
}

// wait sleeps for d or until the pool is stopping or woken.
func (p *Pool) wait(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.wakeCh:
	case <-p.stopCh:
	}
}

func (p *Pool) every(interval time.Duration, fn func(context.Context)) {
	defer p.bg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.bgStop:
			return
		case <-ticker.C:
			fn(p.abandonCtx)
		}
	}
}

func (p *Pool) extendLeases(ctx context.Context) {
	p.activeMu.Lock()
	snapshot := make(map[string]activeJob, len(p.active))
	for k, v := range p.active {
		snapshot[k] = v
	}
	p.activeMu.Unlock()

	for jobIDStr, a := range snapshot {
		jobID, err := id.ParseJobID(jobIDStr)
		if err != nil {
			continue
		}
		err = p.store.ExtendLease(ctx, jobID, a.workerID, p.leaseDuration)
		switch {
		case err == nil:
		case errors.Is(err, intake.ErrLeaseLost), errors.Is(err, intake.ErrJobNotFound):
			p.logger.Warn("lease lost while running, cancelling handler",
				slog.String("job_id", jobIDStr),
				slog.String("worker_id", a.workerID.String()),
			)
			a.cancel()
		default:
			p.extensions.EmitStoreUnavailable(ctx, "extend_lease", err)
			p.logger.Warn("lease extension failed",
				slog.String("job_id", jobIDStr),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pool) requeueExpired(ctx context.Context) {
	n, err := p.store.RequeueExpired(ctx)
	if err != nil {
		p.extensions.EmitStoreUnavailable(ctx, "requeue_expired", err)
		p.logger.Error("lease recovery failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		p.logger.Info("recovered expired leases", slog.Int64("count", n))
		p.extensions.EmitLeasesRecovered(ctx, n)
	}
}

func (p *Pool) track(jobID string, a activeJob) {
	p.activeMu.Lock()
	p.active[jobID] = a
	p.activeMu.Unlock()
}

func (p *Pool) untrack(jobID string) {
	p.activeMu.Lock()
	delete(p.active, jobID)
	p.activeMu.Unlock()
}
