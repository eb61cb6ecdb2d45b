// Package worker runs queued jobs: an Executor takes one claimed job
// through middleware and its handler and settles it with the store, and a
// Pool runs a bounded number of claim loops around it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/intake"
	"github.com/xraph/intake/backoff"
	"github.com/xraph/intake/ext"
	"github.com/xraph/intake/job"
	"github.com/xraph/intake/middleware"
)

// Executor runs one claimed job and reports its outcome to the store.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	policy     backoff.Policy
	storeRetry backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor. storeRetry paces retries of a failing
// ack or nack.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	policy backoff.Policy,
	storeRetry backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		policy:     policy,
		storeRetry: storeRetry,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs j and settles it:
//   - success: ack, then JobCompleted
//   - retryable failure with attempts left: nack with backoff, then JobRetrying
//   - anything else: nack as dead, then JobDead
//
// Observers run only after the store accepted the transition. Store
// failures are retried until ctx is cancelled; ErrLeaseLost means another
// worker owns the job now and is returned without retrying.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	start := time.Now()
	res := e.run(ctx, j)
	elapsed := time.Since(start)

	d := e.policy.Decide(res, j.Attempts, j.MaxAttempts)

	switch d.Action {
	case backoff.Ack:
		if err := e.settle(ctx, "ack", j, func(ctx context.Context) error {
			return e.store.AckJob(ctx, j.ID, j.WorkerID)
		}); err != nil {
			return err
		}
		j.State = job.StateCompleted
		e.extensions.EmitJobCompleted(ctx, j, elapsed)
		return nil

	case backoff.Retry:
		if err := e.settle(ctx, "nack", j, func(ctx context.Context) error {
			return e.store.NackJob(ctx, j.ID, j.WorkerID, d.Nack())
		}); err != nil {
			return err
		}
		j.ApplyNack(d.Nack(), time.Now().UTC())
		e.extensions.EmitJobRetrying(ctx, j, res.Err(), j.AvailableAt)
		e.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("job_kind", j.Kind),
			slog.Int("attempt", j.Attempts),
			slog.Int("max_attempts", j.MaxAttempts),
			slog.Duration("delay", d.Delay),
		)
		return res.Err()

	default:
		if err := e.settle(ctx, "nack", j, func(ctx context.Context) error {
			return e.store.NackJob(ctx, j.ID, j.WorkerID, d.Nack())
		}); err != nil {
			return err
		}
		j.ApplyNack(d.Nack(), time.Now().UTC())
		e.extensions.EmitJobDead(ctx, j, res.Err())
		e.logger.Warn("job is dead",
			slog.String("job_id", j.ID.String()),
			slog.String("job_kind", j.Kind),
			slog.Int("attempts", j.Attempts),
			slog.Bool("retryable", res.Retryable()),
			slog.String("error", res.Reason()),
		)
		return res.Err()
	}
}

// run invokes the handler for j's kind through the middleware chain. An
// unknown kind is a permanent failure.
func (e *Executor) run(ctx context.Context, j *job.Job) job.Result {
	handler, ok := e.registry.Get(j.Kind)
	if !ok {
		return job.Permanent(fmt.Errorf("%w: %q", intake.ErrUnknownKind, j.Kind))
	}
	return e.mw(ctx, j, func(ctx context.Context) job.Result {
		return handler(ctx, j.Payload)
	})
}

// settle retries op until it succeeds, the lease is gone, or ctx ends.
func (e *Executor) settle(ctx context.Context, op string, j *job.Job, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		// An abandoned job is left active for lease recovery.
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, intake.ErrLeaseLost), errors.Is(err, intake.ErrJobNotFound):
			e.logger.Warn("job lease lost before "+op,
				slog.String("job_id", j.ID.String()),
				slog.String("worker_id", j.WorkerID.String()),
			)
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		}

		e.extensions.EmitStoreUnavailable(ctx, op, err)
		delay := e.storeRetry.Delay(attempt)
		e.logger.Warn("store unavailable, retrying "+op,
			slog.String("job_id", j.ID.String()),
			slog.Int("try", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
