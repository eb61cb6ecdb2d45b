// Package ext defines the observer hooks of the job queue. Observers are
// notified synchronously from the worker goroutine, after the store has
// acknowledged the transition, so a hook never sees a state the store did
// not commit.
//
// Each hook is a separate interface; an observer implements only the
// events it cares about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/intake/job"
)

// Extension is the base interface all observers implement.
type Extension interface {
	// Name identifies the observer in logs.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job has been pushed durably.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called after a worker claims a job, before its handler runs.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a successful job has been acked.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called after a failed job has been nacked with a delay.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, err error, availableAt time.Time) error
}

// JobDead is called after a job has been nacked as dead.
type JobDead interface {
	OnJobDead(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Queue health hooks
// ──────────────────────────────────────────────────

// LeasesRecovered is called when the reaper returns abandoned jobs to
// waiting.
type LeasesRecovered interface {
	OnLeasesRecovered(ctx context.Context, count int64) error
}

// StoreUnavailable is called each time a store operation fails and the
// worker backs off before retrying it.
type StoreUnavailable interface {
	OnStoreUnavailable(ctx context.Context, op string, err error) error
}

// Shutdown is called once the pool has stopped.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
