package job

import (
	"context"
	"time"

	"github.com/xraph/intake/id"
)

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// State filters by job state. Empty means all states.
	State State
}

// Store is the durable queue contract. Every backend must make ClaimJob
// atomic: two concurrent claims never return the same job.
type Store interface {
	// PushJob persists j as waiting, stamps AvailableAt and assigns Seq.
	// The job is durable once PushJob returns nil.
	PushJob(ctx context.Context, j *Job) error

	// ClaimJob takes the next claimable job for workerID, ordered by
	// AvailableAt then Seq, moves it to active with a lease and increments
	// Attempts. It returns (nil, nil) when nothing is claimable and never
	// blocks waiting for work.
	ClaimJob(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*Job, error)

	// AckJob removes a job held by workerID. It returns intake.ErrLeaseLost
	// if the lease has moved on and intake.ErrJobNotFound if the job is gone.
	AckJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// NackJob records a failed attempt on a job held by workerID, either
	// parking it as failed-retryable until now+Delay or moving it to dead.
	NackJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, n Nack) error

	// ExtendLease pushes the lease of a job held by workerID to now+lease.
	ExtendLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error

	// RequeueExpired returns active jobs whose lease has lapsed to waiting
	// without touching Attempts, and reports how many it moved.
	RequeueExpired(ctx context.Context) (int64, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobsByState returns jobs in state, oldest first.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// PurgeDead deletes dead jobs last updated before the cutoff. A zero
	// cutoff purges every dead job.
	PurgeDead(ctx context.Context, before time.Time) (int64, error)
}
