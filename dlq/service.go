package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

// Enqueuer pushes a job and notifies observers and idle workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, j *job.Job) error
}

// Service provides dead job operations over a job.Store.
type Service struct {
	store    job.Store
	enqueuer Enqueuer
}

// NewService creates a dead job service. Replay pushes straight to the
// store unless an Enqueuer is set with WithEnqueuer.
func NewService(store job.Store) *Service {
	return &Service{store: store}
}

// WithEnqueuer routes replayed jobs through e.
func (s *Service) WithEnqueuer(e Enqueuer) *Service {
	s.enqueuer = e
	return s
}

// List returns dead jobs, oldest first.
func (s *Service) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return s.store.ListJobsByState(ctx, job.StateDead, opts)
}

// Get returns the dead job with jobID. A job in any other state is
// reported as intake.ErrJobNotFound.
func (s *Service) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.State != job.StateDead {
		return nil, intake.ErrJobNotFound
	}
	return j, nil
}

// Count returns the number of dead jobs.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.store.CountJobs(ctx, job.CountOpts{State: job.StateDead})
}

// Purge deletes dead jobs last updated before the cutoff. A zero cutoff
// purges them all.
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return s.store.PurgeDead(ctx, before)
}

// Replay enqueues a new job carrying the dead job's kind and payload.
func (s *Service) Replay(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	dead, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	j := job.New(dead.Kind, dead.Payload, dead.MaxAttempts)
	if s.enqueuer != nil {
		err = s.enqueuer.Enqueue(ctx, j)
	} else {
		err = s.store.PushJob(ctx, j)
	}
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", jobID, err)
	}
	return j, nil
}
