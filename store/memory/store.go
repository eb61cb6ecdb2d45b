// Package memory provides an in-process implementation of the queue and
// patient stores. It is safe for concurrent use and intended for tests and
// single-process development; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
	"github.com/xraph/intake/patient"
)

var (
	_ job.Store           = (*Store)(nil)
	_ patient.OutboxStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, letting tests move time forward to expire
// leases and backoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store keeps jobs and patients in maps guarded by one mutex. Holding a
// single lock across ClaimJob is what makes the claim atomic.
type Store struct {
	mu sync.Mutex

	now    func() time.Time
	seq    int64
	closed bool

	jobs     map[string]*job.Job
	patients map[uuid.UUID]*patient.Patient
	emails   map[string]uuid.UUID
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		jobs:     make(map[string]*job.Job),
		patients: make(map[uuid.UUID]*patient.Patient),
		emails:   make(map[string]uuid.UUID),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping fails once the store is closed.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return intake.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Later calls return intake.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) clock() time.Time { return s.now().UTC() }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// PushJob stores j as waiting and assigns its sequence number.
func (s *Store) PushJob(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return intake.ErrStoreClosed
	}
	s.pushLocked(j)
	return nil
}

func (s *Store) pushLocked(j *job.Job) {
	now := s.clock()
	s.seq++
	j.Seq = s.seq
	j.State = job.StateWaiting
	j.AvailableAt = now
	j.CreatedAt = now
	j.UpdatedAt = now
	s.jobs[j.ID.String()] = j.Clone()
}

// ClaimJob picks the claimable job with the lowest (AvailableAt, Seq).
func (s *Store) ClaimJob(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, intake.ErrStoreClosed
	}
	// A cancelled claimer must not take a job it can no longer run.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.clock()
	var next *job.Job
	for _, j := range s.jobs {
		if !j.Claimable(now) {
			continue
		}
		if next == nil || before(j, next) {
			next = j
		}
	}
	if next == nil {
		return nil, nil //nolint:nilnil // empty queue is not an error
	}

	next.Claim(workerID, now, lease)
	return next.Clone(), nil
}

func before(a, b *job.Job) bool {
	if !a.AvailableAt.Equal(b.AvailableAt) {
		return a.AvailableAt.Before(b.AvailableAt)
	}
	return a.Seq < b.Seq
}

// held returns the stored job if workerID still holds it.
func (s *Store) held(jobID id.JobID, workerID id.WorkerID) (*job.Job, error) {
	if s.closed {
		return nil, intake.ErrStoreClosed
	}
	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, intake.ErrJobNotFound
	}
	if !j.HeldBy(workerID) {
		return nil, intake.ErrLeaseLost
	}
	return j, nil
}

// AckJob removes a completed job.
func (s *Store) AckJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.held(jobID, workerID); err != nil {
		return err
	}
	delete(s.jobs, jobID.String())
	return nil
}

// NackJob records a failed attempt.
func (s *Store) NackJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, n job.Nack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.held(jobID, workerID)
	if err != nil {
		return err
	}
	j.ApplyNack(n, s.clock())
	return nil
}

// ExtendLease renews the lease of a held job.
func (s *Store) ExtendLease(_ context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.held(jobID, workerID)
	if err != nil {
		return err
	}
	exp := s.clock().Add(lease)
	j.LeaseExpiresAt = &exp
	return nil
}

// RequeueExpired returns lapsed active jobs to waiting.
func (s *Store) RequeueExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, intake.ErrStoreClosed
	}
	now := s.clock()
	var n int64
	for _, j := range s.jobs {
		if j.LeaseExpired(now) {
			j.Requeue(now)
			n++
		}
	}
	return n, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, intake.ErrJobNotFound
	}
	return j.Clone(), nil
}

// ListJobsByState returns jobs in state ordered by (AvailableAt, Seq).
func (s *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*job.Job, 0)
	for _, j := range s.jobs {
		if j.State == state {
			result = append(result, j.Clone())
		}
	}
	sort.Slice(result, func(i, k int) bool { return before(result[i], result[k]) })

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// CountJobs counts jobs, optionally by state.
func (s *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, j := range s.jobs {
		if opts.State == "" || j.State == opts.State {
			count++
		}
	}
	return count, nil
}

// PurgeDead deletes dead jobs updated before the cutoff.
func (s *Store) PurgeDead(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, j := range s.jobs {
		if j.State != job.StateDead {
			continue
		}
		if !cutoff.IsZero() && !j.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(s.jobs, key)
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Patient Store
// ──────────────────────────────────────────────────

// CreatePatient inserts p, rejecting a duplicate email.
func (s *Store) CreatePatient(_ context.Context, p *patient.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPatientLocked(p)
}

func (s *Store) createPatientLocked(p *patient.Patient) error {
	if s.closed {
		return intake.ErrStoreClosed
	}
	key := strings.ToLower(p.Email)
	if _, dup := s.emails[key]; dup {
		return intake.ErrDuplicateEmail
	}
	cp := *p
	s.patients[p.ID] = &cp
	s.emails[key] = p.ID
	return nil
}

// CreatePatientWithJob inserts p and pushes j under one lock.
func (s *Store) CreatePatientWithJob(_ context.Context, p *patient.Patient, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createPatientLocked(p); err != nil {
		return err
	}
	s.pushLocked(j)
	return nil
}

// GetPatient returns a patient by id.
func (s *Store) GetPatient(_ context.Context, patientID uuid.UUID) (*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[patientID]
	if !ok {
		return nil, intake.ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

// ListPatients returns every patient, newest first.
func (s *Store) ListPatients(_ context.Context) ([]*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*patient.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}
