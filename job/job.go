package job

import (
	"time"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateWaiting means the job is eligible to be claimed.
	StateWaiting State = "waiting"
	// StateActive means a worker holds the job's lease and is running it.
	StateActive State = "active"
	// StateCompleted means the job succeeded. Stores remove completed jobs
	// on ack, so this state is only observed in transit.
	StateCompleted State = "completed"
	// StateFailedRetryable means the last attempt failed and the job is
	// parked until AvailableAt, after which it is claimable again.
	StateFailedRetryable State = "failed-retryable"
	// StateDead means the job exhausted its attempts or failed permanently.
	// Dead jobs are kept until purged.
	StateDead State = "dead"
)

// States lists every state in lifecycle order.
var States = []State{StateWaiting, StateActive, StateCompleted, StateFailedRetryable, StateDead}

// ParseState validates s as a State.
func ParseState(s string) (State, error) {
	for _, st := range States {
		if string(st) == s {
			return st, nil
		}
	}
	return "", intake.ErrInvalidJob
}

// Job is a unit of work held by the queue store.
type Job struct {
	intake.Entity

	ID             id.JobID    `json:"id"`
	Kind           string      `json:"kind"`
	Payload        []byte      `json:"payload"`
	State          State       `json:"state"`
	Attempts       int         `json:"attempts"`
	MaxAttempts    int         `json:"max_attempts"`
	AvailableAt    time.Time   `json:"available_at"`
	Seq            int64       `json:"seq"`
	WorkerID       id.WorkerID `json:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty"`
	LastError      string      `json:"last_error,omitempty"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	FailedAt       *time.Time  `json:"failed_at,omitempty"`
}

// New builds a waiting job with a fresh ID. Seq is assigned by the store.
func New(kind string, payload []byte, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		Entity:      intake.NewEntity(),
		ID:          id.NewJobID(),
		Kind:        kind,
		Payload:     payload,
		State:       StateWaiting,
		MaxAttempts: maxAttempts,
		AvailableAt: now,
	}
}

// Claimable reports whether a worker may claim the job at now.
func (j *Job) Claimable(now time.Time) bool {
	switch j.State {
	case StateWaiting:
		return true
	case StateFailedRetryable:
		return !j.AvailableAt.After(now)
	default:
		return false
	}
}

// Claim moves the job to active under workerID and spends one attempt.
func (j *Job) Claim(workerID id.WorkerID, now time.Time, lease time.Duration) {
	exp := now.Add(lease)
	started := now
	j.State = StateActive
	j.Attempts++
	j.WorkerID = workerID
	j.LeaseExpiresAt = &exp
	j.StartedAt = &started
	j.UpdatedAt = now
}

// HeldBy reports whether workerID holds a live claim on the job.
func (j *Job) HeldBy(workerID id.WorkerID) bool {
	return j.State == StateActive && j.WorkerID.String() == workerID.String()
}

// LeaseExpired reports whether an active job's lease has lapsed at now.
func (j *Job) LeaseExpired(now time.Time) bool {
	return j.State == StateActive && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now)
}

// ApplyNack records a failed attempt.
func (j *Job) ApplyNack(n Nack, now time.Time) {
	failed := now
	j.LastError = n.Reason
	j.FailedAt = &failed
	j.WorkerID = id.Nil
	j.LeaseExpiresAt = nil
	j.UpdatedAt = now
	if n.Dead {
		j.State = StateDead
		return
	}
	j.State = StateFailedRetryable
	j.AvailableAt = now.Add(n.Delay)
}

// Requeue returns an abandoned active job to waiting. The attempt spent by
// the lost claim is not refunded and no further attempt is charged.
func (j *Job) Requeue(now time.Time) {
	j.State = StateWaiting
	j.WorkerID = id.Nil
	j.LeaseExpiresAt = nil
	j.UpdatedAt = now
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Payload = append([]byte(nil), j.Payload...)
	cp.LeaseExpiresAt = copyTime(j.LeaseExpiresAt)
	cp.StartedAt = copyTime(j.StartedAt)
	cp.FailedAt = copyTime(j.FailedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Nack describes a failed attempt reported to the store.
type Nack struct {
	// Reason is stored as the job's LastError.
	Reason string
	// Delay postpones the next claim. Ignored when Dead is set.
	Delay time.Duration
	// Dead retires the job instead of scheduling another attempt.
	Dead bool
}

// RetryIn returns a Nack that makes the job claimable again after delay.
func RetryIn(reason string, delay time.Duration) Nack {
	return Nack{Reason: reason, Delay: delay}
}

// Bury returns a Nack that moves the job to dead.
func Bury(reason string) Nack {
	return Nack{Reason: reason, Dead: true}
}
