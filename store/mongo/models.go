package mongo

import (
	"time"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

type jobModel struct {
	ID             string     `bson:"_id"`
	Seq            int64      `bson:"seq"`
	Kind           string     `bson:"kind"`
	Payload        []byte     `bson:"payload"`
	State          string     `bson:"state"`
	Attempts       int        `bson:"attempts"`
	MaxAttempts    int        `bson:"max_attempts"`
	AvailableAt    time.Time  `bson:"available_at"`
	WorkerID       string     `bson:"worker_id"`
	LeaseExpiresAt *time.Time `bson:"lease_expires_at,omitempty"`
	LastError      string     `bson:"last_error"`
	StartedAt      *time.Time `bson:"started_at,omitempty"`
	FailedAt       *time.Time `bson:"failed_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
	return &jobModel{
		ID:             j.ID.String(),
		Seq:            j.Seq,
		Kind:           j.Kind,
		Payload:        j.Payload,
		State:          string(j.State),
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		AvailableAt:    j.AvailableAt,
		WorkerID:       j.WorkerID.String(),
		LeaseExpiresAt: j.LeaseExpiresAt,
		LastError:      j.LastError,
		StartedAt:      j.StartedAt,
		FailedAt:       j.FailedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	parsedID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, wrap("parse job id "+m.ID, err)
	}

	j := &job.Job{
		Entity: intake.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:             parsedID,
		Seq:            m.Seq,
		Kind:           m.Kind,
		Payload:        m.Payload,
		State:          job.State(m.State),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		AvailableAt:    m.AvailableAt.UTC(),
		LeaseExpiresAt: m.LeaseExpiresAt,
		LastError:      m.LastError,
		StartedAt:      m.StartedAt,
		FailedAt:       m.FailedAt,
	}

	if m.WorkerID != "" {
		if w, werr := id.ParseWorkerID(m.WorkerID); werr == nil {
			j.WorkerID = w
		}
	}

	return j, nil
}
