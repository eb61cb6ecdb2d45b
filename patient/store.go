package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/xraph/intake/job"
)

// Store persists patient records.
type Store interface {
	// CreatePatient inserts p. It returns intake.ErrDuplicateEmail when the
	// email is already registered.
	CreatePatient(ctx context.Context, p *Patient) error

	// GetPatient returns intake.ErrPatientNotFound for an unknown id.
	GetPatient(ctx context.Context, patientID uuid.UUID) (*Patient, error)

	// ListPatients returns every patient, newest first.
	ListPatients(ctx context.Context) ([]*Patient, error)
}

// OutboxStore is a Store that shares a transaction with the job queue, so
// a patient and its confirmation job commit or roll back together.
type OutboxStore interface {
	Store
	CreatePatientWithJob(ctx context.Context, p *Patient, j *job.Job) error
}
