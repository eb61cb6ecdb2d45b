package patient

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

// Enqueuer hands a confirmation to the job queue.
type Enqueuer interface {
	Submit(ctx context.Context, p job.ConfirmationPayload) (id.JobID, error)
}

// JobBuilder is implemented by enqueuers that can build a job for the
// transactional path and wake local workers once it commits.
type JobBuilder interface {
	BuildJob(p job.ConfirmationPayload) (*job.Job, error)
	Wake()
}

// Service registers patients.
type Service struct {
	store     Store
	queue     Enqueuer
	validator *Validator
	logger    *slog.Logger
	outbox    bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithOutbox makes Register insert the patient and its confirmation job in
// one transaction when the store and queue support it.
func WithOutbox(enabled bool) ServiceOption {
	return func(s *Service) { s.outbox = enabled }
}

// NewService creates a Service. queue may be nil, in which case no
// confirmation is sent.
func NewService(store Store, queue Enqueuer, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		queue:     queue,
		validator: NewValidator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates r, stores the patient and enqueues the confirmation
// email. Once the patient row has committed, a failure to enqueue is
// logged and the patient is still returned: registration never depends on
// the queue.
func (s *Service) Register(ctx context.Context, r Registration) (*Patient, error) {
	if err := s.validator.Validate(&r); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Patient{
		ID:            uuid.New(),
		FullName:      r.FullName,
		Email:         r.Email,
		CountryCode:   r.CountryCode,
		PhoneNumber:   r.PhoneNumber,
		DocumentPhoto: r.DocumentPhoto,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if s.outbox {
		done, err := s.registerWithOutbox(ctx, p)
		if err != nil {
			return nil, err
		}
		if done {
			return p, nil
		}
	}

	if err := s.store.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return p, nil
	}

	jobID, err := s.queue.Submit(ctx, p.Confirmation())
	if err != nil {
		s.logger.Error("confirmation enqueue failed",
			slog.String("patient_id", p.ID.String()),
			slog.String("error", err.Error()),
		)
		return p, nil
	}
	s.logger.Debug("confirmation enqueued",
		slog.String("patient_id", p.ID.String()),
		slog.String("job_id", jobID.String()),
	)
	return p, nil
}

// registerWithOutbox reports done=false when the collaborators cannot do a
// joint commit, so Register falls back to the two-step path.
func (s *Service) registerWithOutbox(ctx context.Context, p *Patient) (bool, error) {
	ob, ok := s.store.(OutboxStore)
	if !ok {
		return false, nil
	}
	jb, ok := s.queue.(JobBuilder)
	if !ok {
		return false, nil
	}
	j, err := jb.BuildJob(p.Confirmation())
	if err != nil {
		return true, err
	}
	if err := ob.CreatePatientWithJob(ctx, p, j); err != nil {
		return true, err
	}
	jb.Wake()
	s.logger.Debug("patient and confirmation committed",
		slog.String("patient_id", p.ID.String()),
		slog.String("job_id", j.ID.String()),
	)
	return true, nil
}

// Get returns one patient.
func (s *Service) Get(ctx context.Context, patientID uuid.UUID) (*Patient, error) {
	return s.store.GetPatient(ctx, patientID)
}

// List returns every patient, newest first.
func (s *Service) List(ctx context.Context) ([]*Patient, error) {
	return s.store.ListPatients(ctx)
}
