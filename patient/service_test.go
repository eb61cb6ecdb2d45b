package patient_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
	"github.com/xraph/intake/patient"
	"github.com/xraph/intake/store/memory"
)

// fakeQueue records submissions and can fail them.
type fakeQueue struct {
	mu        sync.Mutex
	submitted []job.ConfirmationPayload
	err       error
}

func (q *fakeQueue) Submit(_ context.Context, p job.ConfirmationPayload) (id.JobID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return id.Nil, q.err
	}
	q.submitted = append(q.submitted, p)
	return id.NewJobID(), nil
}

// outboxQueue also builds jobs for the transactional path.
type outboxQueue struct {
	fakeQueue
	woken int
}

func (q *outboxQueue) BuildJob(p job.ConfirmationPayload) (*job.Job, error) {
	b, err := p.Encode()
	if err != nil {
		return nil, err
	}
	return job.New(job.KindConfirmationEmail, b, 3), nil
}

func (q *outboxQueue) Wake() { q.woken++ }

func registration() patient.Registration {
	return patient.Registration{
		FullName:      "Ana López",
		Email:         "ana@gmail.com",
		CountryCode:   "+598",
		PhoneNumber:   "91234567",
		DocumentPhoto: "/uploads/a.jpg",
	}
}

func TestRegister_EnqueuesConfirmation(t *testing.T) {
	s := memory.New()
	q := &fakeQueue{}
	svc := patient.NewService(s, q)

	p, err := svc.Register(context.Background(), registration())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(q.submitted) != 1 {
		t.Fatalf("submitted = %d, want 1", len(q.submitted))
	}
	got := q.submitted[0]
	if got.Recipient != "ana@gmail.com" || got.DisplayName != "Ana López" || got.SourceRecordID != p.ID.String() {
		t.Errorf("payload = %+v", got)
	}

	stored, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.DocumentPhoto != "/uploads/a.jpg" {
		t.Errorf("DocumentPhoto = %q", stored.DocumentPhoto)
	}
}

func TestRegister_EnqueueFailureStillRegisters(t *testing.T) {
	s := memory.New()
	q := &fakeQueue{err: errors.New("redis: connection refused")}
	svc := patient.NewService(s, q)

	p, err := svc.Register(context.Background(), registration())
	if err != nil {
		t.Fatalf("Register = %v, want success despite queue failure", err)
	}
	if _, err := s.GetPatient(context.Background(), p.ID); err != nil {
		t.Fatalf("patient not stored: %v", err)
	}
}

func TestRegister_InvalidSkipsStoreAndQueue(t *testing.T) {
	s := memory.New()
	q := &fakeQueue{}
	svc := patient.NewService(s, q)

	r := registration()
	r.Email = "ana@yahoo.com"
	_, err := svc.Register(context.Background(), r)

	var verr *patient.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	list, _ := svc.List(context.Background())
	if len(list) != 0 || len(q.submitted) != 0 {
		t.Errorf("stored %d patients, submitted %d jobs", len(list), len(q.submitted))
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	s := memory.New()
	q := &fakeQueue{}
	svc := patient.NewService(s, q)

	if _, err := svc.Register(context.Background(), registration()); err != nil {
		t.Fatal(err)
	}
	r := registration()
	r.Email = "A.N.A+second@gmail.com"
	_, err := svc.Register(context.Background(), r)
	if !errors.Is(err, intake.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
	if len(q.submitted) != 1 {
		t.Errorf("submitted = %d, want 1", len(q.submitted))
	}
}

func TestRegister_Outbox(t *testing.T) {
	s := memory.New()
	q := &outboxQueue{}
	svc := patient.NewService(s, q, patient.WithOutbox(true))

	p, err := svc.Register(context.Background(), registration())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(q.submitted) != 0 {
		t.Errorf("outbox path must not call Submit")
	}
	if q.woken != 1 {
		t.Errorf("woken = %d, want 1", q.woken)
	}

	jobs, err := s.ListJobsByState(context.Background(), job.StateWaiting, job.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	var payload job.ConfirmationPayload
	if err := json.Unmarshal(jobs[0].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.SourceRecordID != p.ID.String() {
		t.Errorf("SourceRecordID = %q, want %s", payload.SourceRecordID, p.ID)
	}
}

func TestRegister_OutboxDuplicateLeavesNoJob(t *testing.T) {
	s := memory.New()
	q := &outboxQueue{}
	svc := patient.NewService(s, q, patient.WithOutbox(true))

	if _, err := svc.Register(context.Background(), registration()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(context.Background(), registration()); !errors.Is(err, intake.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
	n, _ := s.CountJobs(context.Background(), job.CountOpts{})
	if n != 1 {
		t.Errorf("jobs = %d, want 1", n)
	}
}

func TestRegister_OutboxFallsBackWithoutJobBuilder(t *testing.T) {
	s := memory.New()
	q := &fakeQueue{}
	svc := patient.NewService(s, q, patient.WithOutbox(true))

	if _, err := svc.Register(context.Background(), registration()); err != nil {
		t.Fatal(err)
	}
	if len(q.submitted) != 1 {
		t.Errorf("submitted = %d, want 1 via the two-step path", len(q.submitted))
	}
}

func TestRegister_NilQueue(t *testing.T) {
	svc := patient.NewService(memory.New(), nil)
	if _, err := svc.Register(context.Background(), registration()); err != nil {
		t.Fatalf("Register: %v", err)
	}
}
