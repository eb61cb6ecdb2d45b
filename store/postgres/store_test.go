//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xraph/intake"
	"github.com/xraph/intake/job"
	"github.com/xraph/intake/patient"
	"github.com/xraph/intake/store/postgres"
	"github.com/xraph/intake/store/storetest"
)

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	pgCtr, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("patients_test"),
		tcpostgres.WithUsername("intake"),
		tcpostgres.WithPassword("testpassword"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgCtr.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := pgCtr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s, err := postgres.New(ctx, connStr)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Second run is a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	return s
}

func TestContract(t *testing.T) {
	s := newStore(t)
	storetest.Run(t, func(t *testing.T) job.Store {
		_, err := s.Pool().Exec(context.Background(), `TRUNCATE intake_jobs`)
		require.NoError(t, err)
		return s
	})
}

func newPatient(email string) *patient.Patient {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &patient.Patient{
		ID:            uuid.New(),
		FullName:      "Ana Souza",
		Email:         email,
		CountryCode:   "+55",
		PhoneNumber:   "11987654321",
		DocumentPhoto: "/uploads/doc.jpg",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestPatients(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p := newPatient("ana@gmail.com")
	require.NoError(t, s.CreatePatient(ctx, p))

	got, err := s.GetPatient(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Email, got.Email)
	assert.True(t, p.CreatedAt.Equal(got.CreatedAt))

	err = s.CreatePatient(ctx, newPatient("ANA@gmail.com"))
	assert.True(t, errors.Is(err, intake.ErrDuplicateEmail), "got %v", err)

	_, err = s.GetPatient(ctx, uuid.New())
	assert.True(t, errors.Is(err, intake.ErrPatientNotFound))

	later := newPatient("bruno@gmail.com")
	later.CreatedAt = p.CreatedAt.Add(time.Second)
	require.NoError(t, s.CreatePatient(ctx, later))

	list, err := s.ListPatients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, later.ID, list[0].ID)
}

func TestCreatePatientWithJobIsAtomic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p := newPatient("ana@gmail.com")
	payload, err := p.Confirmation().Encode()
	require.NoError(t, err)

	j := job.New(job.KindConfirmationEmail, payload, 5)
	require.NoError(t, s.CreatePatientWithJob(ctx, p, j))
	assert.Positive(t, j.Seq)

	stored, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateWaiting, stored.State)

	// The duplicate patient rolls back its job as well.
	dup := newPatient("ana@gmail.com")
	dupJob := job.New(job.KindConfirmationEmail, payload, 5)
	err = s.CreatePatientWithJob(ctx, dup, dupJob)
	assert.True(t, errors.Is(err, intake.ErrDuplicateEmail), "got %v", err)

	_, err = s.GetJob(ctx, dupJob.ID)
	assert.True(t, errors.Is(err, intake.ErrJobNotFound))

	n, err := s.CountJobs(ctx, job.CountOpts{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
