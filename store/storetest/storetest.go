// Package storetest is the contract suite every job.Store backend runs in
// its own tests:
//
//	func TestContract(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) job.Store { return newStore(t) })
//	}
//
// The factory must return an empty store. The suite uses real time with
// short leases, so it suits any backend whose clock is the wall clock.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) job.Store

// Run executes the contract suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s job.Store)
	}{
		{"PushAndGet", testPushAndGet},
		{"ClaimEmpty", testClaimEmpty},
		{"ClaimFIFO", testClaimFIFO},
		{"ClaimMutualExclusion", testClaimMutualExclusion},
		{"ClaimCanceledContext", testClaimCanceledContext},
		{"AckRemoves", testAckRemoves},
		{"Ownership", testOwnership},
		{"NackRetryDelay", testNackRetryDelay},
		{"NackDead", testNackDead},
		{"ExtendLease", testExtendLease},
		{"RequeueExpiredKeepsAttempts", testRequeueExpired},
		{"ListAndCount", testListAndCount},
		{"PurgeDead", testPurgeDead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func newJob() *job.Job {
	return job.New(job.KindConfirmationEmail, []byte(`{"recipient":"ana@gmail.com","displayName":"Ana","sourceRecordId":"p1"}`), 3)
}

func push(t *testing.T, s job.Store) *job.Job {
	t.Helper()
	j := newJob()
	require.NoError(t, s.PushJob(context.Background(), j))
	return j
}

func claim(t *testing.T, s job.Store, w id.WorkerID, lease time.Duration) *job.Job {
	t.Helper()
	j, err := s.ClaimJob(context.Background(), w, lease)
	require.NoError(t, err)
	require.NotNil(t, j, "expected a claimable job")
	return j
}

func testPushAndGet(t *testing.T, s job.Store) {
	ctx := context.Background()
	j := push(t, s)
	assert.Positive(t, j.Seq)

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID.String(), got.ID.String())
	assert.Equal(t, job.KindConfirmationEmail, got.Kind)
	assert.JSONEq(t, string(j.Payload), string(got.Payload))
	assert.Equal(t, job.StateWaiting, got.State)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, 3, got.MaxAttempts)

	_, err = s.GetJob(ctx, id.NewJobID())
	assert.True(t, errors.Is(err, intake.ErrJobNotFound), "got %v", err)
}

func testClaimEmpty(t *testing.T, s job.Store) {
	j, err := s.ClaimJob(context.Background(), id.NewWorkerID(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func testClaimCanceledContext(t *testing.T, s job.Store) {
	j := push(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := s.ClaimJob(ctx, id.NewWorkerID(), time.Minute)
	require.Error(t, err)
	assert.Nil(t, got)

	stored, err := s.GetJob(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateWaiting, stored.State)
	assert.Equal(t, 0, stored.Attempts)
}

func testClaimFIFO(t *testing.T, s job.Store) {
	var pushed []string
	for range 4 {
		pushed = append(pushed, push(t, s).ID.String())
	}
	w := id.NewWorkerID()
	for _, want := range pushed {
		got := claim(t, s, w, time.Minute)
		assert.Equal(t, want, got.ID.String())
		assert.Equal(t, job.StateActive, got.State)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, w.String(), got.WorkerID.String())
		require.NotNil(t, got.LeaseExpiresAt)
	}
}

func testClaimMutualExclusion(t *testing.T, s job.Store) {
	const jobs, workers = 20, 8
	for range jobs {
		push(t, s)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := id.NewWorkerID()
			for {
				j, err := s.ClaimJob(context.Background(), w, time.Minute)
				if err != nil || j == nil {
					return
				}
				mu.Lock()
				seen[j.ID.String()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, jobs)
	for jobID, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed %d times", jobID, n)
	}
}

func testAckRemoves(t *testing.T, s job.Store) {
	ctx := context.Background()
	push(t, s)
	w := id.NewWorkerID()
	j := claim(t, s, w, time.Minute)

	require.NoError(t, s.AckJob(ctx, j.ID, w))
	_, err := s.GetJob(ctx, j.ID)
	assert.True(t, errors.Is(err, intake.ErrJobNotFound))

	err = s.AckJob(ctx, j.ID, w)
	assert.True(t, errors.Is(err, intake.ErrJobNotFound), "second ack: %v", err)
}

func testOwnership(t *testing.T, s job.Store) {
	ctx := context.Background()
	push(t, s)
	owner, other := id.NewWorkerID(), id.NewWorkerID()
	j := claim(t, s, owner, time.Minute)

	assert.True(t, errors.Is(s.AckJob(ctx, j.ID, other), intake.ErrLeaseLost))
	assert.True(t, errors.Is(s.NackJob(ctx, j.ID, other, job.RetryIn("x", 0)), intake.ErrLeaseLost))
	assert.True(t, errors.Is(s.ExtendLease(ctx, j.ID, other, time.Minute), intake.ErrLeaseLost))

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateActive, got.State, "foreign calls must not change the job")
}

func testNackRetryDelay(t *testing.T, s job.Store) {
	ctx := context.Background()
	push(t, s)
	w := id.NewWorkerID()
	j := claim(t, s, w, time.Minute)

	require.NoError(t, s.NackJob(ctx, j.ID, w, job.RetryIn("421 busy", 300*time.Millisecond)))

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateFailedRetryable, got.State)
	assert.Equal(t, "421 busy", got.LastError)
	assert.Equal(t, 1, got.Attempts)

	none, err := s.ClaimJob(ctx, w, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, none, "job must not be claimable before its delay")

	time.Sleep(350 * time.Millisecond)
	again := claim(t, s, w, time.Minute)
	assert.Equal(t, j.ID.String(), again.ID.String())
	assert.Equal(t, 2, again.Attempts)
}

func testNackDead(t *testing.T, s job.Store) {
	ctx := context.Background()
	push(t, s)
	w := id.NewWorkerID()
	j := claim(t, s, w, time.Minute)

	require.NoError(t, s.NackJob(ctx, j.ID, w, job.Bury("550 no such user")))

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateDead, got.State)
	assert.Equal(t, "550 no such user", got.LastError)

	none, err := s.ClaimJob(ctx, w, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, none, "dead jobs are never claimed")
}

func testExtendLease(t *testing.T, s job.Store) {
	ctx := context.Background()
	push(t, s)
	w := id.NewWorkerID()
	j := claim(t, s, w, 200*time.Millisecond)

	require.NoError(t, s.ExtendLease(ctx, j.ID, w, time.Minute))
	time.Sleep(250 * time.Millisecond)

	n, err := s.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "extended lease must not be reaped")
}

func testRequeueExpired(t *testing.T, s job.Store) {
	ctx := context.Background()
	push(t, s)
	w := id.NewWorkerID()
	j := claim(t, s, w, 100*time.Millisecond)

	n, err := s.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	time.Sleep(150 * time.Millisecond)
	n, err = s.RequeueExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.GetJob(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StateWaiting, got.State)
	assert.Equal(t, 1, got.Attempts, "recovery must not change attempts")

	assert.True(t, errors.Is(s.AckJob(ctx, j.ID, w), intake.ErrLeaseLost), "old holder lost the lease")

	again := claim(t, s, id.NewWorkerID(), time.Minute)
	assert.Equal(t, j.ID.String(), again.ID.String())
	assert.Equal(t, 2, again.Attempts)
}

func testListAndCount(t *testing.T, s job.Store) {
	ctx := context.Background()
	for range 3 {
		push(t, s)
	}
	w := id.NewWorkerID()
	active := claim(t, s, w, time.Minute)
	dead := claim(t, s, w, time.Minute)
	require.NoError(t, s.NackJob(ctx, dead.ID, w, job.Bury("boom")))

	counts := map[job.State]int64{
		"":                 3,
		job.StateWaiting:   1,
		job.StateActive:    1,
		job.StateDead:      1,
		job.StateCompleted: 0,
	}
	for state, want := range counts {
		n, err := s.CountJobs(ctx, job.CountOpts{State: state})
		require.NoError(t, err)
		assert.Equal(t, want, n, "count %q", state)
	}

	list, err := s.ListJobsByState(ctx, job.StateActive, job.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active.ID.String(), list[0].ID.String())

	page, err := s.ListJobsByState(ctx, job.StateWaiting, job.ListOpts{Offset: 1})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testPurgeDead(t *testing.T, s job.Store) {
	ctx := context.Background()
	w := id.NewWorkerID()
	for range 2 {
		push(t, s)
		j := claim(t, s, w, time.Minute)
		require.NoError(t, s.NackJob(ctx, j.ID, w, job.Bury("x")))
	}
	push(t, s)

	n, err := s.PurgeDead(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.PurgeDead(ctx, time.Time{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	total, err := s.CountJobs(ctx, job.CountOpts{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "purge only touches dead jobs")
}
