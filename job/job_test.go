package job_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

func TestJob_Claimable(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		state job.State
		avail time.Time
		want  bool
	}{
		{"waiting", job.StateWaiting, now.Add(time.Hour), true},
		{"retryable due", job.StateFailedRetryable, now.Add(-time.Second), true},
		{"retryable not due", job.StateFailedRetryable, now.Add(time.Second), false},
		{"active", job.StateActive, now, false},
		{"dead", job.StateDead, now, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &job.Job{State: tt.state, AvailableAt: tt.avail}
			if got := j.Claimable(now); got != tt.want {
				t.Errorf("Claimable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_ClaimNackRequeue(t *testing.T) {
	now := time.Now()
	w := id.NewWorkerID()
	j := job.New(job.KindConfirmationEmail, []byte(`{}`), 3)

	j.Claim(w, now, time.Minute)
	if j.State != job.StateActive || j.Attempts != 1 || !j.HeldBy(w) {
		t.Fatalf("after claim: %+v", j)
	}
	if j.HeldBy(id.NewWorkerID()) {
		t.Fatal("another worker should not hold the job")
	}

	j.ApplyNack(job.RetryIn("boom", 2*time.Second), now)
	if j.State != job.StateFailedRetryable || !j.AvailableAt.Equal(now.Add(2*time.Second)) {
		t.Fatalf("after nack: state=%s availableAt=%v", j.State, j.AvailableAt)
	}
	if j.LastError != "boom" || !j.WorkerID.IsNil() {
		t.Fatalf("after nack: lastError=%q worker=%q", j.LastError, j.WorkerID)
	}

	j.Claim(w, now.Add(3*time.Second), time.Second)
	if !j.LeaseExpired(now.Add(5 * time.Second)) {
		t.Fatal("expected lease to be expired")
	}
	j.Requeue(now.Add(5 * time.Second))
	if j.State != job.StateWaiting || j.Attempts != 2 {
		t.Fatalf("after requeue: state=%s attempts=%d", j.State, j.Attempts)
	}

	j.Claim(w, now, time.Minute)
	j.ApplyNack(job.Bury("gave up"), now)
	if j.State != job.StateDead {
		t.Fatalf("expected dead, got %s", j.State)
	}
}

func TestJob_CloneIsDeep(t *testing.T) {
	j := job.New("k", []byte("abc"), 1)
	j.Claim(id.NewWorkerID(), time.Now(), time.Minute)

	cp := j.Clone()
	cp.Payload[0] = 'z'
	*cp.LeaseExpiresAt = time.Time{}

	if string(j.Payload) != "abc" || j.LeaseExpiresAt.IsZero() {
		t.Fatal("clone shares memory with original")
	}
}

func TestParseState(t *testing.T) {
	for _, s := range job.States {
		got, err := job.ParseState(string(s))
		if err != nil || got != s {
			t.Errorf("ParseState(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := job.ParseState("pending"); !errors.Is(err, intake.ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob, got %v", err)
	}
}

func TestConfirmationPayload_Validate(t *testing.T) {
	ok := job.ConfirmationPayload{Recipient: "a@gmail.com", DisplayName: "A", SourceRecordID: "1"}
	if _, err := ok.Encode(); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	bad := job.ConfirmationPayload{DisplayName: "A", SourceRecordID: "1"}
	if _, err := bad.Encode(); !errors.Is(err, intake.ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
}
