package engine_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/intake"
	"github.com/xraph/intake/engine"
	"github.com/xraph/intake/job"
	"github.com/xraph/intake/store/memory"
)

func newEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	d, err := intake.New(
		intake.WithStore(s),
		intake.WithConcurrency(2),
		intake.WithPollInterval(5*time.Millisecond),
		intake.WithBackoff(10*time.Millisecond, 0),
	)
	if err != nil {
		t.Fatalf("intake.New: %v", err)
	}
	eng, err := engine.Build(d, opts...)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })
	return eng, s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var ana = job.ConfirmationPayload{
	Recipient:      "ana@gmail.com",
	DisplayName:    "Ana López",
	SourceRecordID: "3f1c2a9e-0000-4000-8000-000000000001",
}

func TestBuild_RequiresStore(t *testing.T) {
	d, err := intake.New()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Build(d); !errors.Is(err, intake.ErrNoStore) {
		t.Fatalf("err = %v, want ErrNoStore", err)
	}
}

func TestEngine_EndToEnd_SubmitProcess(t *testing.T) {
	eng, s := newEngine(t)

	var got atomic.Value
	engine.Register(eng, job.NewDefinition(job.KindConfirmationEmail,
		func(_ context.Context, p job.ConfirmationPayload) error {
			got.Store(p)
			return nil
		}))

	jobID, err := eng.Submit(context.Background(), ana)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	j, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job must be durable once Submit returns: %v", err)
	}
	if j.State != job.StateWaiting || j.MaxAttempts != 3 {
		t.Errorf("state=%s max_attempts=%d", j.State, j.MaxAttempts)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "handler", func() bool { return got.Load() != nil })

	if p := got.Load().(job.ConfirmationPayload); p != ana {
		t.Errorf("payload = %+v", p)
	}
	waitFor(t, "ack", func() bool {
		_, err := s.GetJob(context.Background(), jobID)
		return errors.Is(err, intake.ErrJobNotFound)
	})
}

func TestEngine_SubmitRejectsInvalidPayload(t *testing.T) {
	eng, s := newEngine(t)

	_, err := eng.Submit(context.Background(), job.ConfirmationPayload{DisplayName: "x"})
	if !errors.Is(err, intake.ErrInvalidJob) {
		t.Fatalf("err = %v, want ErrInvalidJob", err)
	}
	if n, _ := s.CountJobs(context.Background(), job.CountOpts{}); n != 0 {
		t.Errorf("invalid payload was stored")
	}
}

func TestEngine_BackoffThenDead(t *testing.T) {
	reg := prometheus.NewRegistry()
	eng, s := newEngine(t, engine.WithMetricsRegisterer(reg))

	var calls atomic.Int32
	engine.Register(eng, job.NewDefinition(job.KindConfirmationEmail,
		func(context.Context, job.ConfirmationPayload) error {
			calls.Add(1)
			return errors.New("smtp down")
		}))

	jobID, err := eng.Submit(context.Background(), ana)
	if err != nil {
		t.Fatal(err)
	}
	_ = eng.Start(context.Background())

	waitFor(t, "dead", func() bool {
		j, err := s.GetJob(context.Background(), jobID)
		return err == nil && j.State == job.StateDead
	})
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}

	dead, err := eng.DLQService().List(context.Background(), job.ListOpts{})
	if err != nil || len(dead) != 1 {
		t.Fatalf("dead list = %v, %v", dead, err)
	}

	if v := gatherCounter(t, reg, "intake_job_retried_total"); v != 2 {
		t.Errorf("retried_total = %v, want 2", v)
	}
}

func TestEngine_ReplayDeadJob(t *testing.T) {
	eng, s := newEngine(t)

	var fail atomic.Bool
	fail.Store(true)
	var done atomic.Int32
	engine.Register(eng, job.NewDefinition(job.KindConfirmationEmail,
		func(context.Context, job.ConfirmationPayload) error {
			if fail.Load() {
				return job.MarkPermanent(errors.New("550 rejected"))
			}
			done.Add(1)
			return nil
		}))

	jobID, _ := eng.Submit(context.Background(), ana)
	_ = eng.Start(context.Background())
	waitFor(t, "dead", func() bool {
		j, err := s.GetJob(context.Background(), jobID)
		return err == nil && j.State == job.StateDead
	})

	fail.Store(false)
	if _, err := eng.DLQService().Replay(context.Background(), jobID); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	waitFor(t, "replayed job", func() bool { return done.Load() == 1 })
}

func TestEngine_StartTwice(t *testing.T) {
	eng, _ := newEngine(t)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(context.Background()); !errors.Is(err, intake.ErrAlreadyStarted) {
		t.Fatalf("err = %v, want ErrAlreadyStarted", err)
	}
}

func TestEngine_StopClosesStore(t *testing.T) {
	eng, s := newEngine(t)
	_ = eng.Start(context.Background())
	if err := eng.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, intake.ErrStoreClosed) {
		t.Fatalf("Ping after Stop = %v, want ErrStoreClosed", err)
	}
}

// gatherCounter returns the value of the single series named name.
func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name && len(mf.GetMetric()) == 1 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
