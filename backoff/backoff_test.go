package backoff_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/intake/backoff"
	"github.com/xraph/intake/job"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(2*time.Second, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)
	if got := e.Delay(10); got != 10*time.Second {
		t.Errorf("Delay(10) = %v, want 10s", got)
	}
	if got := e.Delay(1000); got != 10*time.Second {
		t.Errorf("Delay(1000) = %v, want 10s", got)
	}
}

func TestJittered_WithinBounds(t *testing.T) {
	j := backoff.NewJittered(100*time.Millisecond, time.Second)
	for attempt := 1; attempt <= 8; attempt++ {
		upper := 100 * time.Millisecond << (attempt - 1)
		if upper > time.Second {
			upper = time.Second
		}
		for range 50 {
			got := j.Delay(attempt)
			if got < upper/2 || got > upper {
				t.Fatalf("Delay(%d) = %v, want in [%v, %v]", attempt, got, upper/2, upper)
			}
		}
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s.Delay(1) != 2*time.Second || s.Delay(2) != 4*time.Second {
		t.Fatalf("default delays = %v, %v; want 2s, 4s", s.Delay(1), s.Delay(2))
	}
}

func TestPolicy_Decide(t *testing.T) {
	p := backoff.NewPolicy(nil)
	boom := errors.New("boom")

	tests := []struct {
		name     string
		res      job.Result
		attempts int
		action   backoff.Action
		delay    time.Duration
	}{
		{"success", job.Success(), 1, backoff.Ack, 0},
		{"first failure", job.Retry(boom), 1, backoff.Retry, 2 * time.Second},
		{"second failure", job.Retry(boom), 2, backoff.Retry, 4 * time.Second},
		{"budget spent", job.Retry(boom), 3, backoff.Dead, 0},
		{"over budget", job.Retry(boom), 4, backoff.Dead, 0},
		{"permanent on first", job.Permanent(boom), 1, backoff.Dead, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := p.Decide(tt.res, tt.attempts, 3)
			if d.Action != tt.action || d.Delay != tt.delay {
				t.Fatalf("Decide = %s/%v, want %s/%v", d.Action, d.Delay, tt.action, tt.delay)
			}
			if tt.action != backoff.Ack && d.Reason != "boom" {
				t.Fatalf("Reason = %q", d.Reason)
			}
		})
	}
}

func TestDecision_Nack(t *testing.T) {
	n := backoff.Decision{Action: backoff.Retry, Delay: time.Second, Reason: "x"}.Nack()
	if n.Dead || n.Delay != time.Second || n.Reason != "x" {
		t.Fatalf("retry nack = %+v", n)
	}
	n = backoff.Decision{Action: backoff.Dead, Reason: "y"}.Nack()
	if !n.Dead || n.Reason != "y" {
		t.Fatalf("dead nack = %+v", n)
	}
}
