package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/xraph/intake/job"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got job.ConfirmationPayload
	def := job.NewDefinition(job.KindConfirmationEmail, func(_ context.Context, p job.ConfirmationPayload) error {
		got = p
		return nil
	})
	job.RegisterDefinition(r, def)

	h, ok := r.Get(job.KindConfirmationEmail)
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	payload, _ := json.Marshal(job.ConfirmationPayload{Recipient: "ana@gmail.com", DisplayName: "Ana", SourceRecordID: "p-1"})
	if res := h(context.Background(), payload); !res.OK() {
		t.Fatalf("unexpected failure: %v", res.Err())
	}
	if got.Recipient != "ana@gmail.com" || got.DisplayName != "Ana" {
		t.Errorf("payload = %+v", got)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected no handler for unregistered kind")
	}
}

func TestRegistry_Kinds(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("a", func(_ context.Context, _ struct{}) error { return nil }))
	job.RegisterDefinition(r, job.NewDefinition("b", func(_ context.Context, _ struct{}) error { return nil }))

	kinds := r.Kinds()
	sort.Strings(kinds)
	if len(kinds) != 2 || kinds[0] != "a" || kinds[1] != "b" {
		t.Fatalf("kinds = %v", kinds)
	}
}

func TestRegistry_InvalidJSONIsPermanent(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("typed", func(_ context.Context, _ job.ConfirmationPayload) error {
		t.Fatal("handler should not be called with invalid JSON")
		return nil
	}))

	h, _ := r.Get("typed")
	res := h(context.Background(), []byte(`{invalid json`))
	if res.OK() {
		t.Fatal("expected failure for invalid JSON")
	}
	if res.Retryable() {
		t.Fatal("malformed payload must not be retryable")
	}
}

func TestRegistry_HandlerErrorClassification(t *testing.T) {
	transient := errors.New("smtp timeout")
	permanent := job.MarkPermanent(errors.New("mailbox does not exist"))

	tests := []struct {
		name      string
		err       error
		ok        bool
		retryable bool
	}{
		{"nil", nil, true, false},
		{"transient", transient, false, true},
		{"permanent", permanent, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := job.NewRegistry()
			job.RegisterDefinition(r, job.NewDefinition("k", func(_ context.Context, _ struct{}) error {
				return tt.err
			}))
			h, _ := r.Get("k")
			res := h(context.Background(), nil)
			if res.OK() != tt.ok || res.Retryable() != tt.retryable {
				t.Fatalf("OK=%v Retryable=%v, want %v %v", res.OK(), res.Retryable(), tt.ok, tt.retryable)
			}
			if tt.err != nil && !errors.Is(res.Err(), tt.err) {
				t.Fatalf("Err() = %v, want wrapping %v", res.Err(), tt.err)
			}
		})
	}
}

func TestRegistry_Options(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("k",
		func(_ context.Context, _ struct{}) error { return nil },
		job.WithMaxAttempts(7), job.WithTimeout(3*time.Second),
	))

	opts, ok := r.Options("k")
	if !ok {
		t.Fatal("expected options")
	}
	if opts.MaxAttempts != 7 || opts.Timeout != 3*time.Second {
		t.Fatalf("opts = %+v", opts)
	}
}

func TestRegistry_OverwriteHandler(t *testing.T) {
	r := job.NewRegistry()
	job.RegisterDefinition(r, job.NewDefinition("k", func(_ context.Context, _ struct{}) error {
		return errors.New("old")
	}))
	job.RegisterDefinition(r, job.NewDefinition("k", func(_ context.Context, _ struct{}) error {
		return errors.New("new")
	}))

	h, _ := r.Get("k")
	if res := h(context.Background(), nil); res.Reason() != "new" {
		t.Fatalf("expected 'new', got %q", res.Reason())
	}
}
