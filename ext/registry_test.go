package ext_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/intake/ext"
	"github.com/xraph/intake/job"
)

// allHooksExt implements every hook.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobEnqueued(context.Context, *job.Job) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *allHooksExt) OnJobStarted(context.Context, *job.Job) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	e.calls = append(e.calls, "OnJobCompleted")
	return nil
}

func (e *allHooksExt) OnJobRetrying(context.Context, *job.Job, error, time.Time) error {
	e.calls = append(e.calls, "OnJobRetrying")
	return nil
}

func (e *allHooksExt) OnJobDead(context.Context, *job.Job, error) error {
	e.calls = append(e.calls, "OnJobDead")
	return nil
}

func (e *allHooksExt) OnLeasesRecovered(context.Context, int64) error {
	e.calls = append(e.calls, "OnLeasesRecovered")
	return nil
}

func (e *allHooksExt) OnStoreUnavailable(context.Context, string, error) error {
	e.calls = append(e.calls, "OnStoreUnavailable")
	return nil
}

func (e *allHooksExt) OnShutdown(context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// deadOnlyExt implements only JobDead.
type deadOnlyExt struct {
	dead int
}

func (e *deadOnlyExt) Name() string { return "dead-only" }

func (e *deadOnlyExt) OnJobDead(context.Context, *job.Job, error) error {
	e.dead++
	return nil
}

// failingExt returns an error from its hook.
type failingExt struct{}

func (failingExt) Name() string { return "failing" }

func (failingExt) OnJobCompleted(context.Context, *job.Job, time.Duration) error {
	return errors.New("boom")
}

func emitAll(r *ext.Registry) {
	ctx := context.Background()
	j := job.New(job.KindConfirmationEmail, nil, 3)
	err := errors.New("x")

	r.EmitJobEnqueued(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobCompleted(ctx, j, time.Second)
	r.EmitJobRetrying(ctx, j, err, time.Now())
	r.EmitJobDead(ctx, j, err)
	r.EmitLeasesRecovered(ctx, 2)
	r.EmitStoreUnavailable(ctx, "claim", err)
	r.EmitShutdown(ctx)
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	e := &allHooksExt{}
	r.Register(e)

	emitAll(r)

	want := []string{
		"OnJobEnqueued", "OnJobStarted", "OnJobCompleted", "OnJobRetrying",
		"OnJobDead", "OnLeasesRecovered", "OnStoreUnavailable", "OnShutdown",
	}
	if strings.Join(e.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", e.calls, want)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(nil)
	d := &deadOnlyExt{}
	r.Register(d)

	emitAll(r)

	if d.dead != 1 {
		t.Fatalf("OnJobDead called %d times, want 1", d.dead)
	}
	if len(r.Extensions()) != 1 {
		t.Fatalf("extensions = %d", len(r.Extensions()))
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	var buf bytes.Buffer
	r := ext.NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))
	r.Register(failingExt{})
	after := &allHooksExt{}
	r.Register(after)

	r.EmitJobCompleted(context.Background(), job.New("k", nil, 1), time.Millisecond)

	if !strings.Contains(buf.String(), "extension hook error") || !strings.Contains(buf.String(), "failing") {
		t.Fatalf("expected hook error log, got %q", buf.String())
	}
	if len(after.calls) != 1 {
		t.Fatal("a failing hook must not stop later observers")
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	emitAll(ext.NewRegistry(nil))
}
