package intake

import (
	"context"

	"github.com/xraph/intake/id"
)

// Attempt describes the claim a handler is running under.
type Attempt struct {
	JobID       id.JobID
	WorkerID    id.WorkerID
	Number      int
	MaxAttempts int
}

// Final reports whether a failure on this attempt makes the job dead.
func (a Attempt) Final() bool { return a.Number >= a.MaxAttempts }

type attemptKey struct{}

// WithAttempt returns a context carrying a.
func WithAttempt(ctx context.Context, a Attempt) context.Context {
	return context.WithValue(ctx, attemptKey{}, a)
}

// AttemptFrom returns the attempt stored in ctx by the worker pool.
func AttemptFrom(ctx context.Context) (Attempt, bool) {
	a, ok := ctx.Value(attemptKey{}).(Attempt)
	return a, ok
}
