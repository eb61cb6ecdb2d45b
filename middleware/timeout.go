package middleware

import (
	"context"
	"time"

	"github.com/xraph/intake/job"
)

// TimeoutLookup returns the per-run deadline for a job kind. Zero disables
// the deadline.
type TimeoutLookup func(kind string) time.Duration

// Timeout bounds each handler run. A handler that honours ctx returns
// context.DeadlineExceeded, which is a retryable failure.
func Timeout(lookup TimeoutLookup) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		if d := lookup(j.Kind); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
