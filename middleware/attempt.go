package middleware

import (
	"context"

	"github.com/xraph/intake"
	"github.com/xraph/intake/job"
)

// Attempt stores the claim details in the context so handlers can read
// them with intake.AttemptFrom.
func Attempt() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		ctx = intake.WithAttempt(ctx, intake.Attempt{
			JobID:       j.ID,
			WorkerID:    j.WorkerID,
			Number:      j.Attempts,
			MaxAttempts: j.MaxAttempts,
		})
		return next(ctx)
	}
}
