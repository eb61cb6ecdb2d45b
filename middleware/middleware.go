// Package middleware provides composable wrappers around job handlers:
// panic recovery, logging, deadlines, OpenTelemetry tracing and metrics.
package middleware

import (
	"context"

	"github.com/xraph/intake/job"
)

// Handler is the terminal function that runs job logic.
type Handler func(ctx context.Context) job.Result

// Middleware wraps a Handler. It must call next unless it short-circuits
// with its own Result.
type Middleware func(ctx context.Context, j *job.Job, next Handler) job.Result

// Chain composes middleware; the first one listed is the outermost.
//
//	Chain(recover, logging, timeout) runs recover → logging → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) job.Result {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}

// status labels a result for logs and metrics.
func status(r job.Result) string {
	switch {
	case r.OK():
		return "ok"
	case r.Retryable():
		return "retryable"
	default:
		return "permanent"
	}
}
