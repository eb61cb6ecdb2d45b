package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/intake/job"
)

// Logging logs the start and outcome of every attempt.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		logger.Info("job started",
			slog.String("job_kind", j.Kind),
			slog.String("job_id", j.ID.String()),
			slog.Int("attempt", j.Attempts),
		)

		start := time.Now()
		res := next(ctx)
		elapsed := time.Since(start)

		if res.OK() {
			logger.Info("job succeeded",
				slog.String("job_kind", j.Kind),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
			return res
		}

		logger.Warn("job attempt failed",
			slog.String("job_kind", j.Kind),
			slog.String("job_id", j.ID.String()),
			slog.Int("attempt", j.Attempts),
			slog.String("outcome", status(res)),
			slog.Duration("elapsed", elapsed),
			slog.String("error", res.Reason()),
		)
		return res
	}
}
