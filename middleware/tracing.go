package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/intake/job"
)

// tracerName is the instrumentation scope name for intake tracing.
const tracerName = "github.com/xraph/intake"

// Tracing wraps each attempt in a span from the global TracerProvider.
// With no provider configured the noop tracer makes it a pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the given tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) job.Result {
		ctx, span := tracer.Start(ctx, "intake.job.execute",
			trace.WithAttributes(
				attribute.String("intake.job.id", j.ID.String()),
				attribute.String("intake.job.kind", j.Kind),
				attribute.Int("intake.job.attempt", j.Attempts),
				attribute.Int("intake.job.max_attempts", j.MaxAttempts),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		res := next(ctx)
		if res.OK() {
			span.SetStatus(codes.Ok, "")
			return res
		}
		span.RecordError(res.Err())
		span.SetAttributes(attribute.Bool("intake.job.retryable", res.Retryable()))
		span.SetStatus(codes.Error, res.Reason())
		return res
	}
}
