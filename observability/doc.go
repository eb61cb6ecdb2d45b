// Package observability exports queue health. MetricsExtension is an
// observer that turns lifecycle events into Prometheus counters, and
// SetupTracing installs an OTLP tracer provider for the spans emitted by
// middleware.Tracing.
//
// Per-execution spans and OTel metrics live in the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
