// Package observability provides an OpenTelemetry metrics extension for
// warden. MetricsExtension implements the coordination and job lifecycle
// hooks and records system-wide counters for leadership changes, lease
// renewal failures, orphan recovery, deadline pushback, buffered push
// recovery and job outcomes.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
