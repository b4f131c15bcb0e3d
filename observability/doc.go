// Package observability provides an OpenTelemetry metrics extension for
// Conveyor. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for connection, job, and worker state events,
// plus a gauge of jobs currently executing.
//
// For per-execution tracing and latency histograms, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability
