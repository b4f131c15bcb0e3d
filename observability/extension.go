package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/conveyor/ext"
	"github.com/xraph/conveyor/job"
)

const meterName = "github.com/xraph/conveyor/observability"

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.ConnectionOpened   = (*MetricsExtension)(nil)
	_ ext.ConnectionClosed   = (*MetricsExtension)(nil)
	_ ext.ConnectionError    = (*MetricsExtension)(nil)
	_ ext.JobStarted         = (*MetricsExtension)(nil)
	_ ext.JobCompleted       = (*MetricsExtension)(nil)
	_ ext.JobFailed          = (*MetricsExtension)(nil)
	_ ext.WorkerError        = (*MetricsExtension)(nil)
	_ ext.WorkerStateChanged = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters through OpenTelemetry.
// Register it on an ext.Registry to automatically track connection churn,
// job outcomes, worker errors, and state transitions. It complements
// middleware.Metrics(), which measures per-execution latency.
type MetricsExtension struct {
	connOpened   metric.Int64Counter
	connClosed   metric.Int64Counter
	connErrors   metric.Int64Counter
	jobsStarted  metric.Int64Counter
	jobsDone     metric.Int64Counter
	jobsActive   metric.Int64UpDownCounter
	workerErrors metric.Int64Counter
	stateChanges metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// OpenTelemetry meter provider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on the provided
// meter. Use this to bind the extension to an explicit MeterProvider, as in
// tests with a manual reader.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			otel.Handle(err)
		}

		return c
	}

	active, err := meter.Int64UpDownCounter("conveyor.job.active",
		metric.WithDescription("Jobs currently executing"),
		metric.WithUnit("{job}"))
	if err != nil {
		otel.Handle(err)
	}

	return &MetricsExtension{
		connOpened:   counter("conveyor.connection.opened", "Connections opened to the job server", "{connection}"),
		connClosed:   counter("conveyor.connection.closed", "Connections closed", "{connection}"),
		connErrors:   counter("conveyor.connection.errors", "Transport-level connection errors", "{error}"),
		jobsStarted:  counter("conveyor.job.started", "Jobs handed to a handler", "{job}"),
		jobsDone:     counter("conveyor.job.finished", "Jobs finished, by outcome", "{job}"),
		jobsActive:   active,
		workerErrors: counter("conveyor.worker.errors", "Worker loop errors such as failed fetches and heartbeats", "{error}"),
		stateChanges: counter("conveyor.worker.state_changes", "Worker lifecycle state transitions", "{transition}"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Connection hooks ────────────────────────────────

// OnConnectionOpened implements ext.ConnectionOpened.
func (m *MetricsExtension) OnConnectionOpened(ctx context.Context, addr string) error {
	m.connOpened.Add(ctx, 1, metric.WithAttributes(attribute.String("addr", addr)))
	return nil
}

// OnConnectionClosed implements ext.ConnectionClosed.
func (m *MetricsExtension) OnConnectionClosed(ctx context.Context) error {
	m.connClosed.Add(ctx, 1)
	return nil
}

// OnConnectionError implements ext.ConnectionError.
func (m *MetricsExtension) OnConnectionError(ctx context.Context, _ error) error {
	m.connErrors.Add(ctx, 1)
	return nil
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, j *job.Job) error {
	m.jobsStarted.Add(ctx, 1, jobAttrs(j))
	m.jobsActive.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.jobsDone.Add(ctx, 1, jobAttrs(j), metric.WithAttributes(attribute.String("status", "ok")))
	m.jobsActive.Add(ctx, -1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.jobsDone.Add(ctx, 1, jobAttrs(j), metric.WithAttributes(attribute.String("status", "error")))
	m.jobsActive.Add(ctx, -1, jobAttrs(j))
	return nil
}

// ── Worker hooks ────────────────────────────────────

// OnWorkerError implements ext.WorkerError.
func (m *MetricsExtension) OnWorkerError(ctx context.Context, _ error) error {
	m.workerErrors.Add(ctx, 1)
	return nil
}

// OnWorkerStateChanged implements ext.WorkerStateChanged.
func (m *MetricsExtension) OnWorkerStateChanged(ctx context.Context, _, to string) error {
	m.stateChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
	return nil
}

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("jobtype", j.Type),
		attribute.String("queue", j.Queue),
	)
}
