// Package ext defines the extension system for Conveyor.
// Extensions are notified of lifecycle events (connection opened, job
// failed, worker state changed, etc.) and can react to them — logging,
// metrics, tracing, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/wire"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Connection lifecycle hooks
// ──────────────────────────────────────────────────

// ConnectionOpened is called after the socket to the job server is
// established, before the handshake completes.
type ConnectionOpened interface {
	OnConnectionOpened(ctx context.Context, addr string) error
}

// GreetingReceived is called when the server banner has been parsed.
type GreetingReceived interface {
	OnGreetingReceived(ctx context.Context, g *wire.Greeting) error
}

// ConnectionIdle is called when a connection has seen no traffic for the
// idle window. Purely observational; the connection stays usable.
type ConnectionIdle interface {
	OnConnectionIdle(ctx context.Context, idle time.Duration) error
}

// ConnectionError is called on a transport failure. The connection is
// unusable afterwards and all in-flight requests have been failed.
type ConnectionError interface {
	OnConnectionError(ctx context.Context, err error) error
}

// ConnectionClosed is called exactly once when a connection shuts down,
// whether by Close or by transport failure.
type ConnectionClosed interface {
	OnConnectionClosed(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Worker lifecycle hooks
// ──────────────────────────────────────────────────

// JobStarted is called when a slot begins executing a fetched job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully, before the
// acknowledgement is sent to the server.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when job execution returns an error, before the
// failure is reported to the server.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// WorkerError is called when a slot loop hits an infrastructure error
// (fetch, ack, or fail transmission), before the error backoff pause.
type WorkerError interface {
	OnWorkerError(ctx context.Context, err error) error
}

// WorkerStateChanged is called on every worker state transition
// (running → quieted → stopped).
type WorkerStateChanged interface {
	OnWorkerStateChanged(ctx context.Context, from, to string) error
}

// Shutdown is called during graceful shutdown, after the slots have
// drained or the shutdown timeout fired.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
