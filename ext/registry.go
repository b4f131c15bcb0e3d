package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/wire"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type connectionOpenedEntry struct {
	name string
	hook ConnectionOpened
}

type greetingReceivedEntry struct {
	name string
	hook GreetingReceived
}

type connectionIdleEntry struct {
	name string
	hook ConnectionIdle
}

type connectionErrorEntry struct {
	name string
	hook ConnectionError
}

type connectionClosedEntry struct {
	name string
	hook ConnectionClosed
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type workerErrorEntry struct {
	name string
	hook WorkerError
}

type workerStateChangedEntry struct {
	name string
	hook WorkerStateChanged
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	connectionOpened   []connectionOpenedEntry
	greetingReceived   []greetingReceivedEntry
	connectionIdle     []connectionIdleEntry
	connectionError    []connectionErrorEntry
	connectionClosed   []connectionClosedEntry
	jobStarted         []jobStartedEntry
	jobCompleted       []jobCompletedEntry
	jobFailed          []jobFailedEntry
	workerError        []workerErrorEntry
	workerStateChanged []workerStateChangedEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ConnectionOpened); ok {
		r.connectionOpened = append(r.connectionOpened, connectionOpenedEntry{name, h})
	}
	if h, ok := e.(GreetingReceived); ok {
		r.greetingReceived = append(r.greetingReceived, greetingReceivedEntry{name, h})
	}
	if h, ok := e.(ConnectionIdle); ok {
		r.connectionIdle = append(r.connectionIdle, connectionIdleEntry{name, h})
	}
	if h, ok := e.(ConnectionError); ok {
		r.connectionError = append(r.connectionError, connectionErrorEntry{name, h})
	}
	if h, ok := e.(ConnectionClosed); ok {
		r.connectionClosed = append(r.connectionClosed, connectionClosedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(WorkerError); ok {
		r.workerError = append(r.workerError, workerErrorEntry{name, h})
	}
	if h, ok := e.(WorkerStateChanged); ok {
		r.workerStateChanged = append(r.workerStateChanged, workerStateChangedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Connection event emitters
// ──────────────────────────────────────────────────

// EmitConnectionOpened notifies all extensions that implement ConnectionOpened.
func (r *Registry) EmitConnectionOpened(ctx context.Context, addr string) {
	for _, e := range r.connectionOpened {
		if err := e.hook.OnConnectionOpened(ctx, addr); err != nil {
			r.logHookError("OnConnectionOpened", e.name, err)
		}
	}
}

// EmitGreetingReceived notifies all extensions that implement GreetingReceived.
func (r *Registry) EmitGreetingReceived(ctx context.Context, g *wire.Greeting) {
	for _, e := range r.greetingReceived {
		if err := e.hook.OnGreetingReceived(ctx, g); err != nil {
			r.logHookError("OnGreetingReceived", e.name, err)
		}
	}
}

// EmitConnectionIdle notifies all extensions that implement ConnectionIdle.
func (r *Registry) EmitConnectionIdle(ctx context.Context, idle time.Duration) {
	for _, e := range r.connectionIdle {
		if err := e.hook.OnConnectionIdle(ctx, idle); err != nil {
			r.logHookError("OnConnectionIdle", e.name, err)
		}
	}
}

// EmitConnectionError notifies all extensions that implement ConnectionError.
func (r *Registry) EmitConnectionError(ctx context.Context, connErr error) {
	for _, e := range r.connectionError {
		if err := e.hook.OnConnectionError(ctx, connErr); err != nil {
			r.logHookError("OnConnectionError", e.name, err)
		}
	}
}

// EmitConnectionClosed notifies all extensions that implement ConnectionClosed.
func (r *Registry) EmitConnectionClosed(ctx context.Context) {
	for _, e := range r.connectionClosed {
		if err := e.hook.OnConnectionClosed(ctx); err != nil {
			r.logHookError("OnConnectionClosed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Worker event emitters
// ──────────────────────────────────────────────────

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitWorkerError notifies all extensions that implement WorkerError.
func (r *Registry) EmitWorkerError(ctx context.Context, workerErr error) {
	for _, e := range r.workerError {
		if err := e.hook.OnWorkerError(ctx, workerErr); err != nil {
			r.logHookError("OnWorkerError", e.name, err)
		}
	}
}

// EmitWorkerStateChanged notifies all extensions that implement WorkerStateChanged.
func (r *Registry) EmitWorkerStateChanged(ctx context.Context, from, to string) {
	for _, e := range r.workerStateChanged {
		if err := e.hook.OnWorkerStateChanged(ctx, from, to); err != nil {
			r.logHookError("OnWorkerStateChanged", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
