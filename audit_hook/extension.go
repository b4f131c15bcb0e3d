package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/conveyor/ext"
	"github.com/xraph/conveyor/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.JobStarted         = (*Extension)(nil)
	_ ext.JobCompleted       = (*Extension)(nil)
	_ ext.JobFailed          = (*Extension)(nil)
	_ ext.WorkerError        = (*Extension)(nil)
	_ ext.WorkerStateChanged = (*Extension)(nil)
	_ ext.ConnectionOpened   = (*Extension)(nil)
	_ ext.ConnectionClosed   = (*Extension)(nil)
	_ ext.Shutdown           = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so the package does not depend on any particular audit
// store — callers bridge to their backend with a RecorderFunc.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is the structured record emitted for each lifecycle action.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity levels assigned to audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes of the audited action.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges worker lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.Jid, CategoryJob, nil,
		"jobtype", j.Type,
		"queue", j.Queue,
	)
}

// OnJobCompleted implements ext.JobCompleted.
func (e *Extension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobCompleted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.Jid, CategoryJob, nil,
		"jobtype", j.Type,
		"queue", j.Queue,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return e.record(ctx, ActionJobFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, j.Jid, CategoryJob, jobErr,
		"jobtype", j.Type,
		"queue", j.Queue,
	)
}

// ── Worker lifecycle hooks ──────────────────────────

// OnWorkerError implements ext.WorkerError.
func (e *Extension) OnWorkerError(ctx context.Context, workerErr error) error {
	return e.record(ctx, ActionWorkerError, SeverityWarning, OutcomeFailure,
		ResourceWorker, "", CategoryWorker, workerErr,
	)
}

// OnWorkerStateChanged implements ext.WorkerStateChanged.
func (e *Extension) OnWorkerStateChanged(ctx context.Context, from, to string) error {
	return e.record(ctx, ActionWorkerStateChanged, SeverityInfo, OutcomeSuccess,
		ResourceWorker, "", CategoryWorker, nil,
		"from", from,
		"to", to,
	)
}

// OnShutdown implements ext.Shutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	return e.record(ctx, ActionShutdown, SeverityInfo, OutcomeSuccess,
		ResourceWorker, "", CategoryWorker, nil,
	)
}

// ── Connection lifecycle hooks ──────────────────────

// OnConnectionOpened implements ext.ConnectionOpened.
func (e *Extension) OnConnectionOpened(ctx context.Context, addr string) error {
	return e.record(ctx, ActionConnectionOpened, SeverityInfo, OutcomeSuccess,
		ResourceConnection, addr, CategoryConnection, nil,
	)
}

// OnConnectionClosed implements ext.ConnectionClosed.
func (e *Extension) OnConnectionClosed(ctx context.Context) error {
	return e.record(ctx, ActionConnectionClosed, SeverityInfo, OutcomeSuccess,
		ResourceConnection, "", CategoryConnection, nil,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
