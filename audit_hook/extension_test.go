package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	ah "github.com/xraph/conveyor/audit_hook"
	"github.com/xraph/conveyor/ext"
	"github.com/xraph/conveyor/job"
)

// ── Mock recorder ────────────────────────────────────

// mockRecorder captures audit events for verification.
type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockRecorder) last() *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return m.events[len(m.events)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockRecorder) findByAction(action string) *ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, evt := range m.events {
		if evt.Action == action {
			return evt
		}
	}
	return nil
}

// ── Test helpers ─────────────────────────────────────

func newTestJob() *job.Job {
	return job.New("send_email", "user@example.com")
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	if e.Name() != "audit-hook" {
		t.Errorf("expected name %q, got %q", "audit-hook", e.Name())
	}
}

// ── Job lifecycle tests ──────────────────────────────

func TestExtension_JobStarted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	j := newTestJob()

	if err := e.OnJobStarted(context.Background(), j); err != nil {
		t.Fatalf("OnJobStarted: %v", err)
	}

	evt := rec.last()
	if evt == nil {
		t.Fatal("no event recorded")
	}
	if evt.Action != ah.ActionJobStarted {
		t.Errorf("Action: want %q, got %q", ah.ActionJobStarted, evt.Action)
	}
	if evt.Resource != ah.ResourceJob {
		t.Errorf("Resource: want %q, got %q", ah.ResourceJob, evt.Resource)
	}
	if evt.Category != ah.CategoryJob {
		t.Errorf("Category: want %q, got %q", ah.CategoryJob, evt.Category)
	}
	if evt.ResourceID != j.Jid {
		t.Errorf("ResourceID: want %q, got %q", j.Jid, evt.ResourceID)
	}
	if evt.Severity != ah.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", ah.SeverityInfo, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeSuccess {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeSuccess, evt.Outcome)
	}
	if evt.Metadata["jobtype"] != "send_email" {
		t.Errorf("Metadata[jobtype]: want %q, got %v", "send_email", evt.Metadata["jobtype"])
	}
	if evt.Metadata["queue"] != "default" {
		t.Errorf("Metadata[queue]: want %q, got %v", "default", evt.Metadata["queue"])
	}
}

func TestExtension_JobCompleted(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	j := newTestJob()
	elapsed := 150 * time.Millisecond

	if err := e.OnJobCompleted(context.Background(), j, elapsed); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionJobCompleted {
		t.Errorf("Action: want %q, got %q", ah.ActionJobCompleted, evt.Action)
	}
	if evt.Severity != ah.SeverityInfo {
		t.Errorf("Severity: want %q, got %q", ah.SeverityInfo, evt.Severity)
	}
	if evt.Metadata["elapsed_ms"] != elapsed.Milliseconds() {
		t.Errorf("Metadata[elapsed_ms]: want %d, got %v", elapsed.Milliseconds(), evt.Metadata["elapsed_ms"])
	}
}

func TestExtension_JobFailed(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	j := newTestJob()
	jobErr := errors.New("connection timeout")

	if err := e.OnJobFailed(context.Background(), j, jobErr); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionJobFailed {
		t.Errorf("Action: want %q, got %q", ah.ActionJobFailed, evt.Action)
	}
	if evt.Severity != ah.SeverityCritical {
		t.Errorf("Severity: want %q, got %q", ah.SeverityCritical, evt.Severity)
	}
	if evt.Outcome != ah.OutcomeFailure {
		t.Errorf("Outcome: want %q, got %q", ah.OutcomeFailure, evt.Outcome)
	}
	if evt.Reason != "connection timeout" {
		t.Errorf("Reason: want %q, got %q", "connection timeout", evt.Reason)
	}
	if evt.Metadata["error"] != "connection timeout" {
		t.Errorf("Metadata[error]: want %q, got %v", "connection timeout", evt.Metadata["error"])
	}
}

// ── Worker lifecycle tests ───────────────────────────

func TestExtension_WorkerError(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnWorkerError(context.Background(), errors.New("fetch failed")); err != nil {
		t.Fatalf("OnWorkerError: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionWorkerError {
		t.Errorf("Action: want %q, got %q", ah.ActionWorkerError, evt.Action)
	}
	if evt.Severity != ah.SeverityWarning {
		t.Errorf("Severity: want %q, got %q", ah.SeverityWarning, evt.Severity)
	}
	if evt.Reason != "fetch failed" {
		t.Errorf("Reason: want %q, got %q", "fetch failed", evt.Reason)
	}
}

func TestExtension_WorkerStateChanged(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnWorkerStateChanged(context.Background(), "running", "quieted"); err != nil {
		t.Fatalf("OnWorkerStateChanged: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionWorkerStateChanged {
		t.Errorf("Action: want %q, got %q", ah.ActionWorkerStateChanged, evt.Action)
	}
	if evt.Category != ah.CategoryWorker {
		t.Errorf("Category: want %q, got %q", ah.CategoryWorker, evt.Category)
	}
	if evt.Metadata["from"] != "running" {
		t.Errorf("Metadata[from]: want %q, got %v", "running", evt.Metadata["from"])
	}
	if evt.Metadata["to"] != "quieted" {
		t.Errorf("Metadata[to]: want %q, got %v", "quieted", evt.Metadata["to"])
	}
}

func TestExtension_Shutdown(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnShutdown(context.Background()); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionShutdown {
		t.Errorf("Action: want %q, got %q", ah.ActionShutdown, evt.Action)
	}
	if evt.Resource != ah.ResourceWorker {
		t.Errorf("Resource: want %q, got %q", ah.ResourceWorker, evt.Resource)
	}
}

// ── Connection lifecycle tests ───────────────────────

func TestExtension_ConnectionOpened(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)

	if err := e.OnConnectionOpened(context.Background(), "localhost:7519"); err != nil {
		t.Fatalf("OnConnectionOpened: %v", err)
	}

	evt := rec.last()
	if evt.Action != ah.ActionConnectionOpened {
		t.Errorf("Action: want %q, got %q", ah.ActionConnectionOpened, evt.Action)
	}
	if evt.Resource != ah.ResourceConnection {
		t.Errorf("Resource: want %q, got %q", ah.ResourceConnection, evt.Resource)
	}
	if evt.ResourceID != "localhost:7519" {
		t.Errorf("ResourceID: want %q, got %q", "localhost:7519", evt.ResourceID)
	}
}

// ── WithActions filter tests ─────────────────────────

func TestExtension_WithActions_FiltersDisabled(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec, ah.WithActions(ah.ActionJobCompleted, ah.ActionJobFailed))

	ctx := context.Background()
	j := newTestJob()

	// Started is NOT enabled — should be silently skipped.
	if err := e.OnJobStarted(ctx, j); err != nil {
		t.Fatalf("OnJobStarted: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 events (started disabled), got %d", rec.count())
	}

	// Completed IS enabled — should be recorded.
	if err := e.OnJobCompleted(ctx, j, 50*time.Millisecond); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 event (completed enabled), got %d", rec.count())
	}

	// Failed IS enabled — should be recorded.
	if err := e.OnJobFailed(ctx, j, errors.New("boom")); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("expected 2 events, got %d", rec.count())
	}
}

// ── RecorderFunc adapter test ────────────────────────

func TestRecorderFunc(t *testing.T) {
	var captured *ah.AuditEvent
	fn := ah.RecorderFunc(func(_ context.Context, evt *ah.AuditEvent) error {
		captured = evt
		return nil
	})

	e := ah.New(fn)

	if err := e.OnJobStarted(context.Background(), newTestJob()); err != nil {
		t.Fatalf("OnJobStarted: %v", err)
	}
	if captured == nil {
		t.Fatal("RecorderFunc was not called")
	}
	if captured.Action != ah.ActionJobStarted {
		t.Errorf("Action: want %q, got %q", ah.ActionJobStarted, captured.Action)
	}
}

// ── Recorder error handling test ─────────────────────

func TestExtension_RecorderError_DoesNotPropagate(t *testing.T) {
	failingRecorder := ah.RecorderFunc(func(_ context.Context, _ *ah.AuditEvent) error {
		return errors.New("audit backend down")
	})

	e := ah.New(failingRecorder, ah.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	// Hook should NOT return an error — audit failures must not block
	// the job pipeline.
	if err := e.OnJobStarted(context.Background(), newTestJob()); err != nil {
		t.Fatalf("expected no error (audit failure swallowed), got: %v", err)
	}
}

// ── Registry integration test ────────────────────────

func TestExtension_ViaRegistry(t *testing.T) {
	rec := &mockRecorder{}
	e := ah.New(rec)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := ext.NewRegistry(logger)
	reg.Register(e)

	ctx := context.Background()
	j := newTestJob()

	reg.EmitJobStarted(ctx, j)
	reg.EmitJobCompleted(ctx, j, 50*time.Millisecond)
	reg.EmitJobFailed(ctx, j, errors.New("fail"))
	reg.EmitWorkerError(ctx, errors.New("beat failed"))
	reg.EmitWorkerStateChanged(ctx, "running", "stopped")
	reg.EmitConnectionOpened(ctx, "localhost:7519")
	reg.EmitConnectionClosed(ctx)
	reg.EmitShutdown(ctx)

	// Verify every event type was recorded.
	allActions := ah.AllActions()
	if rec.count() != len(allActions) {
		t.Fatalf("expected %d events, got %d", len(allActions), rec.count())
	}

	for _, action := range allActions {
		if rec.findByAction(action) == nil {
			t.Errorf("missing event for action %q", action)
		}
	}
}

// ── AllActions test ──────────────────────────────────

func TestAllActions(t *testing.T) {
	actions := ah.AllActions()
	if len(actions) != 8 {
		t.Errorf("expected 8 actions, got %d", len(actions))
	}
}
