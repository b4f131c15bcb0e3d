package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/conveyor/backoff"
	"github.com/xraph/conveyor/ext"
	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/middleware"
	"github.com/xraph/conveyor/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClient scripts the server side of the worker loop.
type fakeClient struct {
	mu        sync.Mutex
	jobs      []*job.Job
	acked     []string
	failed    map[string]error
	events    []string
	directive string
	failNext  int
	ackErr    error
	failErr   error
	fetchGate chan struct{}

	fetches      atomic.Int32
	beats        atomic.Int32
	ackTries     atomic.Int32
	failTries    atomic.Int32
	fetchAborted atomic.Bool
	closed       atomic.Bool
	forceClosed  atomic.Bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{failed: make(map[string]error)}
}

func (f *fakeClient) push(j *job.Job) {
	f.mu.Lock()
	f.jobs = append(f.jobs, j)
	f.mu.Unlock()
}

func (f *fakeClient) setDirective(d string) {
	f.mu.Lock()
	f.directive = d
	f.mu.Unlock()
}

func (f *fakeClient) failNextFetches(n int) {
	f.mu.Lock()
	f.failNext = n
	f.mu.Unlock()
}

func (f *fakeClient) rejectAcks(err error) {
	f.mu.Lock()
	f.ackErr = err
	f.mu.Unlock()
}

func (f *fakeClient) rejectFails(err error) {
	f.mu.Lock()
	f.failErr = err
	f.mu.Unlock()
}

// holdFetches makes every fetch block on gate before replying, modeling
// a server that has accepted the FETCH but not yet answered.
func (f *fakeClient) holdFetches(gate chan struct{}) {
	f.mu.Lock()
	f.fetchGate = gate
	f.mu.Unlock()
}

func (f *fakeClient) ackedJids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.acked)
}

func (f *fakeClient) failure(jid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.failed[jid]
}

func (f *fakeClient) firstEvent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return ""
	}

	return f.events[0]
}

func (f *fakeClient) Fetch(ctx context.Context, _ ...string) (*job.Job, error) {
	f.fetches.Add(1)

	f.mu.Lock()
	f.events = append(f.events, "fetch")
	gate := f.fetchGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			f.fetchAborted.Store(true)

			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()

		return nil, errors.New("fake fetch failure")
	}
	var j *job.Job
	if len(f.jobs) > 0 {
		j = f.jobs[0]
		f.jobs = f.jobs[1:]
	}
	f.mu.Unlock()

	if j != nil {
		return j, nil
	}

	// Empty long-poll: a short server-side wait.
	select {
	case <-time.After(5 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return nil, nil
}

func (f *fakeClient) Beat(_ context.Context) (string, error) {
	f.beats.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "beat")

	return f.directive, nil
}

func (f *fakeClient) Ack(_ context.Context, jid string) error {
	f.ackTries.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acked = append(f.acked, jid)

	return nil
}

func (f *fakeClient) Fail(_ context.Context, jid string, jobErr error) error {
	f.failTries.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.failed[jid] = jobErr

	return nil
}

func (f *fakeClient) Close() error {
	f.closed.Store(true)

	return nil
}

func (f *fakeClient) ForceClose() error {
	f.forceClosed.Store(true)

	return nil
}

// startWorker launches w.Run in the background and stops it at cleanup.
func startWorker(t *testing.T, w *worker.Worker) {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	t.Cleanup(func() {
		w.Stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after Stop")
		}
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestWorker(t *testing.T, fc *fakeClient, reg *job.Registry, opts ...worker.Option) *worker.Worker {
	t.Helper()

	base := []worker.Option{
		worker.WithLogger(testLogger()),
		worker.WithConcurrency(1),
		worker.WithBeatInterval(time.Hour),
		worker.WithoutSignals(),
	}

	return worker.New(fc, reg, append(base, opts...)...)
}

// ──────────────────────────────────────────────────
// Execution
// ──────────────────────────────────────────────────

func TestWorker_ProcessesJob(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	var gotArg atomic.Value
	reg.Register("greet", func(_ context.Context, args ...any) error {
		if len(args) > 0 {
			gotArg.Store(args[0])
		}
		return nil
	})

	j := job.New("greet", "Alice")
	fc.push(j)

	w := newTestWorker(t, fc, reg)
	startWorker(t, w)

	waitFor(t, func() bool {
		return slices.Contains(fc.ackedJids(), j.Jid)
	}, "timed out waiting for the job to be acknowledged")

	if got := gotArg.Load(); got != "Alice" {
		t.Errorf("handler arg = %v, want Alice", got)
	}
	if err := fc.failure(j.Jid); err != nil {
		t.Errorf("job unexpectedly failed: %v", err)
	}
}

func TestWorker_HandlerErrorFailsJob(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	handlerErr := errors.New("boom")
	reg.Register("explode", func(_ context.Context, _ ...any) error {
		return handlerErr
	})

	j := job.New("explode")
	fc.push(j)

	w := newTestWorker(t, fc, reg)
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.failure(j.Jid) != nil
	}, "timed out waiting for the failure report")

	if err := fc.failure(j.Jid); !errors.Is(err, handlerErr) {
		t.Errorf("reported error = %v, want %v", err, handlerErr)
	}
	if slices.Contains(fc.ackedJids(), j.Jid) {
		t.Error("failed job must not be acknowledged")
	}
}

func TestWorker_UnregisteredJobtypeFailsJob(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	j := job.New("nobody_home")
	fc.push(j)

	w := newTestWorker(t, fc, reg)
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.failure(j.Jid) != nil
	}, "timed out waiting for the failure report")

	if err := fc.failure(j.Jid); !strings.Contains(err.Error(), "no handler registered") {
		t.Fatalf("reported error = %v, want a missing-handler error", err)
	}
}

func TestWorker_PanicFailsJobAndSlotSurvives(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	reg.Register("panicky", func(_ context.Context, _ ...any) error {
		panic("kaboom")
	})
	reg.Register("calm", func(_ context.Context, _ ...any) error {
		return nil
	})

	bad := job.New("panicky")
	good := job.New("calm")
	fc.push(bad)
	fc.push(good)

	w := newTestWorker(t, fc, reg)
	startWorker(t, w)

	waitFor(t, func() bool {
		return slices.Contains(fc.ackedJids(), good.Jid)
	}, "slot did not survive the panic")

	var perr *middleware.PanicError
	if err := fc.failure(bad.Jid); !errors.As(err, &perr) {
		t.Errorf("panic reported as %v, want *middleware.PanicError", err)
	}
}

func TestWorker_MiddlewareOnionOrder(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	var mu sync.Mutex
	var order []string
	record := func(step string) {
		mu.Lock()
		order = append(order, step)
		mu.Unlock()
	}

	mw := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
			record(name + "-enter")
			err := next(ctx)
			record(name + "-exit")
			return err
		}
	}

	reg.Register("ordered", func(_ context.Context, _ ...any) error {
		record("invoke")
		return nil
	})

	j := job.New("ordered")
	fc.push(j)

	w := newTestWorker(t, fc, reg, worker.WithMiddleware(mw("m1"), mw("m2")))
	startWorker(t, w)

	waitFor(t, func() bool {
		return slices.Contains(fc.ackedJids(), j.Jid)
	}, "timed out waiting for the job")

	mu.Lock()
	got := slices.Clone(order)
	mu.Unlock()

	want := []string{"m1-enter", "m2-enter", "invoke", "m2-exit", "m1-exit"}
	if !slices.Equal(got, want) {
		t.Errorf("execution order = %v, want %v", got, want)
	}
}

func TestWorker_MiddlewareWrapsUnregisteredJobtype(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	var entered atomic.Bool
	mw := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		entered.Store(true)
		return next(ctx)
	}

	j := job.New("missing_type")
	fc.push(j)

	w := newTestWorker(t, fc, reg, worker.WithMiddleware(mw))
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.failure(j.Jid) != nil
	}, "timed out waiting for the failure report")

	if !entered.Load() {
		t.Error("middleware must run even when the jobtype has no handler")
	}
}

func TestWorker_FetchErrorBacksOffAndRecovers(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()
	reg.Register("after_outage", func(_ context.Context, _ ...any) error { return nil })

	fc.failNextFetches(3)
	j := job.New("after_outage")
	fc.push(j)

	errs := &errorCountingExt{}
	hooks := ext.NewRegistry(testLogger())
	hooks.Register(errs)

	w := newTestWorker(t, fc, reg,
		worker.WithHooks(hooks),
		worker.WithErrorBackoff(instantBackoff{}),
	)
	startWorker(t, w)

	waitFor(t, func() bool {
		return slices.Contains(fc.ackedJids(), j.Jid)
	}, "worker did not recover from fetch errors")

	if got := errs.count.Load(); got < 3 {
		t.Errorf("worker error hook fired %d times, want at least 3", got)
	}
}

func TestWorker_AckErrorBacksOff(t *testing.T) {
	fc := newFakeClient()
	fc.rejectAcks(errors.New("write ACK: broken pipe"))

	reg := job.NewRegistry()
	reg.Register("fine", func(_ context.Context, _ ...any) error { return nil })
	fc.push(job.New("fine"))

	errs := &errorCountingExt{}
	hooks := ext.NewRegistry(testLogger())
	hooks.Register(errs)

	w := newTestWorker(t, fc, reg,
		worker.WithHooks(hooks),
		worker.WithErrorBackoff(backoff.NewConstant(time.Hour)),
	)
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.ackTries.Load() > 0
	}, "job was never acknowledged against the rejecting server")

	// The rejected ack must pause the slot, not let it spin straight
	// into the next fetch.
	fetched := fc.fetches.Load()
	time.Sleep(100 * time.Millisecond)
	if got := fc.fetches.Load(); got != fetched {
		t.Errorf("slot kept fetching through the error backoff: %d -> %d", fetched, got)
	}
	if errs.count.Load() == 0 {
		t.Error("expected a worker error event for the rejected ACK")
	}
}

func TestWorker_FailReportErrorBacksOff(t *testing.T) {
	fc := newFakeClient()
	fc.rejectFails(errors.New("write FAIL: broken pipe"))

	reg := job.NewRegistry()
	reg.Register("explode", func(_ context.Context, _ ...any) error {
		return errors.New("boom")
	})
	fc.push(job.New("explode"))

	w := newTestWorker(t, fc, reg, worker.WithErrorBackoff(backoff.NewConstant(time.Hour)))
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.failTries.Load() > 0
	}, "failure was never reported")

	fetched := fc.fetches.Load()
	time.Sleep(100 * time.Millisecond)
	if got := fc.fetches.Load(); got != fetched {
		t.Errorf("slot kept fetching through the error backoff: %d -> %d", fetched, got)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestWorker_InitialBeatBeforeFirstFetch(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	w := newTestWorker(t, fc, reg)
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.fetches.Load() > 0
	}, "worker never fetched")

	if first := fc.firstEvent(); first != "beat" {
		t.Errorf("first server call = %q, want the registration heartbeat", first)
	}
}

func TestWorker_QuietStopsFetching(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	w := newTestWorker(t, fc, reg, worker.WithConcurrency(2), worker.WithBeatInterval(20*time.Millisecond))
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.fetches.Load() > 2
	}, "worker never started fetching")

	w.Quiet()
	if got := w.State(); got != worker.StateQuieted {
		t.Fatalf("State() = %q, want %q", got, worker.StateQuieted)
	}

	// Let in-flight fetches settle, then verify acquisition stopped.
	time.Sleep(50 * time.Millisecond)
	settled := fc.fetches.Load()
	time.Sleep(150 * time.Millisecond)
	if got := fc.fetches.Load(); got != settled {
		t.Errorf("fetches continued after quiet: %d -> %d", settled, got)
	}

	// The heartbeat must keep running so the server can still terminate.
	before := fc.beats.Load()
	waitFor(t, func() bool {
		return fc.beats.Load() > before
	}, "heartbeat stopped after quiet")
}

func TestWorker_QuietThenStopStillCloses(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	w := newTestWorker(t, fc, reg)
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.fetches.Load() > 0
	}, "worker never started")

	w.Quiet()
	w.Stop()

	if !fc.closed.Load() {
		t.Error("client not closed after stop")
	}
	if got := w.State(); got != worker.StateStopped {
		t.Errorf("State() = %q, want %q", got, worker.StateStopped)
	}
}

func TestWorker_StopDrainsInFlightJob(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	release := make(chan struct{})
	startedJob := make(chan struct{})
	var once sync.Once
	reg.Register("slow", func(_ context.Context, _ ...any) error {
		once.Do(func() { close(startedJob) })
		<-release
		return nil
	})

	j := job.New("slow")
	fc.push(j)

	w := newTestWorker(t, fc, reg, worker.WithShutdownTimeout(3*time.Second))
	startWorker(t, w)

	<-startedJob
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	w.Stop()

	if !slices.Contains(fc.ackedJids(), j.Jid) {
		t.Error("in-flight job was not drained before stop resolved")
	}
	if !fc.closed.Load() {
		t.Error("client not closed on the graceful path")
	}
	if fc.forceClosed.Load() {
		t.Error("graceful drain must not force-close connections")
	}
}

func TestWorker_StopLetsInFlightFetchSettle(t *testing.T) {
	fc := newFakeClient()
	gate := make(chan struct{})
	fc.holdFetches(gate)

	reg := job.NewRegistry()
	reg.Register("committed", func(_ context.Context, _ ...any) error { return nil })

	w := newTestWorker(t, fc, reg)
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.fetches.Load() > 0
	}, "worker never fetched")

	// The server has committed a job to the blocked fetch but not yet
	// replied when Stop arrives.
	j := job.New("committed")
	fc.push(j)

	go w.Stop()
	waitFor(t, func() bool {
		return w.State() == worker.StateStopped
	}, "Stop did not advance the state")
	close(gate)

	waitFor(t, func() bool {
		return slices.Contains(fc.ackedJids(), j.Jid)
	}, "job dequeued during the drain window was never executed")

	if fc.fetchAborted.Load() {
		t.Error("graceful stop must let the in-flight fetch settle, not cancel it")
	}
	if fc.forceClosed.Load() {
		t.Error("graceful drain must not force-close connections")
	}
}

func TestWorker_StopForcesExitAfterTimeout(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	startedJob := make(chan struct{})
	var once sync.Once
	reg.Register("stuck", func(_ context.Context, _ ...any) error {
		once.Do(func() { close(startedJob) })
		<-release
		return nil
	})

	fc.push(job.New("stuck"))

	var exitCode atomic.Int32
	exitCode.Store(-1)
	w := newTestWorker(t, fc, reg,
		worker.WithShutdownTimeout(100*time.Millisecond),
		worker.WithExitFunc(func(code int) { exitCode.Store(int32(code)) }),
	)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	<-startedJob
	w.Stop()

	if got := exitCode.Load(); got != 1 {
		t.Errorf("exit code = %d, want 1", got)
	}
	if !fc.forceClosed.Load() {
		t.Error("expected connections to be force-closed on timeout")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Run did not return after forced stop")
	}
}

func TestWorker_BeatDirectiveQuiet(t *testing.T) {
	fc := newFakeClient()
	fc.setDirective("quiet")
	reg := job.NewRegistry()

	w := newTestWorker(t, fc, reg, worker.WithBeatInterval(20*time.Millisecond))
	startWorker(t, w)

	waitFor(t, func() bool {
		return w.State() == worker.StateQuieted
	}, "quiet directive not applied")
}

func TestWorker_BeatDirectiveTerminate(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	w := newTestWorker(t, fc, reg, worker.WithBeatInterval(20*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	waitFor(t, func() bool {
		return fc.fetches.Load() > 0
	}, "worker never started")

	fc.setDirective("terminate")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("terminate directive did not stop the worker")
	}

	if got := w.State(); got != worker.StateStopped {
		t.Errorf("State() = %q, want %q", got, worker.StateStopped)
	}
	if !fc.closed.Load() {
		t.Error("client not closed after terminate")
	}
}

func TestWorker_RunTwice(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	w := newTestWorker(t, fc, reg)
	startWorker(t, w)

	waitFor(t, func() bool {
		return fc.fetches.Load() > 0
	}, "worker never started")

	if err := w.Run(context.Background()); !errors.Is(err, worker.ErrAlreadyRunning) {
		t.Fatalf("second Run = %v, want ErrAlreadyRunning", err)
	}
}

func TestWorker_ContextCancelStops(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()

	w := newTestWorker(t, fc, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, func() bool {
		return fc.fetches.Load() > 0
	}, "worker never started")

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("context cancellation did not stop the worker")
	}

	if !fc.closed.Load() {
		t.Error("client not closed after context cancellation")
	}
}

func TestWorker_ExtensionHooksFire(t *testing.T) {
	fc := newFakeClient()
	reg := job.NewRegistry()
	reg.Register("tracked", func(_ context.Context, _ ...any) error { return nil })

	tracker := &trackingExt{}
	hooks := ext.NewRegistry(testLogger())
	hooks.Register(tracker)

	j := job.New("tracked")
	fc.push(j)

	w := newTestWorker(t, fc, reg, worker.WithHooks(hooks))
	startWorker(t, w)

	waitFor(t, func() bool {
		return slices.Contains(fc.ackedJids(), j.Jid)
	}, "timed out waiting for the job")

	if !tracker.started.Load() {
		t.Error("expected OnJobStarted to fire")
	}
	if !tracker.completed.Load() {
		t.Error("expected OnJobCompleted to fire")
	}
	if tracker.failed.Load() {
		t.Error("OnJobFailed fired for a successful job")
	}

	w.Stop()
	if !tracker.stateChanges() {
		t.Error("expected OnWorkerStateChanged to fire on stop")
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// instantBackoff keeps error-path tests fast.
type instantBackoff struct{}

func (instantBackoff) Delay(int) time.Duration { return time.Millisecond }

// trackingExt records which hooks fired.
type trackingExt struct {
	started     atomic.Bool
	completed   atomic.Bool
	failed      atomic.Bool
	mu          sync.Mutex
	transitions []string
}

func (e *trackingExt) Name() string { return "tracker" }

func (e *trackingExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.started.Store(true)
	return nil
}

func (e *trackingExt) OnJobCompleted(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.completed.Store(true)
	return nil
}

func (e *trackingExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.failed.Store(true)
	return nil
}

func (e *trackingExt) OnWorkerStateChanged(_ context.Context, from, to string) error {
	e.mu.Lock()
	e.transitions = append(e.transitions, from+"->"+to)
	e.mu.Unlock()
	return nil
}

func (e *trackingExt) stateChanges() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.transitions) > 0
}

// errorCountingExt counts worker error events.
type errorCountingExt struct {
	count atomic.Int32
}

func (e *errorCountingExt) Name() string { return "error-counter" }

func (e *errorCountingExt) OnWorkerError(_ context.Context, _ error) error {
	e.count.Add(1)
	return nil
}
