package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/conveyor/backoff"
	"github.com/xraph/conveyor/ext"
	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/middleware"
	"github.com/xraph/conveyor/queue"
)

// Client is the server access the worker needs. *client.Client satisfies
// it; tests substitute a scripted fake.
type Client interface {
	Fetch(ctx context.Context, queues ...string) (*job.Job, error)
	Beat(ctx context.Context) (string, error)
	Ack(ctx context.Context, jid string) error
	Fail(ctx context.Context, jid string, jobErr error) error
	Close() error
	ForceClose() error
}

// Worker lifecycle states, in transition order. The machine is
// monotonic: running → quieted → stopped, never backwards.
const (
	StateRunning = "running"
	StateQuieted = "quieted"
	StateStopped = "stopped"
)

const (
	stateRunning int32 = iota
	stateQuieted
	stateStopped
)

func stateName(s int32) string {
	switch s {
	case stateQuieted:
		return StateQuieted
	case stateStopped:
		return StateStopped
	default:
		return StateRunning
	}
}

const (
	// DefaultConcurrency is the number of processing slots.
	DefaultConcurrency = 20

	// DefaultBeatInterval is how often the worker heartbeats.
	DefaultBeatInterval = 15 * time.Second

	// DefaultShutdownTimeout bounds the drain wait in Stop.
	DefaultShutdownTimeout = 8 * time.Second
)

// slotStagger spaces out the slots' first fetches so a worker with many
// slots does not stampede the server at startup.
const slotStagger = 25 * time.Millisecond

// gatePause is how long a slot waits when the queue provider returns no
// eligible queues for a round.
const gatePause = 250 * time.Millisecond

// ErrAlreadyRunning is returned by Run when the worker was already
// started once; workers are single-use.
var ErrAlreadyRunning = errors.New("conveyor: worker already running")

// Worker owns a fixed set of processing slots, each running an
// independent fetch→execute→report loop against a shared Client, plus
// the heartbeat that lets the server steer the worker's lifecycle.
type Worker struct {
	client   Client
	registry *job.Registry
	hooks    *ext.Registry
	logger   *slog.Logger
	provider queue.Provider

	mws []middleware.Middleware
	mw  middleware.Middleware

	concurrency     int
	beatInterval    time.Duration
	shutdownTimeout time.Duration
	errBackoff      backoff.Strategy
	useSignals      bool
	exit            func(int)

	state   atomic.Int32
	started atomic.Bool

	// fetchCtx carries the server exchanges a slot performs. A graceful
	// stop leaves it intact so an exchange already on the wire settles
	// and any job it returns is executed rather than left to its
	// reservation; only the forced path cancels it.
	fetchCtx  context.Context
	fetchStop context.CancelFunc

	stopping chan struct{} // closed by Stop; aborts slot pauses
	drained  chan struct{} // closed once every slot has returned
	finished chan struct{} // closed once the shutdown sequence resolved
	beatStop chan struct{}
	stopOnce sync.Once

	sigs chan os.Signal
}

// Option configures a Worker.
type Option func(*Worker)

// WithConcurrency sets the number of processing slots.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithQueues sets a fixed queue priority order.
func WithQueues(queues ...string) Option {
	return func(w *Worker) { w.provider = queue.Strict(queues) }
}

// WithQueueProvider sets the queue ordering strategy. See the queue
// package for weighted and rate-gated providers.
func WithQueueProvider(p queue.Provider) Option {
	return func(w *Worker) { w.provider = p }
}

// WithBeatInterval sets the heartbeat period.
func WithBeatInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.beatInterval = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight jobs.
func WithShutdownTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.shutdownTimeout = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithHooks sets the extension registry notified of worker lifecycle
// events.
func WithHooks(r *ext.Registry) Option {
	return func(w *Worker) { w.hooks = r }
}

// WithMiddleware appends middleware to the execution chain, outermost
// first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(w *Worker) { w.mws = append(w.mws, mws...) }
}

// WithErrorBackoff sets the delay strategy applied after a slot loop
// error. Defaults to a constant one second.
func WithErrorBackoff(s backoff.Strategy) Option {
	return func(w *Worker) { w.errBackoff = s }
}

// WithoutSignals disables the process signal traps, for embedding the
// worker in a program that manages its own signals.
func WithoutSignals() Option {
	return func(w *Worker) { w.useSignals = false }
}

// WithExitFunc replaces the process-exit call used when the shutdown
// timeout fires. Tests use it to observe the forced path.
func WithExitFunc(fn func(int)) Option {
	return func(w *Worker) { w.exit = fn }
}

// New creates a Worker consuming jobs through c, executing handlers
// from registry. The middleware chain is composed once, here.
func New(c Client, registry *job.Registry, opts ...Option) *Worker {
	w := &Worker{
		client:          c,
		registry:        registry,
		logger:          slog.Default(),
		provider:        queue.Strict{"default"},
		concurrency:     DefaultConcurrency,
		beatInterval:    DefaultBeatInterval,
		shutdownTimeout: DefaultShutdownTimeout,
		errBackoff:      backoff.NewConstant(time.Second),
		useSignals:      true,
		exit:            os.Exit,
		stopping:        make(chan struct{}),
		drained:         make(chan struct{}),
		finished:        make(chan struct{}),
		beatStop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.hooks == nil {
		w.hooks = ext.NewRegistry(w.logger)
	}
	w.mw = middleware.Chain(w.mws...)
	w.fetchCtx, w.fetchStop = context.WithCancel(context.Background())

	return w
}

// State returns the current lifecycle state: "running", "quieted", or
// "stopped".
func (w *Worker) State() string { return stateName(w.state.Load()) }

// Run starts the worker and blocks until it has stopped: by Stop, a
// termination signal, a server terminate directive, or cancellation of
// ctx. Workers are single-use; a second Run returns ErrAlreadyRunning.
func (w *Worker) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	// First heartbeat up front: it registers the wid with the server
	// and surfaces configuration mistakes before any slot fetches.
	if _, err := w.client.Beat(ctx); err != nil {
		w.logger.Warn("initial heartbeat failed", slog.String("error", err.Error()))
		w.hooks.EmitWorkerError(ctx, err)
	}

	go w.beatLoop()

	if w.useSignals {
		w.trapSignals()
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.finished:
		}
	}()

	w.logger.Info("worker started",
		slog.Int("concurrency", w.concurrency),
		slog.Duration("beat_interval", w.beatInterval),
	)

	slots := new(errgroup.Group)
	for i := 1; i <= w.concurrency; i++ {
		name := "p" + strconv.Itoa(i)
		delay := time.Duration(i-1) * slotStagger
		slots.Go(func() error {
			w.slot(name, delay)

			return nil
		})
	}
	go func() {
		_ = slots.Wait()
		close(w.drained)
	}()

	<-w.finished

	return nil
}

// Quiet stops fetching new jobs while in-flight jobs finish and the
// heartbeat continues, matching the server's "quiet" directive. There
// is no way back to running.
func (w *Worker) Quiet() {
	w.advance(stateQuieted)
}

// Stop shuts the worker down: signal traps are removed, the state
// advances through quieted to stopped, the heartbeat stops, and the
// drain of in-flight jobs races the shutdown timeout. A fetch already
// on the wire settles within that window, and a job it returns runs to
// completion as in-flight work. If the drain wins the client is closed
// and Run returns; if the timeout fires first the fetch context is
// cancelled, the client connections are severed, and the process exits
// with status 1, leaving in-flight jobs to the server's reservation
// reaper.
//
// Stop is idempotent and blocks until the shutdown sequence resolves.
func (w *Worker) Stop() {
	w.advance(stateQuieted)
	w.advance(stateStopped)
	w.stopOnce.Do(w.shutdown)
}

// advance moves the state machine forward to target, emitting the
// transition. Reports false if the state was already at or past it.
func (w *Worker) advance(target int32) bool {
	for {
		cur := w.state.Load()
		if cur >= target {
			return false
		}
		if w.state.CompareAndSwap(cur, target) {
			from, to := stateName(cur), stateName(target)
			w.logger.Info("worker state changed",
				slog.String("from", from),
				slog.String("to", to),
			)
			w.hooks.EmitWorkerStateChanged(context.Background(), from, to)

			return true
		}
	}
}

// shutdown runs exactly once, from Stop.
func (w *Worker) shutdown() {
	defer close(w.finished)
	defer w.fetchStop()

	w.untrapSignals()
	close(w.beatStop)
	close(w.stopping)

	if !w.started.Load() {
		// Never ran; there are no slots to drain.
		_ = w.client.Close()

		return
	}

	w.logger.Info("worker draining", slog.Duration("timeout", w.shutdownTimeout))

	select {
	case <-w.drained:
		w.logger.Info("worker drained, closing client")
		_ = w.client.Close()
		w.hooks.EmitShutdown(context.Background())
	case <-time.After(w.shutdownTimeout):
		w.logger.Warn("shutdown timeout exceeded, forcing connections closed")
		w.fetchStop()
		_ = w.client.ForceClose()
		w.hooks.EmitShutdown(context.Background())
		w.exit(1)
	}
}

// beatLoop heartbeats at the configured interval until shutdown and
// applies the server's directives.
func (w *Worker) beatLoop() {
	ticker := time.NewTicker(w.beatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.beatStop:
			return
		case <-ticker.C:
			w.beat()
		}
	}
}

// beat sends one heartbeat and applies the directive, if any.
func (w *Worker) beat() {
	state, err := w.client.Beat(context.Background())
	if err != nil {
		w.logger.Warn("heartbeat failed", slog.String("error", err.Error()))
		w.hooks.EmitWorkerError(context.Background(), err)

		return
	}

	switch state {
	case "":
		// No directive.
	case "quiet":
		w.logger.Info("server directed quiet")
		w.Quiet()
	case "terminate":
		w.logger.Info("server directed terminate")
		// Stop blocks until shutdown resolves and may not return at
		// all on the forced path, so it cannot run on the beat loop.
		go w.Stop()
	default:
		w.logger.Warn("unknown heartbeat directive", slog.String("state", state))
	}
}

// slot runs one processing loop. It returns, and never reschedules,
// once the worker leaves the running state; in-flight execution always
// completes first, and a fetch in flight at stop time settles before
// the slot exits.
func (w *Worker) slot(name string, delay time.Duration) {
	logger := w.logger.With(slog.String("slot", name))

	if delay > 0 && !w.pause(delay) {
		return
	}

	attempts := 0
	for w.state.Load() == stateRunning {
		queues := w.provider.Queues()
		if len(queues) == 0 {
			// Every queue is rate-gated out of this round.
			if !w.pause(gatePause) {
				return
			}

			continue
		}

		j, err := w.client.Fetch(w.fetchCtx, queues...)
		if err != nil {
			if w.state.Load() != stateRunning {
				return
			}
			attempts++
			logger.Warn("fetch failed",
				slog.String("error", err.Error()),
				slog.Int("attempt", attempts),
			)
			w.hooks.EmitWorkerError(context.Background(), err)
			if !w.pause(w.errBackoff.Delay(attempts)) {
				return
			}

			continue
		}

		if j == nil {
			// Nothing available; fetch again immediately. The server
			// already blocked for its long-poll window.
			attempts = 0

			continue
		}

		if err := w.execute(logger, j); err != nil {
			// The ack or fail report could not reach the server;
			// execute logged and emitted it. Pace the loop the same
			// way a fetch failure does.
			if w.state.Load() != stateRunning {
				return
			}
			attempts++
			if !w.pause(w.errBackoff.Delay(attempts)) {
				return
			}

			continue
		}
		attempts = 0
	}
}

// pause waits for d unless shutdown cancels the wait. Reports whether
// the slot should keep going.
func (w *Worker) pause(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-w.stopping:
		return false
	}
}
