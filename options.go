package conveyor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xraph/conveyor/backoff"
	"github.com/xraph/conveyor/client"
	"github.com/xraph/conveyor/ext"
	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/middleware"
	"github.com/xraph/conveyor/queue"
	"github.com/xraph/conveyor/worker"
)

// Option configures a Manager.
type Option func(*Manager) error

// Perform is the handler signature for registered jobtypes.
type Perform = job.Perform

// Manager ties a pooled Client and a Worker together behind a single
// registration surface.
//
// Create one with New() and functional options, register handlers with
// Register, then call Run. The same client serves producer calls made
// through Client() and the worker's fetch loop, so a process that both
// pushes and consumes jobs shares one connection pool.
type Manager struct {
	config     Config
	logger     *slog.Logger
	registry   *job.Registry
	hooks      *ext.Registry
	extensions []ext.Extension
	provider   queue.Provider
	mws        []middleware.Middleware
	errBackoff backoff.Strategy
	dial       client.DialFunc
	useSignals bool
	exit       func(int)

	mu     sync.Mutex
	client *client.Client
	worker *worker.Worker
}

// New creates a Manager with the given options.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		config:     DefaultConfig(),
		logger:     slog.Default(),
		registry:   job.NewRegistry(),
		useSignals: true,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.hooks == nil {
		m.hooks = ext.NewRegistry(m.logger)
	}
	for _, e := range m.extensions {
		m.hooks.Register(e)
	}
	return m, nil
}

// Register binds a handler to a jobtype. Fetched jobs whose type has no
// handler are reported back to the server as failed.
func (m *Manager) Register(jobtype string, fn Perform) {
	m.registry.Register(jobtype, fn)
}

// Use appends middleware to the execution chain, outermost first.
func (m *Manager) Use(mws ...middleware.Middleware) {
	m.mws = append(m.mws, mws...)
}

// Logger returns the manager's logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// Config returns a copy of the manager's configuration.
func (m *Manager) Config() Config { return m.config }

// Client returns the underlying pooled client, building it on first use.
// Use it to push jobs from the same process that consumes them.
func (m *Manager) Client() (*client.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buildClient()
}

// Run connects to the server and processes jobs until Stop, a
// termination signal, a server terminate directive, or cancellation of
// ctx ends the worker. Managers are single-use; a second Run returns
// ErrAlreadyRunning.
func (m *Manager) Run(ctx context.Context) error {
	w, err := m.buildWorker()
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// Quiet stops fetching new jobs while letting running ones finish. The
// heartbeat keeps going so the server can still terminate the worker.
// Before Run there is nothing to quiet and ErrNotRunning is returned.
func (m *Manager) Quiet() error {
	w := m.currentWorker()
	if w == nil {
		return ErrNotRunning
	}
	w.Quiet()

	return nil
}

// Stop drains running jobs within the shutdown timeout, then closes the
// client. Safe to call before or without Run.
func (m *Manager) Stop() {
	if w := m.currentWorker(); w != nil {
		w.Stop()
		return
	}

	m.mu.Lock()
	cl := m.client
	m.client = nil
	m.mu.Unlock()
	if cl != nil {
		if err := cl.Close(); err != nil {
			m.logger.Warn("closing client", slog.Any("error", err))
		}
	}
}

// State reports the worker lifecycle state ("running", "quieted",
// "stopped"), or "" before Run.
func (m *Manager) State() string {
	if w := m.currentWorker(); w != nil {
		return w.State()
	}
	return ""
}

func (m *Manager) currentWorker() *worker.Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.worker
}

// buildClient creates the shared client once. Callers hold m.mu.
func (m *Manager) buildClient() (*client.Client, error) {
	if m.client != nil {
		return m.client, nil
	}

	size := m.config.PoolSize
	if size <= 0 {
		size = m.config.Concurrency + 2
	}
	copts := []client.Option{
		client.WithWid(m.config.Wid),
		client.WithLabels(m.config.Labels...),
		client.WithLogger(m.logger),
		client.WithHooks(m.hooks),
		client.WithPoolSize(size),
	}
	if m.config.Address != "" {
		copts = append(copts, client.WithAddress(m.config.Address))
	}
	if m.dial != nil {
		copts = append(copts, client.WithDialer(m.dial))
	}

	cl, err := client.New(copts...)
	if err != nil {
		return nil, err
	}
	m.client = cl
	return cl, nil
}

func (m *Manager) buildWorker() (*worker.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.worker != nil {
		return m.worker, nil
	}

	cl, err := m.buildClient()
	if err != nil {
		return nil, err
	}

	wopts := []worker.Option{
		worker.WithConcurrency(m.config.Concurrency),
		worker.WithBeatInterval(m.config.BeatInterval),
		worker.WithShutdownTimeout(m.config.ShutdownTimeout),
		worker.WithLogger(m.logger),
		worker.WithHooks(m.hooks),
		worker.WithMiddleware(m.mws...),
	}
	if m.provider != nil {
		wopts = append(wopts, worker.WithQueueProvider(m.provider))
	} else {
		wopts = append(wopts, worker.WithQueues(m.config.Queues...))
	}
	if m.errBackoff != nil {
		wopts = append(wopts, worker.WithErrorBackoff(m.errBackoff))
	}
	if !m.useSignals {
		wopts = append(wopts, worker.WithoutSignals())
	}
	if m.exit != nil {
		wopts = append(wopts, worker.WithExitFunc(m.exit))
	}

	m.worker = worker.New(cl, m.registry, wopts...)
	return m.worker, nil
}

// WithAddress sets the job server address, overriding CONVEYOR_URL.
func WithAddress(addr string) Option {
	return func(m *Manager) error {
		m.config.Address = addr
		return nil
	}
}

// WithWid overrides the generated worker identity.
func WithWid(wid string) Option {
	return func(m *Manager) error {
		m.config.Wid = wid
		return nil
	}
}

// WithConcurrency sets the number of processor slots.
func WithConcurrency(n int) Option {
	return func(m *Manager) error {
		if n < 1 {
			return ErrInvalidConcurrency
		}
		m.config.Concurrency = n
		return nil
	}
}

// WithQueues sets the ordered queue list each fetch drains from.
func WithQueues(queues ...string) Option {
	return func(m *Manager) error {
		if len(queues) == 0 {
			return ErrNoQueues
		}
		for _, q := range queues {
			if strings.TrimSpace(q) == "" {
				return ErrEmptyQueueName
			}
		}
		m.config.Queues = queues
		return nil
	}
}

// WithQueueProvider sets a per-fetch queue strategy such as
// queue.NewWeighted or queue.NewGate, taking precedence over WithQueues.
func WithQueueProvider(p queue.Provider) Option {
	return func(m *Manager) error {
		m.provider = p
		return nil
	}
}

// WithLabels sets the labels advertised during the handshake.
func WithLabels(labels ...string) Option {
	return func(m *Manager) error {
		m.config.Labels = labels
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) error {
		m.logger = l
		return nil
	}
}

// WithBeatInterval sets the heartbeat period.
func WithBeatInterval(d time.Duration) Option {
	return func(m *Manager) error {
		if d > 0 {
			m.config.BeatInterval = d
		}
		return nil
	}
}

// WithShutdownTimeout bounds the graceful drain on stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) error {
		if d > 0 {
			m.config.ShutdownTimeout = d
		}
		return nil
	}
}

// WithPoolSize caps the connection pool, overriding the Concurrency+2
// default.
func WithPoolSize(n int) Option {
	return func(m *Manager) error {
		if n < 1 {
			return ErrInvalidPoolSize
		}
		m.config.PoolSize = n
		return nil
	}
}

// WithExtensions registers lifecycle extensions, such as
// observability.NewMetricsExtension().
func WithExtensions(exts ...ext.Extension) Option {
	return func(m *Manager) error {
		m.extensions = append(m.extensions, exts...)
		return nil
	}
}

// WithHooks shares an existing extension registry instead of creating
// one. Extensions from WithExtensions are registered into it.
func WithHooks(r *ext.Registry) Option {
	return func(m *Manager) error {
		m.hooks = r
		return nil
	}
}

// WithErrorBackoff sets the delay strategy applied after worker loop
// errors.
func WithErrorBackoff(s backoff.Strategy) Option {
	return func(m *Manager) error {
		m.errBackoff = s
		return nil
	}
}

// WithDialer replaces the transport dialer. Tests use it to point the
// client at an in-process server.
func WithDialer(d client.DialFunc) Option {
	return func(m *Manager) error {
		m.dial = d
		return nil
	}
}

// WithoutSignals disables the process signal traps, for embedding the
// manager in a program that manages its own signals.
func WithoutSignals() Option {
	return func(m *Manager) error {
		m.useSignals = false
		return nil
	}
}

// WithExitFunc replaces the process-exit call used when the shutdown
// timeout fires.
func WithExitFunc(fn func(int)) Option {
	return func(m *Manager) error {
		m.exit = fn
		return nil
	}
}
