package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/xraph/conveyor/ext"
	"github.com/xraph/conveyor/wire"
)

var (
	// ErrConnectionClosed is returned for requests issued after Close and
	// delivered to requests that were in flight when the connection shut
	// down deliberately.
	ErrConnectionClosed = errors.New("conveyor: connection closed")

	// ErrUnexpectedReply is returned by SendAndExpect when the server
	// answered with something other than the expected text.
	ErrUnexpectedReply = errors.New("conveyor: unexpected server reply")
)

// DialFunc opens the transport to the job server. Tests swap this for an
// in-process pipe.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

// defaultDial opens a TCP connection with keep-alive enabled.
func defaultDial(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 15 * time.Second,
	}

	return d.DialContext(ctx, "tcp", addr)
}

// reply carries one correlated server response to a waiting Send call.
type reply struct {
	msg *wire.Message
	err error
}

// Connection is a single socket to the job server.
//
// The protocol has no request IDs: responses arrive in the order requests
// were written, so correlation is a FIFO queue of waiting callers. Send
// holds one mutex across enqueue-and-write, which keeps the queue order
// identical to the wire order even under concurrent use. The read loop
// pops the oldest waiter for every parsed message.
type Connection struct {
	addr        string
	dial        DialFunc
	logger      *slog.Logger
	hooks       *ext.Registry
	openTimeout time.Duration
	idleTimeout time.Duration

	conn     net.Conn
	reader   *wire.Reader
	greeting *wire.Greeting

	mu      sync.Mutex
	pending []chan reply
	closed  bool
	started bool

	readDone  chan struct{}
	idleTimer *time.Timer
	closeOnce sync.Once
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithConnectionLogger sets the logger. Defaults to slog.Default().
func WithConnectionLogger(l *slog.Logger) ConnectionOption {
	return func(c *Connection) { c.logger = l }
}

// WithConnectionHooks sets the extension registry notified of
// connection lifecycle events.
func WithConnectionHooks(r *ext.Registry) ConnectionOption {
	return func(c *Connection) { c.hooks = r }
}

// WithConnectionDialer replaces the transport dialer.
func WithConnectionDialer(d DialFunc) ConnectionOption {
	return func(c *Connection) { c.dial = d }
}

// WithConnectionIdleTimeout sets the idle watchdog window. The watchdog
// only emits the ConnectionIdle hook; it never fails requests. Zero
// disables it.
func WithConnectionIdleTimeout(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.idleTimeout = d }
}

// WithConnectionOpenTimeout bounds the dial-plus-greeting phase of Open
// when the caller's context has no deadline of its own.
func WithConnectionOpenTimeout(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.openTimeout = d }
}

// NewConnection creates an unopened connection to addr.
func NewConnection(addr string, opts ...ConnectionOption) *Connection {
	c := &Connection{
		addr:        addr,
		dial:        defaultDial,
		logger:      slog.Default(),
		openTimeout: 5 * time.Second,
		idleTimeout: 10 * time.Second,
		readDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hooks == nil {
		c.hooks = ext.NewRegistry(c.logger)
	}

	return c
}

// Open dials the server, reads the greeting banner, and starts the read
// loop. The greeting is read directly here because the read loop has not
// started yet; it is the only server message with no matching request.
func (c *Connection) Open(ctx context.Context) error {
	conn, err := c.dial(ctx, c.addr)
	if err != nil {
		return fmt.Errorf("conveyor: dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.reader = wire.NewReader(conn)
	c.hooks.EmitConnectionOpened(ctx, c.addr)

	deadline := time.Now().Add(c.openTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	msg, err := c.reader.Read()
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("conveyor: read greeting: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	g, err := wire.ParseGreeting(msg.Text)
	if err != nil {
		_ = conn.Close()

		return err
	}
	c.greeting = g
	c.hooks.EmitGreetingReceived(ctx, g)

	if g.Version != wire.ProtocolVersion {
		c.logger.Warn("unexpected server protocol version",
			slog.Int("server", g.Version),
			slog.Int("client", wire.ProtocolVersion),
		)
	}

	c.logger.Debug("connected to job server", slog.String("addr", c.addr))

	if c.idleTimeout > 0 {
		c.idleTimer = time.AfterFunc(c.idleTimeout, c.idleFired)
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go c.readLoop()

	return nil
}

// Greeting returns the banner received during Open, or nil before Open.
func (c *Connection) Greeting() *wire.Greeting { return c.greeting }

// Send writes a command and waits for the correlated response. Server
// error replies come back as a *wire.ProtocolError and leave the
// connection usable; transport errors shut it down.
//
// A Send abandoned via ctx leaves its queue slot in place so later
// responses still line up; the orphaned response is discarded when it
// arrives.
func (c *Connection) Send(ctx context.Context, cmd *wire.Command) (*wire.Message, error) {
	ch := make(chan reply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return nil, ErrConnectionClosed
	}
	if d, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(d)
	}
	_, err := c.conn.Write(cmd.Bytes())
	_ = c.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		c.mu.Unlock()
		c.shutdown(err)

		return nil, fmt.Errorf("conveyor: write %s: %w", cmd.Verb, err)
	}
	c.pending = append(c.pending, ch)
	c.mu.Unlock()

	c.touch()

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendAndExpect sends a command and asserts the response text.
func (c *Connection) SendAndExpect(ctx context.Context, cmd *wire.Command, want string) error {
	msg, err := c.Send(ctx, cmd)
	if err != nil {
		return err
	}

	got := msg.Text
	if msg.Null {
		got = "<null>"
	}
	if got != want {
		return fmt.Errorf("%w: %s returned %q, expected %q", ErrUnexpectedReply, cmd.Verb, got, want)
	}

	return nil
}

// Close sends END, severs the socket, and waits for the read loop to
// flush every pending request with ErrConnectionClosed. Safe to call
// more than once.
func (c *Connection) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.teardown(ctx, ErrConnectionClosed, nil)
	})

	select {
	case <-c.readDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shutdown tears the connection down after a transport failure.
func (c *Connection) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.teardown(context.Background(), cause, cause)
	})
}

// teardown runs exactly once, under closeOnce: it marks the connection
// closed, severs the socket, and delivers pendingErr to every waiter.
// transportErr is nil for a deliberate Close, in which case a best-effort
// END is written first so the server reaps the connection immediately.
func (c *Connection) teardown(ctx context.Context, pendingErr, transportErr error) {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = nil
	started := c.started
	c.mu.Unlock()

	if !started {
		// No read loop to close readDone for us.
		defer close(c.readDone)
	}

	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}

	if c.conn != nil {
		if transportErr == nil {
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_, _ = c.conn.Write(wire.NewCommand(wire.VerbEnd).Bytes())
		}
		_ = c.conn.Close()
	}

	for _, ch := range pending {
		ch <- reply{err: pendingErr}
	}

	if transportErr != nil {
		c.logger.Warn("connection failed",
			slog.String("addr", c.addr),
			slog.String("error", transportErr.Error()),
			slog.Int("flushed", len(pending)),
		)
		c.hooks.EmitConnectionError(ctx, transportErr)
	}
	c.hooks.EmitConnectionClosed(ctx)
}

// readLoop parses server messages and hands each to the oldest waiter.
func (c *Connection) readLoop() {
	defer close(c.readDone)

	for {
		msg, err := c.reader.Read()
		if err != nil {
			var perr *wire.ProtocolError
			if errors.As(err, &perr) {
				// An error reply answers exactly one request; the
				// connection itself is fine.
				c.touch()
				if !c.deliver(reply{err: perr}) {
					c.logger.Warn("server error with no pending request",
						slog.String("error", perr.Msg),
					)
				}

				continue
			}

			c.shutdown(err)

			return
		}

		c.touch()
		if !c.deliver(reply{msg: msg}) {
			c.logger.Warn("discarding unexpected server message",
				slog.String("text", msg.Text),
			)
		}
	}
}

// deliver pops the oldest pending entry and hands it r. Returns false if
// nothing was pending.
func (c *Connection) deliver(r reply) bool {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()

		return false
	}
	ch := c.pending[0]
	c.pending = c.pending[1:]
	c.mu.Unlock()

	// Buffered channel: never blocks, even if the caller abandoned the
	// request via ctx.
	ch <- r

	return true
}

// touch pushes the idle watchdog forward after any traffic.
func (c *Connection) touch() {
	if c.idleTimer != nil {
		c.idleTimer.Reset(c.idleTimeout)
	}
}

// idleFired reports an idle window. Observational only: nothing is
// failed and the connection stays usable.
func (c *Connection) idleFired() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	c.logger.Debug("connection idle",
		slog.String("addr", c.addr),
		slog.Duration("idle", c.idleTimeout),
	)
	c.hooks.EmitConnectionIdle(context.Background(), c.idleTimeout)
	c.idleTimer.Reset(c.idleTimeout)
}
