// Package client provides a Go client for the Conveyor job server's line
// protocol over TCP.
//
// Usage:
//
//	c, err := client.New(client.WithAddress("localhost:7519"))
//	if err != nil { ... }
//	defer c.Close()
//
//	// Enqueue a job.
//	jid, err := c.Push(ctx, job.New("send_email", "user@example.com"))
//
//	// Consume jobs (normally done by the worker package).
//	j, err := c.Fetch(ctx, "critical", "default")
//
// A Client owns a pool of connections. Each call checks one out for its
// full request/response exchange, which is what keeps the protocol's
// positional correlation sound: two requests never interleave on one
// socket. Connections that hit a transport error are destroyed rather
// than returned; the pool dials a replacement on demand.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/xraph/conveyor/ext"
	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/mutate"
	"github.com/xraph/conveyor/wire"
)

// DefaultAddress is used when neither WithAddress nor CONVEYOR_URL
// provides one.
const DefaultAddress = "localhost:7519"

// EnvAddress is the environment variable consulted for the server
// address.
const EnvAddress = "CONVEYOR_URL"

// DefaultPoolSize is the connection cap for a standalone client. The
// worker package overrides it to concurrency+2.
const DefaultPoolSize = 5

// ErrMissingWid is returned by Beat on a producer-only client.
var ErrMissingWid = errors.New("conveyor: beat requires a worker id")

// Client is a pooled client for the job server.
type Client struct {
	addr     string
	wid      string
	labels   []string
	hostname string
	pid      int

	logger      *slog.Logger
	hooks       *ext.Registry
	dial        DialFunc
	poolSize    int
	idleTimeout time.Duration
	openTimeout time.Duration

	pool *puddle.Pool[*Connection]

	// Live connections, for ForceClose. The pool does not expose
	// checked-out resources, so the constructor/destructor pair keeps
	// this set current.
	connMu sync.Mutex
	conns  map[*Connection]struct{}
}

// New creates a Client and its connection pool. No connection is dialed
// until the first operation needs one.
func New(opts ...Option) (*Client, error) {
	hostname, _ := os.Hostname()

	c := &Client{
		addr:        DefaultAddress,
		hostname:    hostname,
		pid:         os.Getpid(),
		logger:      slog.Default(),
		dial:        defaultDial,
		poolSize:    DefaultPoolSize,
		idleTimeout: 10 * time.Second,
		openTimeout: 5 * time.Second,
		conns:       make(map[*Connection]struct{}),
	}
	if env := os.Getenv(EnvAddress); env != "" {
		c.addr = env
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hooks == nil {
		c.hooks = ext.NewRegistry(c.logger)
	}

	pool, err := puddle.NewPool(&puddle.Config[*Connection]{
		Constructor: c.connect,
		Destructor:  c.disconnect,
		MaxSize:     int32(c.poolSize),
	})
	if err != nil {
		return nil, fmt.Errorf("conveyor: create connection pool: %w", err)
	}
	c.pool = pool

	return c, nil
}

// connect is the pool constructor: dial, greeting, HELLO.
func (c *Client) connect(ctx context.Context) (*Connection, error) {
	conn := NewConnection(c.addr,
		WithConnectionLogger(c.logger),
		WithConnectionHooks(c.hooks),
		WithConnectionDialer(c.dial),
		WithConnectionIdleTimeout(c.idleTimeout),
		WithConnectionOpenTimeout(c.openTimeout),
	)
	if err := conn.Open(ctx); err != nil {
		return nil, err
	}

	hello := wire.Hello{
		Hostname: c.hostname,
		Wid:      c.wid,
		Pid:      c.pid,
		Labels:   c.labels,
		Version:  wire.ProtocolVersion,
	}
	cmd, err := wire.JSONCommand(wire.VerbHello, hello)
	if err != nil {
		_ = conn.Close(ctx)

		return nil, fmt.Errorf("conveyor: encode hello: %w", err)
	}
	if err := conn.SendAndExpect(ctx, cmd, "OK"); err != nil {
		_ = conn.Close(ctx)

		return nil, fmt.Errorf("conveyor: handshake: %w", err)
	}

	c.connMu.Lock()
	c.conns[conn] = struct{}{}
	c.connMu.Unlock()

	return conn, nil
}

// disconnect is the pool destructor.
func (c *Client) disconnect(conn *Connection) {
	c.connMu.Lock()
	delete(c.conns, conn)
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = conn.Close(ctx)
}

// withConn checks a connection out of the pool for one exchange.
// Server-level errors (protocol error replies, expectation mismatches)
// leave the connection healthy and it goes back to the pool; anything
// else means the socket state is unknown and the connection is
// destroyed.
func (c *Client) withConn(ctx context.Context, fn func(conn *Connection) error) error {
	res, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("conveyor: acquire connection: %w", err)
	}

	err = fn(res.Value())
	if err != nil && !recoverable(err) {
		res.Destroy()

		return err
	}
	res.Release()

	return err
}

// recoverable reports whether the connection survived err with its
// request/response pairing intact.
func recoverable(err error) bool {
	var perr *wire.ProtocolError

	return errors.As(err, &perr) || errors.Is(err, ErrUnexpectedReply)
}

// ── Operations ──────────────────────────────────────

// Push enqueues a job and returns its jid. Missing jid, queue, and
// created_at fields are filled with defaults first.
func (c *Client) Push(ctx context.Context, j *job.Job) (string, error) {
	if j.Type == "" {
		return "", errors.New("conveyor: push: job has no jobtype")
	}
	if j.Jid == "" {
		j.Jid = job.New(j.Type).Jid
	}
	if j.Queue == "" {
		j.Queue = "default"
	}
	if j.CreatedAt == "" {
		j.CreatedAt = job.Nowstamp()
	}

	cmd, err := wire.JSONCommand(wire.VerbPush, j)
	if err != nil {
		return "", fmt.Errorf("conveyor: encode job: %w", err)
	}

	if err := c.withConn(ctx, func(conn *Connection) error {
		return conn.SendAndExpect(ctx, cmd, "OK")
	}); err != nil {
		return "", err
	}

	return j.Jid, nil
}

// Fetch requests the next job from the given queues, in order. The
// server long-polls for roughly two seconds; a nil job with a nil error
// means nothing was available.
func (c *Client) Fetch(ctx context.Context, queues ...string) (*job.Job, error) {
	if len(queues) == 0 {
		queues = []string{"default"}
	}
	cmd := wire.NewCommand(wire.VerbFetch, queues...)

	var fetched *job.Job
	err := c.withConn(ctx, func(conn *Connection) error {
		msg, err := conn.Send(ctx, cmd)
		if err != nil {
			return err
		}
		if msg.Null || msg.Text == "" {
			return nil
		}

		var j job.Job
		if err := json.Unmarshal([]byte(msg.Text), &j); err != nil {
			return fmt.Errorf("conveyor: decode fetched job: %w", err)
		}
		fetched = &j

		return nil
	})
	if err != nil {
		return nil, err
	}

	return fetched, nil
}

// Beat sends a heartbeat and returns the server's directive: "", "quiet",
// or "terminate".
func (c *Client) Beat(ctx context.Context) (string, error) {
	if c.wid == "" {
		return "", ErrMissingWid
	}

	cmd, err := wire.JSONCommand(wire.VerbBeat, map[string]string{"wid": c.wid})
	if err != nil {
		return "", fmt.Errorf("conveyor: encode beat: %w", err)
	}

	var state string
	err = c.withConn(ctx, func(conn *Connection) error {
		msg, err := conn.Send(ctx, cmd)
		if err != nil {
			return err
		}
		state = parseBeatReply(msg.Text)

		return nil
	})

	return state, err
}

// parseBeatReply extracts the directive from a BEAT response. The
// documented form is "OK" or a {"state":...} document; a bare state word
// is accepted for compatibility.
func parseBeatReply(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || text == "OK" {
		return ""
	}

	var directive struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal([]byte(text), &directive); err == nil && directive.State != "" {
		return directive.State
	}

	return strings.ToLower(text)
}

// Ack reports a job as completed.
func (c *Client) Ack(ctx context.Context, jid string) error {
	cmd, err := wire.JSONCommand(wire.VerbAck, map[string]string{"jid": jid})
	if err != nil {
		return fmt.Errorf("conveyor: encode ack: %w", err)
	}

	return c.withConn(ctx, func(conn *Connection) error {
		return conn.SendAndExpect(ctx, cmd, "OK")
	})
}

// Fail reports a job as failed so the server can schedule a retry.
func (c *Client) Fail(ctx context.Context, jid string, jobErr error) error {
	cmd, err := wire.JSONCommand(wire.VerbFail, failurePayload(jid, jobErr))
	if err != nil {
		return fmt.Errorf("conveyor: encode fail: %w", err)
	}

	return c.withConn(ctx, func(conn *Connection) error {
		return conn.SendAndExpect(ctx, cmd, "OK")
	})
}

// Info returns the server's state document.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	cmd := wire.NewCommand(wire.VerbInfo)

	var info map[string]any
	err := c.withConn(ctx, func(conn *Connection) error {
		msg, err := conn.Send(ctx, cmd)
		if err != nil {
			return err
		}
		if msg.Null || msg.Text == "" {
			return nil
		}

		return json.Unmarshal([]byte(msg.Text), &info)
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// Flush clears all server state. Development and test helper; never call
// it in production.
func (c *Client) Flush(ctx context.Context) error {
	return c.withConn(ctx, func(conn *Connection) error {
		return conn.SendAndExpect(ctx, wire.NewCommand(wire.VerbFlush), "OK")
	})
}

// Mutate executes one bulk mutation against a persistent job set.
func (c *Client) Mutate(ctx context.Context, op mutate.Operation) error {
	cmd, err := wire.JSONCommand(wire.VerbMutate, op)
	if err != nil {
		return fmt.Errorf("conveyor: encode mutation: %w", err)
	}

	return c.withConn(ctx, func(conn *Connection) error {
		return conn.SendAndExpect(ctx, cmd, "OK")
	})
}

// ── Lifecycle ───────────────────────────────────────

// Close drains the pool gracefully, waiting for checked-out connections
// to finish their exchange.
func (c *Client) Close() error {
	c.pool.Close()

	return nil
}

// ForceClose severs every live connection, failing their in-flight
// requests, then closes the pool. Used by the worker when the shutdown
// timeout fires.
func (c *Client) ForceClose() error {
	c.connMu.Lock()
	conns := make([]*Connection, 0, len(c.conns))
	for conn := range c.conns {
		conns = append(conns, conn)
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, conn := range conns {
		_ = conn.Close(ctx)
	}

	c.pool.Close()

	return nil
}
