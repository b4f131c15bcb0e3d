package client

import (
	"log/slog"
	"time"

	"github.com/xraph/conveyor/ext"
)

// Option configures a Client.
type Option func(*Client)

// WithAddress sets the job server address (host:port). Defaults to the
// CONVEYOR_URL environment variable, falling back to localhost:7519.
func WithAddress(addr string) Option {
	return func(c *Client) { c.addr = addr }
}

// WithWid sets the worker id announced in the HELLO handshake. Clients
// without a wid are producer-only: the server will not send them
// heartbeat directives and they must not call Beat.
func WithWid(wid string) Option {
	return func(c *Client) { c.wid = wid }
}

// WithLabels sets the labels announced in the HELLO handshake.
func WithLabels(labels ...string) Option {
	return func(c *Client) { c.labels = labels }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHooks sets the extension registry notified of connection
// lifecycle events.
func WithHooks(r *ext.Registry) Option {
	return func(c *Client) { c.hooks = r }
}

// WithPoolSize caps the number of concurrent connections.
func WithPoolSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithDialer replaces the transport dialer on every pooled connection.
func WithDialer(d DialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// WithIdleTimeout sets the per-connection idle watchdog window.
// Zero disables the watchdog.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idleTimeout = d }
}

// WithOpenTimeout bounds the dial-plus-handshake phase of each pooled
// connection.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Client) { c.openTimeout = d }
}
