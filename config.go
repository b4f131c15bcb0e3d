package conveyor

import (
	"time"

	"github.com/xraph/conveyor/id"
)

// Config holds configuration for a Manager.
type Config struct {
	// Address is the job server address. When empty, the client resolves
	// it from the CONVEYOR_URL environment variable, then falls back to
	// localhost:7519.
	Address string

	// Wid is the worker identity reported to the server. Heartbeats and
	// fetch reservations are keyed by it.
	Wid string

	// Concurrency is the number of processor slots fetching and
	// executing jobs.
	Concurrency int

	// Queues is the ordered queue list each fetch drains from.
	Queues []string

	// Labels are advertised to the server during the handshake.
	Labels []string

	// BeatInterval is how often the worker reports liveness.
	BeatInterval time.Duration

	// ShutdownTimeout bounds the graceful drain on stop. Jobs still
	// running when it expires are abandoned to the server's reservation
	// reaper.
	ShutdownTimeout time.Duration

	// PoolSize caps the connection pool. Zero means Concurrency+2 so
	// every slot can hold a connection while the heartbeat and one
	// producer call proceed.
	PoolSize int
}

// DefaultConfig returns a Config with a fresh worker identity and the
// standard worker profile.
func DefaultConfig() Config {
	return Config{
		Wid:             id.NewWorkerID().String(),
		Concurrency:     20,
		Queues:          []string{"default"},
		Labels:          []string{"golang"},
		BeatInterval:    15 * time.Second,
		ShutdownTimeout: 8 * time.Second,
	}
}
