package conveyor

import (
	"errors"

	"github.com/xraph/conveyor/worker"
)

var (
	// Configuration errors.
	ErrInvalidConcurrency = errors.New("conveyor: concurrency must be at least 1")
	ErrInvalidPoolSize    = errors.New("conveyor: pool size must be at least 1")
	ErrNoQueues           = errors.New("conveyor: at least one queue is required")
	ErrEmptyQueueName     = errors.New("conveyor: queue name must not be empty")

	// Lifecycle errors.
	ErrAlreadyRunning = worker.ErrAlreadyRunning
	ErrNotRunning     = errors.New("conveyor: manager is not running")
)
