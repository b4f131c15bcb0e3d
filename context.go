package conveyor

import (
	"context"

	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/middleware"
)

// JobFromContext returns the job the current handler is executing. It
// works inside handlers and middleware; elsewhere it reports false.
func JobFromContext(ctx context.Context) (*job.Job, bool) {
	return middleware.From(ctx)
}
