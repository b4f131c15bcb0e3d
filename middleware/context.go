package middleware

import (
	"context"

	"github.com/xraph/conveyor/job"
)

type jobKey struct{}

// WithJob returns a context carrying the job under execution. The worker
// installs it before running the middleware chain.
func WithJob(ctx context.Context, j *job.Job) context.Context {
	return context.WithValue(ctx, jobKey{}, j)
}

// From returns the job carried by ctx, if any. Handlers that need wire
// fields beyond their args (jid, queue, custom data) retrieve it here.
func From(ctx context.Context) (*job.Job, bool) {
	j, ok := ctx.Value(jobKey{}).(*job.Job)

	return j, ok
}
