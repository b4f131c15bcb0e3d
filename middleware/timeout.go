package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/conveyor/job"
)

// Timeout returns middleware that bounds handler execution by the job's
// reserve_for window. The server reclaims a reservation after that many
// seconds and hands the job to another worker, so running past it risks
// double execution; the cancelled context lets well-behaved handlers
// stop at the boundary instead.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.ReserveFor > 0 {
			logger.Debug("job reservation deadline set",
				slog.String("jid", j.Jid),
				slog.Int("reserve_for", j.ReserveFor),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(j.ReserveFor)*time.Second)
			defer cancel()
		}

		return next(ctx)
	}
}
