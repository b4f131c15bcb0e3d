// Package worker implements the consumer side of Conveyor: a bounded
// pool of processing slots that fetch jobs from the server, execute
// registered handlers through middleware, and report the outcome.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/xraph/conveyor/job"
	"github.com/xraph/conveyor/middleware"
)

// execute runs one fetched job through the middleware chain and reports
// the outcome to the server. Handler errors and panics fail the job; a
// slot never dies to a misbehaving handler. The returned error is a
// transport failure from the ack or fail report, nil otherwise.
//
// The handler context is detached from the fetch context: stopping the
// worker never cancels a job mid-flight. The job itself is carried in
// the context for middleware.From.
func (w *Worker) execute(logger *slog.Logger, j *job.Job) error {
	ctx := middleware.WithJob(context.Background(), j)
	start := time.Now()

	w.hooks.EmitJobStarted(ctx, j)
	logger.Debug("executing job",
		slog.String("jid", j.Jid),
		slog.String("jobtype", j.Type),
	)

	err := w.perform(ctx, j)
	elapsed := time.Since(start)

	if err != nil {
		logger.Debug("job failed",
			slog.String("jid", j.Jid),
			slog.String("jobtype", j.Type),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		w.hooks.EmitJobFailed(ctx, j, err)
		if failErr := w.client.Fail(ctx, j.Jid, err); failErr != nil {
			logger.Warn("failed to report job failure",
				slog.String("jid", j.Jid),
				slog.String("error", failErr.Error()),
			)
			w.hooks.EmitWorkerError(ctx, failErr)

			return failErr
		}

		return nil
	}

	logger.Debug("job completed",
		slog.String("jid", j.Jid),
		slog.String("jobtype", j.Type),
		slog.Duration("elapsed", elapsed),
	)
	w.hooks.EmitJobCompleted(ctx, j, elapsed)
	if ackErr := w.client.Ack(ctx, j.Jid); ackErr != nil {
		logger.Warn("failed to acknowledge job",
			slog.String("jid", j.Jid),
			slog.String("error", ackErr.Error()),
		)
		w.hooks.EmitWorkerError(ctx, ackErr)

		return ackErr
	}

	return nil
}

// perform runs the middleware chain around the handler. The registry
// lookup happens inside the chain's terminal, so middleware observe
// jobs with no registered handler too; those fail with a descriptive
// error rather than being silently dropped.
//
// A last-resort recover converts panics that escape the chain into
// errors. Installing middleware.Recover is still worthwhile for stack
// logging, but the slot survives either way.
func (w *Worker) perform(ctx context.Context, j *job.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			err = &middleware.PanicError{
				Value: r,
				Stack: strings.Split(strings.TrimRight(stack, "\n"), "\n"),
			}
		}
	}()

	return w.mw(ctx, j, func(ctx context.Context) error {
		perform, ok := w.registry.Get(j.Type)
		if !ok {
			return fmt.Errorf("conveyor: no handler registered for jobtype %q", j.Type)
		}

		return perform(ctx, j.Args...)
	})
}
