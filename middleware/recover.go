package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/xraph/conveyor/job"
)

// PanicError is the error produced when a job handler panics. It carries
// the recovered value and the goroutine stack; the stack is reported to
// the server as the failure backtrace.
type PanicError struct {
	Value any
	Stack []string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("conveyor: handler panic: %v", e.Value)
}

// Backtrace returns the captured stack, one frame per line.
func (e *PanicError) Backtrace() []string { return e.Stack }

// Recover returns middleware that recovers from panics in the handler
// chain, so a panicking job is reported as failed instead of killing the
// worker slot. Panics are converted to a *PanicError and logged with the
// stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("job handler panicked",
					slog.String("jobtype", j.Type),
					slog.String("jid", j.Jid),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = &PanicError{
					Value: r,
					Stack: strings.Split(strings.TrimRight(stack, "\n"), "\n"),
				}
			}
		}()

		return next(ctx)
	}
}
