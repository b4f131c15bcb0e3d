//go:build !windows

package worker

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// trapSignals installs the process signal handlers: SIGTERM and SIGINT
// stop the worker, SIGTSTP quiets it. Installed once per Run and
// removed at the start of Stop.
func (w *Worker) trapSignals() {
	w.sigs = make(chan os.Signal, 1)
	signal.Notify(w.sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGTSTP)

	go func() {
		for sig := range w.sigs {
			w.logger.Info("received signal", slog.String("signal", sig.String()))
			if sig == syscall.SIGTSTP {
				w.Quiet()

				continue
			}
			w.Stop()
		}
	}()
}

// untrapSignals removes the handlers so a repeated signal falls back to
// the default process behavior.
func (w *Worker) untrapSignals() {
	if w.sigs != nil {
		signal.Stop(w.sigs)
		close(w.sigs)
	}
}
