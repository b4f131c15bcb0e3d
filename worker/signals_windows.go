//go:build windows

package worker

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// trapSignals installs the process signal handlers. Windows has no
// SIGTSTP, so only the stop signals are trapped; use the server's quiet
// directive to quiet a Windows worker.
func (w *Worker) trapSignals() {
	w.sigs = make(chan os.Signal, 1)
	signal.Notify(w.sigs, syscall.SIGTERM, os.Interrupt)

	go func() {
		for sig := range w.sigs {
			w.logger.Info("received signal", slog.String("signal", sig.String()))
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
