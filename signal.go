package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// forceExit is swapped in tests.
var forceExit = os.Exit

// shutdownContext returns a context canceled by the first SIGINT or SIGTERM.
// The current upload finishes its attempt and the remaining files are
// reported as failed. A second signal exits immediately. stop releases the
// signal handler and must be called when the command returns.
func shutdownContext(parent context.Context, logger *slog.Logger) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Warn("interrupted; stopping after the current request, signal again to force exit",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Error("second signal received; exiting now",
				slog.String("signal", sig.String()),
			)
			forceExit(1)
		case <-done:
			return
		}
	}()

	var once sync.Once

	return ctx, func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}
}
