package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"

	"chatdesk/pkg/kv"
	"chatdesk/pkg/logger"
)

// Components are the pieces stopped on shutdown, in order.
type Components struct {
	Server          *fasthttp.Server
	ReconcileCancel context.CancelFunc
	Store           kv.Store
}

// ShutdownApp stops accepting requests, waits for in-flight ones up to the
// context deadline, stops the reconciler and closes the store.
func ShutdownApp(ctx context.Context, c Components) error {
	logger.Info("shutdown_requested")

	var firstErr error
	if c.Server != nil {
		logger.Info("shutdown_stopping_http")
		done := make(chan error, 1)
		go func() { done <- c.Server.Shutdown() }()
		select {
		case err := <-done:
			if err != nil {
				logger.Error("shutdown_http_error", "error", err)
				firstErr = err
			}
		case <-ctx.Done():
			logger.Warn("shutdown_http_timeout", "error", ctx.Err())
			firstErr = ctx.Err()
		}
	}

	if c.ReconcileCancel != nil {
		logger.Info("shutdown_stopping_reconcile")
		c.ReconcileCancel()
	}

	if c.Store != nil {
		logger.Info("shutdown_closing_store")
		if err := c.Store.Close(); err != nil {
			logger.Error("shutdown_store_close_error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	logger.Info("shutdown_complete")
	logger.Sync()
	return firstErr
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()
	return ctx, cancel
}

// Abort logs a fatal startup error and exits.
func Abort(msg string, err error) {
	logger.Error("startup_aborted", "msg", msg, "error", err)
	logger.Sync()
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

// WithWindow derives the context used to drain in-flight requests.
func WithWindow(window time.Duration) (context.Context, context.CancelFunc) {
	if window <= 0 {
		window = 20 * time.Second
	}
	return context.WithTimeout(context.Background(), window)
}
