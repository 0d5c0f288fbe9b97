package app

import (
	"context"

	"chatdesk/pkg/shutdown"
)

func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	err := shutdown.ShutdownApp(ctx, shutdown.Components{
		Server:          a.srvFast,
		ReconcileCancel: a.reconcileCancel,
		Store:           a.store,
	})
	if err == nil {
		a.state = "stopped"
	}
	return err
}

// Close releases the store without an http server, for one-shot commands.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
