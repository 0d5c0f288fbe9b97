package app

import (
	"context"
	"fmt"

	"github.com/valyala/fasthttp"

	"chatdesk/internal/reconcile"
	"chatdesk/pkg/auth"
	"chatdesk/pkg/config"
	"chatdesk/pkg/kv"
	"chatdesk/pkg/logger"
	"chatdesk/pkg/store/conversations"
	"chatdesk/pkg/store/messages"
	"chatdesk/pkg/telemetry"
)

// App groups server state and components.
type App struct {
	eff     config.EffectiveConfigResult
	version string

	store      kv.Store
	log        *messages.Log
	aggregator *conversations.Aggregator
	gateway    *auth.JWTGateway
	reconciler *reconcile.Runner

	srvFast         *fasthttp.Server
	reconcileCancel context.CancelFunc
	state           string
}

// New opens the store and builds every component. It starts nothing.
func New(eff config.EffectiveConfigResult, version string) (*App, error) {
	if err := config.ValidateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	telemetry.SetSampleRate(cfg.TelemetrySampleRate())
	telemetry.SetSlowThreshold(cfg.Telemetry.SlowThreshold.Duration())

	logger.LogConfigSummary("chat_config", []string{
		"driver=" + cfg.Storage.Driver,
		"summary_source=" + cfg.Chat.SummarySource,
		"max_message_bytes=" + cfg.Chat.MaxMessageBytes.String(),
		fmt.Sprintf("reconcile=%t", cfg.Reconcile.Enabled),
	})
	if cfg.Chat.LegacyVisibility {
		logger.Warn("legacy_visibility_enabled", "effect", "users can read admin messages addressed to other users")
	}

	gw, err := auth.NewJWTGateway(cfg.Security.SigningKeys, cfg.Security.Issuer)
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(cfg.Storage, cfg.SyncWrites())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	a := &App{eff: eff, version: version, store: store, gateway: gw, state: "initialized"}
	a.log = messages.New(store, messages.Options{
		AdminID:          cfg.Security.AdminUserID,
		AdminName:        cfg.Chat.AdminDisplayName,
		MaxMessageBytes:  int(cfg.Chat.MaxMessageBytes.Int64()),
		LegacyVisibility: cfg.Chat.LegacyVisibility,
	})
	a.aggregator = conversations.NewAggregator(store, cfg.Security.AdminUserID, cfg.Chat.SummarySource)
	a.reconciler = reconcile.New(a.aggregator, cfg.Reconcile)
	return a, nil
}

// Run starts the reconciler and the http server and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	cancel, err := a.reconciler.Start(ctx)
	if err != nil {
		return err
	}
	a.reconcileCancel = cancel

	errCh := a.startHTTP(ctx)
	a.state = "running"
	logger.Info("server_listening", "addr", a.eff.Addr, "driver", a.eff.Config.Storage.Driver)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Store exposes the opened store for one-shot CLI commands.
func (a *App) Store() kv.Store { return a.store }

// Reconciler exposes the rebuild runner for one-shot CLI commands.
func (a *App) Reconciler() *reconcile.Runner { return a.reconciler }

// Gateway exposes the token issuer for the CLI.
func (a *App) Gateway() *auth.JWTGateway { return a.gateway }
