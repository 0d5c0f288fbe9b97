package app

import (
	"context"
	"os"

	"github.com/valyala/fasthttp"

	"chatdesk/pkg/api"
	"chatdesk/pkg/api/router"
	"chatdesk/pkg/auth"
	"chatdesk/pkg/config/banner"
	pathrouter "chatdesk/pkg/router"
)

func (a *App) printBanner() {
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	banner.Print(os.Stdout, a.eff, ver)
}

func (a *App) readyzHandlerFast(ctx *fasthttp.RequestCtx) {
	if a.store == nil || !a.store.Ready() {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, router.CodeStorageFailure, "store not ready")
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_ = router.WriteJSON(ctx, map[string]string{"status": "ok", "version": ver})
}

func (a *App) healthzHandlerFast(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]string{"status": "ok"})
}

// Handler builds the full request pipeline: auth middleware around the router.
func (a *App) Handler() fasthttp.RequestHandler {
	cfg := a.eff.Config

	r := pathrouter.New()
	r.GET("/healthz", a.healthzHandlerFast)
	r.GET("/readyz", a.readyzHandlerFast)
	api.RegisterRoutes(r, api.Deps{
		Log:        a.log,
		Summaries:  a.aggregator,
		Reconciler: a.reconciler,
		Issuer:     a.gateway,
		TokenTTL:   cfg.Security.TokenTTL.Duration(),
	})

	secCfg := auth.SecConfig{
		AllowedOrigins: append([]string{}, cfg.Security.CORS.AllowedOrigins...),
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		IPWhitelist:    append([]string{}, cfg.Security.IPWhitelist...),
		BackendKeys:    auth.BackendKeySet(cfg.Security.APIKeys.Backend),
		AdminUserID:    cfg.Security.AdminUserID,
	}
	return auth.AuthenticateRequestMiddlewareFast(secCfg, a.gateway)(r.Handler)
}

func (a *App) startHTTP(_ context.Context) <-chan error {
	cfg := a.eff.Config
	const readBufferSize = 16 * 1024

	a.srvFast = &fasthttp.Server{
		Name:               "chatdesk",
		Handler:            a.Handler(),
		ReadBufferSize:     readBufferSize,
		MaxRequestBodySize: int(cfg.Server.MaxBodySize.Int64()),
		ReadTimeout:        cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:       cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:        cfg.Server.IdleTimeout.Duration(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
