package common

import (
	"net/http"

	"github.com/valyala/fasthttp"

	"chatdesk/pkg/api/router"
	"chatdesk/pkg/auth"
	"chatdesk/pkg/logger"
)

// RequireIdentity returns the caller resolved by the auth middleware, or
// writes a 401 when there is none.
func RequireIdentity(ctx *fasthttp.RequestCtx) (auth.Identity, bool) {
	id, ok := auth.IdentityFromRequest(ctx)
	if !ok {
		router.WriteAPIError(ctx, router.Unauthorized())
		return auth.Identity{}, false
	}
	return id, true
}

// Fail classifies err and writes it. Server-side failures are logged with
// their detail; the caller only sees fallback.
func Fail(ctx *fasthttp.RequestCtx, event string, err error, fallback string) {
	apiErr := router.Classify(err, fallback)
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Error(event, "error", err, "path", string(ctx.Path()), "request_id", RequestID(ctx))
	} else {
		logger.Debug(event, "error", err, "path", string(ctx.Path()), "request_id", RequestID(ctx))
	}
	router.WriteAPIError(ctx, apiErr)
}

func RequestID(ctx *fasthttp.RequestCtx) string {
	return string(ctx.Response.Header.Peek("X-Request-ID"))
}
