package auth

import (
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"chatdesk/pkg/api/router"
	"chatdesk/pkg/logger"
	"chatdesk/pkg/telemetry"
)

// SecConfig is the middleware's view of the security settings.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	AdminUserID    string
}

const signPath = "/v1/sign"

var adminPrefixes = []string{"/v1/chat/admin/", "/admin/"}

// AuthenticateRequestMiddlewareFast resolves the caller once per request and
// enforces the admin rule and the rate limit before calling next. Health
// probes are public; /v1/sign takes a backend API key instead of a token.
func AuthenticateRequestMiddlewareFast(cfg SecConfig, gw Gateway) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	limiters := newLimiterPool(cfg.RPS, cfg.Burst)
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			reqID := strings.TrimSpace(string(ctx.Request.Header.Peek("X-Request-ID")))
			if reqID == "" {
				reqID = uuid.NewString()
			}
			ctx.Response.Header.Set("X-Request-ID", reqID)

			logger.LogRequestFast(ctx)

			origin := string(ctx.Request.Header.Peek("Origin"))
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
				ctx.Response.Header.Set("Vary", "Origin")
				ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
				ctx.Response.Header.Set("Access-Control-Max-Age", "600")
				ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-Request-ID")
				ctx.Response.Header.Set("Access-Control-Expose-Headers", "X-Request-ID")
			}
			if string(ctx.Method()) == fasthttp.MethodOptions {
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}

			path := string(ctx.Path())

			if len(cfg.IPWhitelist) > 0 {
				ip := clientIPFast(ctx)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					router.WriteAPIError(ctx, router.Forbidden())
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", path, "request_id", reqID)
					return
				}
			}

			if (path == "/healthz" || path == "/readyz") && string(ctx.Method()) == fasthttp.MethodGet {
				next(ctx)
				return
			}

			if path == signPath {
				key := ExtractAPIKey(ctx)
				if _, ok := cfg.BackendKeys[key]; key == "" || !ok {
					router.WriteAPIError(ctx, router.Unauthorized())
					logger.Warn("request_unauthorized", "reason", "backend_key", "path", path, "remote", ctx.RemoteAddr().String(), "request_id", reqID)
					return
				}
				if !limiters.Allow("key:" + key) {
					router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, router.CodeRateLimited, "rate limit exceeded")
					logger.Warn("rate_limited", "path", path, "request_id", reqID)
					return
				}
				next(ctx)
				return
			}

			tr := telemetry.Track("auth.authenticate")
			id, err := gw.Authenticate(ctx, ExtractBearer(ctx))
			tr.Finish()
			if err != nil {
				router.WriteAPIError(ctx, router.Unauthorized())
				logger.Warn("request_unauthorized", "path", path, "remote", ctx.RemoteAddr().String(), "error", err, "request_id", reqID)
				return
			}
			SetIdentity(ctx, id)

			if isAdminPath(path) && id.UserID != cfg.AdminUserID {
				router.WriteAPIError(ctx, router.Forbidden())
				logger.Warn("request_forbidden", "reason", "not_admin", "user_id", id.UserID, "path", path, "request_id", reqID)
				return
			}

			if !limiters.Allow("id:" + id.UserID) {
				router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, router.CodeRateLimited, "rate limit exceeded")
				logger.Warn("rate_limited", "user_id", id.UserID, "path", path, "request_id", reqID)
				return
			}

			logger.Debug("request_allowed", "method", string(ctx.Method()), "path", path, "user_id", id.UserID, "request_id", reqID)
			next(ctx)
		}
	}
}

func isAdminPath(path string) bool {
	for _, p := range adminPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func clientIPFast(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

// BackendKeySet builds the lookup set for SecConfig.BackendKeys.
func BackendKeySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}
