package logger

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/valyala/fasthttp"
)

func maskedValue(v string) string {
	if v == "" {
		return ""
	}
	l := utf8.RuneCountInString(v)
	if l <= 2 {
		return "<redacted>"
	}
	first, _ := utf8.DecodeRuneInString(v)
	last, _ := utf8.DecodeLastRuneInString(v)
	return string(first) + "*****" + string(last)
}

// headers whose values are safe to log verbatim
var plainHeaders = map[string]struct{}{
	"content-type":   {},
	"content-length": {},
	"user-agent":     {},
	"accept":         {},
	"origin":         {},
	"x-request-id":   {},
}

func redactHeaderValue(k string, v string) string {
	if v == "" {
		return ""
	}
	if _, ok := plainHeaders[strings.ToLower(k)]; ok {
		return v
	}
	return maskedValue(v)
}

// SafeHeadersFast renders request headers with credentials masked, sorted by name.
func SafeHeadersFast(ctx *fasthttp.RequestCtx) string {
	parts := make([]string, 0)
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		val := redactHeaderValue(key, string(v))
		parts = append(parts, key+"="+val)
	})
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func LogRequestFast(ctx *fasthttp.RequestCtx) {
	if current() == nil {
		return
	}
	Info("incoming_request",
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"remote", ctx.RemoteAddr().String(),
		"request_id", string(ctx.Response.Header.Peek("X-Request-ID")),
	)
	Debug("request_headers", "headers", SafeHeadersFast(ctx))
}
