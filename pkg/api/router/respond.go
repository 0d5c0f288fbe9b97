package router

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"

	pathrouter "chatdesk/pkg/router"
	"chatdesk/pkg/telemetry"
)

// error categories returned in the "code" field
const (
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeValidationFailed = "validation_failed"
	CodeRateLimited      = "rate_limited"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeStorageFailure   = "storage_failure"
)

// RouteUserValue holds the matched route pattern for metrics labels.
const RouteUserValue = pathrouter.PatternUserValue

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteJSON writes a 200 JSON response.
func WriteJSON(ctx *fasthttp.RequestCtx, data interface{}) error {
	ctx.Response.Header.Set("Content-Type", "application/json")
	telemetry.HTTPResponse(routeLabel(ctx), ctx.Response.StatusCode(), telemetry.CategoryOK)
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONError writes {"error","code"} with the given status.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	telemetry.HTTPResponse(routeLabel(ctx), status, code)
	_ = json.NewEncoder(ctx).Encode(errorBody{Error: message, Code: code})
}

// WriteAPIError writes a classified error.
func WriteAPIError(ctx *fasthttp.RequestCtx, e *APIError) {
	WriteJSONError(ctx, e.Status, e.Code, e.Message)
}

// PathParam returns a router path parameter.
func PathParam(ctx *fasthttp.RequestCtx, param string) string {
	if v := ctx.UserValue(param); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// DecodeBody unmarshals the request body into out.
func DecodeBody(ctx *fasthttp.RequestCtx, out any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return fmt.Errorf("%w: request body is required", ErrMalformedBody)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

func routeLabel(ctx *fasthttp.RequestCtx) string {
	if s, ok := ctx.UserValue(RouteUserValue).(string); ok && s != "" {
		return s
	}
	return "unrouted"
}
