package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const identityUserValue = "identity"

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// DisplayName is the name recorded on user messages: the profile name, or
// the email when no name is set.
func (i Identity) DisplayName() string {
	if n := strings.TrimSpace(i.Name); n != "" {
		return n
	}
	return i.Email
}

// Gateway validates a bearer token. Implementations must not cache
// results across requests.
type Gateway interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header.
func ExtractBearer(ctx *fasthttp.RequestCtx) string {
	parts := strings.Fields(string(ctx.Request.Header.Peek("Authorization")))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// ExtractAPIKey accepts either a bearer token or the X-API-Key header.
func ExtractAPIKey(ctx *fasthttp.RequestCtx) string {
	if k := ExtractBearer(ctx); k != "" {
		return k
	}
	return strings.TrimSpace(string(ctx.Request.Header.Peek("X-API-Key")))
}

// SetIdentity attaches the resolved caller to the request.
func SetIdentity(ctx *fasthttp.RequestCtx, id Identity) {
	ctx.SetUserValue(identityUserValue, id)
}

// IdentityFromRequest returns the caller attached by the middleware.
func IdentityFromRequest(ctx *fasthttp.RequestCtx) (Identity, bool) {
	id, ok := ctx.UserValue(identityUserValue).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}
