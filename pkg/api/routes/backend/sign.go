package backend

import (
	"time"

	"github.com/valyala/fasthttp"

	"chatdesk/pkg/api/router"
	"chatdesk/pkg/api/routes/common"
	"chatdesk/pkg/auth"
	"chatdesk/pkg/logger"
)

// TokenIssuer mints bearer tokens for an identity.
type TokenIssuer interface {
	Issue(id auth.Identity, ttl time.Duration) (string, time.Time, error)
}

type SignRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type SignResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Handlers serves routes called by a trusted backend with an API key.
type Handlers struct {
	Issuer TokenIssuer
	TTL    time.Duration
}

// Sign issues a bearer token on behalf of a user.
func (h *Handlers) Sign(ctx *fasthttp.RequestCtx) {
	var req SignRequest
	if err := router.DecodeBody(ctx, &req); err != nil {
		common.Fail(ctx, "sign_rejected", err, "Failed to sign token")
		return
	}
	tok, exp, err := h.Issuer.Issue(auth.Identity{UserID: req.UserID, Name: req.Name, Email: req.Email}, h.TTL)
	if err != nil {
		common.Fail(ctx, "sign_failed", err, "Failed to sign token")
		return
	}
	logger.Info("token_signed", "user_id", req.UserID, "expires_at", exp.UnixMilli(), "request_id", common.RequestID(ctx))
	_ = router.WriteJSON(ctx, SignResponse{Token: tok, ExpiresAt: exp.UnixMilli()})
}
