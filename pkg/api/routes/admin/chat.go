package admin

import (
	"context"

	"github.com/valyala/fasthttp"

	"chatdesk/pkg/api/router"
	"chatdesk/pkg/api/routes/common"
	"chatdesk/pkg/logger"
	"chatdesk/pkg/models"
	"chatdesk/pkg/store/messages"
	"chatdesk/pkg/telemetry"
)

// SummarySource lists one summary per conversation, most recent first.
type SummarySource interface {
	Summaries(ctx context.Context) ([]models.ConversationSummary, error)
}

// Rebuilder recomputes the summary table.
type Rebuilder interface {
	RunOnce(ctx context.Context) (int, error)
}

// Handlers serves the admin routes. Admin identity is enforced by the
// auth middleware before any of these run.
type Handlers struct {
	Log        *messages.Log
	Summaries  SummarySource
	Reconciler Rebuilder
}

// SendMessage appends an admin message to the target's conversation.
func (h *Handlers) SendMessage(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("api.admin_send")
	defer tr.Finish()

	if _, ok := common.RequireIdentity(ctx); !ok {
		return
	}
	var req SendMessageRequest
	if err := router.DecodeBody(ctx, &req); err != nil {
		common.Fail(ctx, "admin_send_rejected", err, "Failed to send admin message")
		return
	}
	m, err := h.Log.AppendAdminMessage(ctx, req.TargetUserID, req.Message)
	if err != nil {
		common.Fail(ctx, "admin_send_failed", err, "Failed to send admin message")
		return
	}
	logger.AuditEvent("admin_message_sent", "target_user_id", m.UserID, "id", m.ID, "request_id", common.RequestID(ctx))
	_ = router.WriteJSON(ctx, SendMessageResponse{Success: true, Message: m})
}

// ListUsers returns the conversation summaries.
func (h *Handlers) ListUsers(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("api.admin_users")
	defer tr.Finish()

	if _, ok := common.RequireIdentity(ctx); !ok {
		return
	}
	users, err := h.Summaries.Summaries(ctx)
	if err != nil {
		common.Fail(ctx, "fetch_users_failed", err, "Failed to fetch users")
		return
	}
	_ = router.WriteJSON(ctx, UsersResponse{Users: users})
}

// ReadConversation returns one user's conversation, oldest first. Unknown
// users yield an empty list.
func (h *Handlers) ReadConversation(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("api.admin_messages")
	defer tr.Finish()

	if _, ok := common.RequireIdentity(ctx); !ok {
		return
	}
	userID := router.PathParam(ctx, "userId")
	msgs, err := h.Log.MessagesForConversation(ctx, userID)
	if err != nil {
		common.Fail(ctx, "fetch_conversation_failed", err, "Failed to fetch messages")
		return
	}
	_ = router.WriteJSON(ctx, MessagesResponse{Messages: msgs})
}
