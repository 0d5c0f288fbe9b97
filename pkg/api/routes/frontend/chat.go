package frontend

import (
	"github.com/valyala/fasthttp"

	"chatdesk/pkg/api/router"
	"chatdesk/pkg/api/routes/common"
	"chatdesk/pkg/logger"
	"chatdesk/pkg/store/messages"
	"chatdesk/pkg/telemetry"
)

// Handlers serves the end-user chat routes.
type Handlers struct {
	Log *messages.Log
}

// SendMessage appends a message authored by the caller to its own conversation.
func (h *Handlers) SendMessage(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("api.user_send")
	defer tr.Finish()

	id, ok := common.RequireIdentity(ctx)
	if !ok {
		return
	}
	var req SendMessageRequest
	if err := router.DecodeBody(ctx, &req); err != nil {
		common.Fail(ctx, "send_message_rejected", err, "Failed to send message")
		return
	}
	tr.Mark("decode")

	m, err := h.Log.AppendUserMessage(ctx, id.UserID, id.DisplayName(), req.Message)
	if err != nil {
		common.Fail(ctx, "send_message_failed", err, "Failed to send message")
		return
	}
	logger.Info("message_sent", "user_id", id.UserID, "id", m.ID, "request_id", common.RequestID(ctx))
	_ = router.WriteJSON(ctx, SendMessageResponse{Success: true, Message: m})
}

// ReadMessages returns the caller's conversation, oldest first.
func (h *Handlers) ReadMessages(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("api.user_fetch")
	defer tr.Finish()

	id, ok := common.RequireIdentity(ctx)
	if !ok {
		return
	}
	msgs, err := h.Log.MessagesVisibleToUser(ctx, id.UserID)
	if err != nil {
		common.Fail(ctx, "fetch_messages_failed", err, "Failed to fetch messages")
		return
	}
	_ = router.WriteJSON(ctx, MessagesResponse{Messages: msgs})
}
