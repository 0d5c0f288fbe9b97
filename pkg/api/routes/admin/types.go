package admin

import "chatdesk/pkg/models"

type SendMessageRequest struct {
	Message      string `json:"message"`
	TargetUserID string `json:"targetUserId"`
}

type SendMessageResponse struct {
	Success bool           `json:"success"`
	Message models.Message `json:"message"`
}

type UsersResponse struct {
	Users []models.ConversationSummary `json:"users"`
}

type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type ReconcileResponse struct {
	Rebuilt int `json:"rebuilt"`
}
