package frontend

import "chatdesk/pkg/models"

type SendMessageRequest struct {
	Message string `json:"message"`
}

type SendMessageResponse struct {
	Success bool           `json:"success"`
	Message models.Message `json:"message"`
}

type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}
