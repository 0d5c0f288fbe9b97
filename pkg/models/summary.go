package models

// ConversationSummary is the admin dashboard view of one conversation.
type ConversationSummary struct {
	UserID          string `json:"userId"`
	UserName        string `json:"userName"`
	LastMessage     string `json:"lastMessage"`
	LastMessageTime int64  `json:"lastMessageTime"`
	// UnreadCount is always zero; read tracking is not implemented.
	UnreadCount int `json:"unreadCount"`
}
