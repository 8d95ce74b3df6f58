package dto

import "github.com/peerlearn/peerlearn-api/internal/models"

// SendMessageRequest posts a room message.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

// MessageEvent is the payload of new_message and message_edited.
type MessageEvent struct {
	Message      models.Message `json:"message"`
	SenderName   string         `json:"sender_name"`
	SenderAvatar *string        `json:"sender_avatar"`
}

// MessageDeletedEvent is the payload of message_deleted.
type MessageDeletedEvent struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
}

// RoomSummary is the AI study note summary of a room.
type RoomSummary struct {
	Summary      string `json:"summary"`
	MessageCount int    `json:"message_count"`
	RoomName     string `json:"room_name,omitempty"`
}
