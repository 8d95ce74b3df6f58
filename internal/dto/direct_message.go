package dto

import (
	"encoding/json"
	"time"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

// ConversationItem is one entry of the conversation list.
type ConversationItem struct {
	ID                 string             `json:"id"`
	OtherUser          models.UserSummary `json:"other_user"`
	LastMessageContent *string            `json:"last_message_content"`
	LastMessageAt      *time.Time         `json:"last_message_at"`
	UnreadCount        int                `json:"unread_count"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// DirectMessageItem is a direct message from the caller's perspective.
type DirectMessageItem struct {
	models.DirectMessage
	IsOwnMessage bool `json:"is_own_message"`
}

// Attachment is an uploaded file held in memory.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

// SendDirectMessageRequest is the parsed multipart body of a direct message.
type SendDirectMessageRequest struct {
	Content       string
	File          *Attachment
	SharedContent json.RawMessage
}

// SendDirectMessageResponse acknowledges a sent message.
type SendDirectMessageResponse struct {
	MessageID    string  `json:"message_id"`
	AIResponseID *string `json:"ai_response_id,omitempty"`
	Message      string  `json:"message"`
}
