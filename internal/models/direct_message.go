package models

import (
	"strings"
	"time"
)

// DirectMessageType classifies a direct message payload.
type DirectMessageType string

const (
	DMText          DirectMessageType = "text"
	DMImage         DirectMessageType = "image"
	DMVideo         DirectMessageType = "video"
	DMAudio         DirectMessageType = "audio"
	DMFile          DirectMessageType = "file"
	DMAIResponse    DirectMessageType = "ai_response"
	DMSharedContent DirectMessageType = "shared_content"
)

// DirectMessageTypeFor derives the message type from an upload content type.
func DirectMessageTypeFor(contentType string) DirectMessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return DMImage
	case strings.HasPrefix(contentType, "video/"):
		return DMVideo
	case strings.HasPrefix(contentType, "audio/"):
		return DMAudio
	}
	return DMFile
}

// SharedContentType lists the study artefacts that can be shared into a conversation.
type SharedContentType string

const (
	SharedYouTubeSummary SharedContentType = "youtube_summary"
	SharedYouTubeVideo   SharedContentType = "youtube_video"
	SharedYouTubeSession SharedContentType = "youtube_session"
	SharedFlashcards     SharedContentType = "flashcards"
	SharedSlides         SharedContentType = "slides"
	SharedAIChat         SharedContentType = "ai_chat"
	SharedNotes          SharedContentType = "notes"
)

// Valid reports whether the shared content type is known.
func (t SharedContentType) Valid() bool {
	switch t {
	case SharedYouTubeSummary, SharedYouTubeVideo, SharedYouTubeSession, SharedFlashcards, SharedSlides, SharedAIChat, SharedNotes:
		return true
	}
	return false
}

// Conversation is the two-party thread. UserA always sorts before UserB.
type Conversation struct {
	ID                 string     `db:"id" json:"id"`
	UserA              string     `db:"user_a" json:"-"`
	UserB              string     `db:"user_b" json:"-"`
	LastMessageContent *string    `db:"last_message_content" json:"last_message_content,omitempty"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	LastMessageSender  *string    `db:"last_message_sender" json:"last_message_sender,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// ConversationListItem is a conversation joined with the counterpart profile and unread count.
type ConversationListItem struct {
	Conversation
	OtherID     string  `db:"other_id" json:"-"`
	OtherName   string  `db:"other_name" json:"-"`
	OtherEmail  string  `db:"other_email" json:"-"`
	OtherAvatar *string `db:"other_avatar" json:"-"`
	UnreadCount int     `db:"unread_count" json:"unread_count"`
}

// DirectMessage is one message in a conversation. A nil SenderID marks an AI reply.
type DirectMessage struct {
	ID             string            `db:"id" json:"id"`
	ConversationID string            `db:"conversation_id" json:"conversation_id"`
	SenderID       *string           `db:"sender_id" json:"sender_id"`
	Content        *string           `db:"content" json:"content,omitempty"`
	MessageType    DirectMessageType `db:"message_type" json:"message_type"`
	FileURL        *string           `db:"file_url" json:"file_url,omitempty"`
	FileName       *string           `db:"file_name" json:"file_name,omitempty"`
	FileSize       *int64            `db:"file_size" json:"file_size,omitempty"`
	SharedContent  JSONObject        `db:"shared_content" json:"shared_content,omitempty"`
	IsRead         bool              `db:"is_read" json:"is_read"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	SenderName     *string           `db:"sender_name" json:"sender_name,omitempty"`
}

// AISenderLabel is how AI replies identify their sender.
const AISenderLabel = "AI"
