package models

import "time"

// Message is a classroom room chat message. Deletion is soft.
type Message struct {
	ID           string     `db:"id" json:"id"`
	RoomID       string     `db:"room_id" json:"room_id"`
	SenderID     string     `db:"sender_id" json:"sender_id"`
	Content      string     `db:"content" json:"content"`
	MessageType  string     `db:"message_type" json:"message_type"`
	Timestamp    time.Time  `db:"timestamp" json:"timestamp"`
	Edited       bool       `db:"edited" json:"edited"`
	EditedAt     *time.Time `db:"edited_at" json:"edited_at,omitempty"`
	Deleted      bool       `db:"deleted" json:"deleted"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	SenderName   string     `db:"sender_name" json:"sender_name"`
	SenderAvatar *string    `db:"sender_avatar" json:"sender_avatar,omitempty"`
}

// ChatMessageText is the only room message type produced by clients.
const ChatMessageText = "text"
