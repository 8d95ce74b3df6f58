package models

import "time"

// FriendRequestStatus tracks the lifecycle of a friend request.
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

// FriendRequest is a directed friendship invitation.
type FriendRequest struct {
	ID         string              `db:"id" json:"id"`
	SenderID   string              `db:"sender_id" json:"sender_id"`
	ReceiverID string              `db:"receiver_id" json:"receiver_id"`
	Status     FriendRequestStatus `db:"status" json:"status"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time           `db:"updated_at" json:"updated_at"`
}

// FriendRequestWithSender joins the sender profile for inbox listings.
type FriendRequestWithSender struct {
	FriendRequest
	SenderName   string  `db:"sender_name" json:"-"`
	SenderEmail  string  `db:"sender_email" json:"-"`
	SenderAvatar *string `db:"sender_avatar" json:"-"`
}

// RequestDirection annotates search results relative to the caller.
type RequestDirection string

const (
	RequestSent     RequestDirection = "sent"
	RequestReceived RequestDirection = "received"
	RequestNone     RequestDirection = "none"
)
