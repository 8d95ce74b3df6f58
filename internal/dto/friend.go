package dto

import (
	"time"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

// FriendRequestItem is a pending request with its sender profile.
type FriendRequestItem struct {
	ID        string                     `json:"id"`
	Status    models.FriendRequestStatus `json:"status"`
	CreatedAt time.Time                  `json:"created_at"`
	Sender    models.UserSummary         `json:"sender"`
}

// UserSearchResult annotates a user with the caller's relationship.
type UserSearchResult struct {
	models.UserSummary
	IsFriend      bool                    `json:"is_friend"`
	RequestStatus models.RequestDirection `json:"request_status"`
}
