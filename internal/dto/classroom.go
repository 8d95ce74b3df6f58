package dto

import "github.com/peerlearn/peerlearn-api/internal/models"

// CreateClassroomRequest creates a classroom.
type CreateClassroomRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// UpdateClassroomRequest patches a classroom.
type UpdateClassroomRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// ClassroomDetail is a classroom with its members and rooms.
type ClassroomDetail struct {
	models.Classroom
	Members []models.UserSummary `json:"members"`
	Rooms   []models.Room        `json:"rooms"`
	IsAdmin bool                 `json:"is_admin"`
}

// JoinClassroomResponse acknowledges joining by invite code.
type JoinClassroomResponse struct {
	Message     string `json:"message"`
	ClassroomID string `json:"classroom_id"`
}

// RoomRequest creates or renames a room.
type RoomRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// NameSuggestions returns generated names.
type NameSuggestions struct {
	Suggestions []string `json:"suggestions"`
}
