package dto

import (
	"time"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

// CreateDocumentRequest creates a note document.
type CreateDocumentRequest struct {
	Title   string   `json:"title" validate:"required,min=1,max=200"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
}

// UpdateDocumentRequest patches a document.
type UpdateDocumentRequest struct {
	Title   *string                `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Content *string                `json:"content,omitempty"`
	Tags    []string               `json:"tags,omitempty" validate:"omitempty,max=20,dive,max=50"`
	Status  *models.DocumentStatus `json:"status,omitempty" validate:"omitempty,oneof=draft published archived"`
}

// DocumentChatRequest asks the assistant about a document.
type DocumentChatRequest struct {
	Message string `json:"message" validate:"required,min=1,max=4000"`
}

// DocumentChatResponse is one assistant exchange.
type DocumentChatResponse struct {
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// GenerateNotesRequest asks for notes from a document.
type GenerateNotesRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=2000"`
}

// GenerateNotesResponse returns generated notes.
type GenerateNotesResponse struct {
	Notes  string `json:"notes"`
	Prompt string `json:"prompt"`
}
