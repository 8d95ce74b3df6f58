package models

import (
	"time"

	"github.com/lib/pq"
)

// DocumentStatus is the editorial state of a note document.
type DocumentStatus string

const (
	DocumentDraft     DocumentStatus = "draft"
	DocumentPublished DocumentStatus = "published"
	DocumentArchived  DocumentStatus = "archived"
)

// Valid reports whether the status is known.
func (s DocumentStatus) Valid() bool {
	return s == DocumentDraft || s == DocumentPublished || s == DocumentArchived
}

// Document is a user authored or uploaded note.
type Document struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Title     string         `db:"title" json:"title"`
	Content   string         `db:"content" json:"content"`
	Tags      pq.StringArray `db:"tags" json:"tags"`
	Status    DocumentStatus `db:"status" json:"status"`
	FileName  *string        `db:"file_name" json:"file_name,omitempty"`
	FileType  *string        `db:"file_type" json:"file_type,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	UserID string
	Search string
	Status string
}

// DocumentChatMessage stores one assistant exchange about a document.
type DocumentChatMessage struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Message    string    `db:"message" json:"message"`
	Response   string    `db:"response" json:"response"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
