package dto

import (
	"time"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

// CreateYouTubeSessionRequest starts the video pipeline.
type CreateYouTubeSessionRequest struct {
	VideoURL string `json:"video_url" validate:"required,url"`
}

// AskRequest is a Q&A question about a session.
type AskRequest struct {
	Question string `json:"question" validate:"required,min=1,max=2000"`
}

// AskResponse is the assistant answer.
type AskResponse struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// SummariesResponse returns regenerated summaries.
type SummariesResponse struct {
	ShortSummary    string `json:"short_summary"`
	DetailedSummary string `json:"detailed_summary"`
	Message         string `json:"message"`
}

// CountRequest sizes a generation request.
type CountRequest struct {
	Count int `json:"count,omitempty" validate:"omitempty,min=1"`
}

// FlashcardsResponse returns generated cards or a soft failure.
type FlashcardsResponse struct {
	Flashcards []models.Flashcard `json:"flashcards"`
	Count      int                `json:"count"`
	Message    string             `json:"message,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// ExplainRequest asks for a flashcard explanation.
type ExplainRequest struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
}

// ExplainResponse carries the explanation text.
type ExplainResponse struct {
	Explanation string `json:"explanation"`
}

// RelatedVideosResponse returns suggestions or a soft failure.
type RelatedVideosResponse struct {
	RelatedVideos []models.RelatedVideo `json:"related_videos"`
	Count         int                   `json:"count"`
	Message       string                `json:"message,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// QuizResponse returns generated questions or a soft failure.
type QuizResponse struct {
	Questions []models.QuizQuestion `json:"questions"`
	Count     int                   `json:"count"`
	Message   string                `json:"message,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// SlidesResponse reports the slide job state.
type SlidesResponse struct {
	models.SlideState
	Message string `json:"message,omitempty"`
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CreateDocumentSessionRequest builds a document session from text or an existing document.
type CreateDocumentSessionRequest struct {
	Title      string      `json:"title,omitempty" validate:"omitempty,max=200"`
	Content    string      `json:"content,omitempty"`
	DocumentID string      `json:"document_id,omitempty" validate:"omitempty,uuid"`
	File       *Attachment `json:"-"`
}
