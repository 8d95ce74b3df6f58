package models

import "time"

// SlidesStatus is the slide generation state of a study session.
type SlidesStatus string

const (
	SlidesPending    SlidesStatus = "pending"
	SlidesProcessing SlidesStatus = "processing"
	SlidesCompleted  SlidesStatus = "completed"
	SlidesFailed     SlidesStatus = "failed"
)

// SessionKind selects the backing table of a study session.
type SessionKind string

const (
	SessionYouTube  SessionKind = "youtube"
	SessionDocument SessionKind = "document"
)

// ChatEntry is one turn of a session Q&A history.
type ChatEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Flashcard is a generated study card.
type Flashcard struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation"`
}

// QuizQuestion is a generated multiple choice question.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// RelatedVideo is a suggested follow-up video.
type RelatedVideo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SearchQuery string `json:"search_query"`
	Reason      string `json:"reason"`
}

// SlideState is the slide generation projection polled by clients.
type SlideState struct {
	Status    SlidesStatus     `db:"slides_status" json:"slides_status"`
	PDFURL    *string          `db:"slides_pdf_url" json:"slides_pdf_url"`
	Images    JSONList[string] `db:"generated_slide_images" json:"generated_slide_images"`
	Error     *string          `db:"slides_error" json:"slides_error"`
	StartedAt *time.Time       `db:"slides_started_at" json:"-"`
}

// YouTubeSession is an AI study session built from a video transcript.
type YouTubeSession struct {
	ID              string                 `db:"id" json:"id"`
	UserID          string                 `db:"user_id" json:"user_id"`
	VideoURL        string                 `db:"video_url" json:"video_url"`
	VideoID         string                 `db:"video_id" json:"video_id"`
	VideoTitle      string                 `db:"video_title" json:"video_title"`
	VideoDuration   int                    `db:"video_duration" json:"video_duration"`
	Transcript      string                 `db:"transcript" json:"transcript"`
	ShortSummary    string                 `db:"short_summary" json:"short_summary"`
	DetailedSummary string                 `db:"detailed_summary" json:"detailed_summary"`
	ChatHistory     JSONList[ChatEntry]    `db:"chat_history" json:"chat_history"`
	Flashcards      JSONList[Flashcard]    `db:"flashcards" json:"flashcards"`
	RelatedVideos   JSONList[RelatedVideo] `db:"related_videos" json:"related_videos"`
	SlideState
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentSession is an AI study session built from uploaded or pasted document text.
type DocumentSession struct {
	ID              string                 `db:"id" json:"id"`
	UserID          string                 `db:"user_id" json:"user_id"`
	DocumentID      *string                `db:"document_id" json:"document_id,omitempty"`
	Title           string                 `db:"title" json:"title"`
	FileName        *string                `db:"file_name" json:"file_name,omitempty"`
	Content         string                 `db:"content" json:"content"`
	ShortSummary    string                 `db:"short_summary" json:"short_summary"`
	DetailedSummary string                 `db:"detailed_summary" json:"detailed_summary"`
	ChatHistory     JSONList[ChatEntry]    `db:"chat_history" json:"chat_history"`
	Flashcards      JSONList[Flashcard]    `db:"flashcards" json:"flashcards"`
	Quiz            JSONList[QuizQuestion] `db:"quiz" json:"quiz"`
	SlideState
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
