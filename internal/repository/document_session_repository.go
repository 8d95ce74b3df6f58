package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

const documentSessionColumns = `id, user_id, document_id, title, file_name, content, short_summary, detailed_summary,
chat_history, flashcards, quiz, slides_status, slides_pdf_url, generated_slide_images, slides_error, slides_started_at, created_at, updated_at`

// DocumentSessionRepository stores document study sessions.
type DocumentSessionRepository struct {
	db *sqlx.DB
}

// NewDocumentSessionRepository constructs the repository.
func NewDocumentSessionRepository(db *sqlx.DB) *DocumentSessionRepository {
	return &DocumentSessionRepository{db: db}
}

// Create inserts a session with pending slides.
func (r *DocumentSessionRepository) Create(ctx context.Context, s *models.DocumentSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Status = models.SlidesPending
	const query = `INSERT INTO document_sessions (id, user_id, document_id, title, file_name, content, short_summary, detailed_summary,
chat_history, flashcards, quiz, slides_status, generated_slide_images, created_at, updated_at)
VALUES (:id, :user_id, :document_id, :title, :file_name, :content, :short_summary, :detailed_summary,
:chat_history, :flashcards, :quiz, :slides_status, :generated_slide_images, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("create document session: %w", err)
	}
	return nil
}

// FindForUser returns a session owned by userID.
func (r *DocumentSessionRepository) FindForUser(ctx context.Context, id, userID string) (*models.DocumentSession, error) {
	query := `SELECT ` + documentSessionColumns + ` FROM document_sessions WHERE id = $1 AND user_id = $2 LIMIT 1`
	var s models.DocumentSession
	if err := r.db.GetContext(ctx, &s, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find document session: %w", err)
	}
	return &s, nil
}

// FindByID returns a session regardless of owner. Used by background jobs.
func (r *DocumentSessionRepository) FindByID(ctx context.Context, id string) (*models.DocumentSession, error) {
	query := `SELECT ` + documentSessionColumns + ` FROM document_sessions WHERE id = $1 LIMIT 1`
	var s models.DocumentSession
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find document session: %w", err)
	}
	return &s, nil
}

// ListForUser returns the user's sessions newest first.
func (r *DocumentSessionRepository) ListForUser(ctx context.Context, userID string) ([]models.DocumentSession, error) {
	query := `SELECT ` + documentSessionColumns + ` FROM document_sessions WHERE user_id = $1 ORDER BY created_at DESC`
	var sessions []models.DocumentSession
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("list document sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session owned by userID and reports whether it existed.
func (r *DocumentSessionRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM document_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete document session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AppendChat appends entries to the chat history atomically.
func (r *DocumentSessionRepository) AppendChat(ctx context.Context, id string, entries ...models.ChatEntry) error {
	return appendChat(ctx, r.db, "document_sessions", id, entries)
}

// UpdateSummaries replaces both summaries.
func (r *DocumentSessionRepository) UpdateSummaries(ctx context.Context, id, short, detailed string) error {
	const query = `UPDATE document_sessions SET short_summary = $2, detailed_summary = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, short, detailed, time.Now().UTC()); err != nil {
		return fmt.Errorf("update document summaries: %w", err)
	}
	return nil
}

// SaveFlashcards replaces the stored flashcards.
func (r *DocumentSessionRepository) SaveFlashcards(ctx context.Context, id string, cards []models.Flashcard) error {
	return saveJSONColumn(ctx, r.db, "document_sessions", "flashcards", id, cards)
}

// SaveQuiz replaces the stored quiz.
func (r *DocumentSessionRepository) SaveQuiz(ctx context.Context, id string, questions []models.QuizQuestion) error {
	return saveJSONColumn(ctx, r.db, "document_sessions", "quiz", id, questions)
}
