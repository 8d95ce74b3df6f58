package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

const youtubeSessionColumns = `id, user_id, video_url, video_id, video_title, video_duration, transcript, short_summary, detailed_summary,
chat_history, flashcards, related_videos, slides_status, slides_pdf_url, generated_slide_images, slides_error, slides_started_at, created_at, updated_at`

// YouTubeSessionRepository stores video study sessions.
type YouTubeSessionRepository struct {
	db *sqlx.DB
}

// NewYouTubeSessionRepository constructs the repository.
func NewYouTubeSessionRepository(db *sqlx.DB) *YouTubeSessionRepository {
	return &YouTubeSessionRepository{db: db}
}

// Create inserts a session with pending slides.
func (r *YouTubeSessionRepository) Create(ctx context.Context, s *models.YouTubeSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	s.Status = models.SlidesPending
	const query = `INSERT INTO youtube_sessions (id, user_id, video_url, video_id, video_title, video_duration, transcript, short_summary, detailed_summary,
chat_history, flashcards, related_videos, slides_status, generated_slide_images, created_at, updated_at)
VALUES (:id, :user_id, :video_url, :video_id, :video_title, :video_duration, :transcript, :short_summary, :detailed_summary,
:chat_history, :flashcards, :related_videos, :slides_status, :generated_slide_images, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("create youtube session: %w", err)
	}
	return nil
}

// FindForUser returns a session owned by userID.
func (r *YouTubeSessionRepository) FindForUser(ctx context.Context, id, userID string) (*models.YouTubeSession, error) {
	query := `SELECT ` + youtubeSessionColumns + ` FROM youtube_sessions WHERE id = $1 AND user_id = $2 LIMIT 1`
	var s models.YouTubeSession
	if err := r.db.GetContext(ctx, &s, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find youtube session: %w", err)
	}
	return &s, nil
}

// FindByID returns a session regardless of owner. Used by background jobs.
func (r *YouTubeSessionRepository) FindByID(ctx context.Context, id string) (*models.YouTubeSession, error) {
	query := `SELECT ` + youtubeSessionColumns + ` FROM youtube_sessions WHERE id = $1 LIMIT 1`
	var s models.YouTubeSession
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find youtube session: %w", err)
	}
	return &s, nil
}

// ListForUser returns the user's sessions newest first.
func (r *YouTubeSessionRepository) ListForUser(ctx context.Context, userID string) ([]models.YouTubeSession, error) {
	query := `SELECT ` + youtubeSessionColumns + ` FROM youtube_sessions WHERE user_id = $1 ORDER BY created_at DESC`
	var sessions []models.YouTubeSession
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("list youtube sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session owned by userID and reports whether it existed.
func (r *YouTubeSessionRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM youtube_sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete youtube session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AppendChat appends entries to the chat history atomically.
func (r *YouTubeSessionRepository) AppendChat(ctx context.Context, id string, entries ...models.ChatEntry) error {
	return appendChat(ctx, r.db, "youtube_sessions", id, entries)
}

// UpdateSummaries replaces both summaries.
func (r *YouTubeSessionRepository) UpdateSummaries(ctx context.Context, id, short, detailed string) error {
	const query = `UPDATE youtube_sessions SET short_summary = $2, detailed_summary = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, short, detailed, time.Now().UTC()); err != nil {
		return fmt.Errorf("update youtube summaries: %w", err)
	}
	return nil
}

// SaveFlashcards replaces the stored flashcards.
func (r *YouTubeSessionRepository) SaveFlashcards(ctx context.Context, id string, cards []models.Flashcard) error {
	return saveJSONColumn(ctx, r.db, "youtube_sessions", "flashcards", id, cards)
}

// SaveRelatedVideos replaces the stored related videos.
func (r *YouTubeSessionRepository) SaveRelatedVideos(ctx context.Context, id string, videos []models.RelatedVideo) error {
	return saveJSONColumn(ctx, r.db, "youtube_sessions", "related_videos", id, videos)
}

func appendChat(ctx context.Context, db *sqlx.DB, table, id string, entries []models.ChatEntry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal chat entries: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET chat_history = chat_history || $2::jsonb, updated_at = $3 WHERE id = $1`, table)
	if _, err := db.ExecContext(ctx, query, id, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("append chat history: %w", err)
	}
	return nil
}

func saveJSONColumn(ctx context.Context, db *sqlx.DB, table, column, id string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", column, err)
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = $2::jsonb, updated_at = $3 WHERE id = $1`, table, column)
	if _, err := db.ExecContext(ctx, query, id, string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("save %s: %w", column, err)
	}
	return nil
}
