package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

// slideTables maps session kinds to their tables. Table names never come from input.
var slideTables = map[models.SessionKind]string{
	models.SessionYouTube:  "youtube_sessions",
	models.SessionDocument: "document_sessions",
}

// SlideStateRepository runs the conditional slide status transitions shared by every session kind.
type SlideStateRepository struct {
	db *sqlx.DB
}

// NewSlideStateRepository constructs the repository.
func NewSlideStateRepository(db *sqlx.DB) *SlideStateRepository {
	return &SlideStateRepository{db: db}
}

func slideTable(kind models.SessionKind) (string, error) {
	table, ok := slideTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown session kind %q", kind)
	}
	return table, nil
}

// Get returns the slide state of a session owned by userID.
func (r *SlideStateRepository) Get(ctx context.Context, kind models.SessionKind, id, userID string) (*models.SlideState, error) {
	table, err := slideTable(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT slides_status, slides_pdf_url, generated_slide_images, slides_error, slides_started_at FROM %s WHERE id = $1 AND user_id = $2`, table)
	var state models.SlideState
	if err := r.db.GetContext(ctx, &state, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get slide state: %w", err)
	}
	return &state, nil
}

// MarkProcessing moves pending or processing sessions to processing and
// stamps the start time. It returns the status the row held before the update;
// moved is false when the session is completed, failed or not owned by userID.
// The row lock makes concurrent starts observe each other: only one of them
// sees pending.
func (r *SlideStateRepository) MarkProcessing(ctx context.Context, kind models.SessionKind, id, userID string, at time.Time) (models.SlidesStatus, bool, error) {
	table, err := slideTable(kind)
	if err != nil {
		return "", false, err
	}
	query := fmt.Sprintf(`UPDATE %[1]s AS s SET slides_status = 'processing', slides_error = NULL, slides_started_at = $3, updated_at = $3
FROM (SELECT id, slides_status FROM %[1]s WHERE id = $1 AND user_id = $2 FOR UPDATE) AS prev
WHERE s.id = prev.id AND prev.slides_status IN ('pending', 'processing')
RETURNING prev.slides_status`, table)
	var previous models.SlidesStatus
	if err := r.db.GetContext(ctx, &previous, query, id, userID, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("mark slides processing: %w", err)
	}
	return previous, true, nil
}

// AbandonStart fails a session whose job could not be queued, unless a later
// start has restamped it in the meantime.
func (r *SlideStateRepository) AbandonStart(ctx context.Context, kind models.SessionKind, id string, startedAt time.Time, reason string) (bool, error) {
	table, err := slideTable(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %s SET slides_status = 'failed', slides_error = $2, updated_at = $3
WHERE id = $1 AND slides_status = 'processing' AND slides_started_at = $4`, table)
	res, err := r.db.ExecContext(ctx, query, id, reason, time.Now().UTC(), startedAt)
	if err != nil {
		return false, fmt.Errorf("abandon slide start: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("abandon slide start: %w", err)
	}
	return n > 0, nil
}

// MarkCompleted stores the generated artefacts. Completed sessions are overwritten by the latest job.
func (r *SlideStateRepository) MarkCompleted(ctx context.Context, kind models.SessionKind, id, pdfURL string, images []string) (bool, error) {
	table, err := slideTable(kind)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(images)
	if err != nil {
		return false, fmt.Errorf("marshal slide images: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET slides_status = 'completed', slides_pdf_url = $2, generated_slide_images = $3::jsonb, slides_error = NULL, updated_at = $4
WHERE id = $1 AND slides_status IN ('processing', 'completed')`, table)
	res, err := r.db.ExecContext(ctx, query, id, pdfURL, string(payload), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark slides completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark slides completed: %w", err)
	}
	return n > 0, nil
}

// MarkFailed records the failure of a processing session.
func (r *SlideStateRepository) MarkFailed(ctx context.Context, kind models.SessionKind, id, reason string) (bool, error) {
	table, err := slideTable(kind)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`UPDATE %s SET slides_status = 'failed', slides_error = $2, updated_at = $3 WHERE id = $1 AND slides_status = 'processing'`, table)
	res, err := r.db.ExecContext(ctx, query, id, reason, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark slides failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark slides failed: %w", err)
	}
	return n > 0, nil
}

// FailStuck fails every processing session started before the cutoff and returns how many moved.
func (r *SlideStateRepository) FailStuck(ctx context.Context, kind models.SessionKind, cutoff time.Time, reason string) (int64, error) {
	table, err := slideTable(kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`UPDATE %s SET slides_status = 'failed', slides_error = $2, updated_at = NOW()
WHERE slides_status = 'processing' AND (slides_started_at IS NULL OR slides_started_at < $1)`, table)
	res, err := r.db.ExecContext(ctx, query, cutoff, reason)
	if err != nil {
		return 0, fmt.Errorf("fail stuck slide jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
