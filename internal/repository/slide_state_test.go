package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

func TestMarkProcessingReturnsPreviousStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSlideStateRepository(db)

	at := time.Now()
	mock.ExpectQuery(`UPDATE youtube_sessions AS s SET slides_status = 'processing'.*FOR UPDATE.*prev.slides_status IN \('pending', 'processing'\)\s+RETURNING prev.slides_status`).
		WithArgs("s1", "u1", at).
		WillReturnRows(sqlmock.NewRows([]string{"slides_status"}).AddRow("processing"))

	previous, moved, err := repo.MarkProcessing(context.Background(), models.SessionYouTube, "s1", "u1", at)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, models.SlidesProcessing, previous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessingIgnoresFinishedSessions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSlideStateRepository(db)

	at := time.Now()
	mock.ExpectQuery(`UPDATE document_sessions AS s`).
		WithArgs("s1", "u1", at).
		WillReturnRows(sqlmock.NewRows([]string{"slides_status"}))

	previous, moved, err := repo.MarkProcessing(context.Background(), models.SessionDocument, "s1", "u1", at)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Empty(t, previous)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAbandonStartMatchesOwnStamp(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSlideStateRepository(db)

	at := time.Now()
	mock.ExpectExec(`SET slides_status = 'failed'.*slides_status = 'processing' AND slides_started_at = \$4`).
		WithArgs("s1", "queue full", sqlmock.AnyArg(), at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	moved, err := repo.AbandonStart(context.Background(), models.SessionYouTube, "s1", at, "queue full")
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompletedStoresImages(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSlideStateRepository(db)

	mock.ExpectExec(`UPDATE document_sessions SET slides_status = 'completed'.*slides_status IN \('processing', 'completed'\)`).
		WithArgs("s1", "/static/deck.pdf", `["/static/1.png","/static/2.png"]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.MarkCompleted(context.Background(), models.SessionDocument, "s1", "/static/deck.pdf", []string{"/static/1.png", "/static/2.png"})
	require.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedRequiresProcessing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSlideStateRepository(db)

	mock.ExpectExec(`SET slides_status = 'failed'.*WHERE id = \$1 AND slides_status = 'processing'`).
		WithArgs("s1", "render failed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	moved, err := repo.MarkFailed(context.Background(), models.SessionYouTube, "s1", "render failed")
	require.NoError(t, err)
	assert.True(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlideStateRejectsUnknownKind(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewSlideStateRepository(db)

	_, err := repo.FailStuck(context.Background(), models.SessionKind("users"), time.Now(), "stuck")
	assert.Error(t, err)
}
