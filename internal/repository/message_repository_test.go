package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateContentSkipsDeletedMessages(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE messages SET content = \$2, edited = TRUE, edited_at = \$3 WHERE id = \$1 AND NOT deleted`).
		WithArgs("m1", "fixed", at).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateContent(context.Background(), "m1", "fixed", at))

	mock.ExpectExec(`UPDATE messages SET content`).
		WithArgs("m2", "fixed", at).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateContent(context.Background(), "m2", "fixed", at)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.NoError(t, mock.ExpectationsWereMet())
}
