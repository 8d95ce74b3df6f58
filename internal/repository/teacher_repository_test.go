package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

func TestTeacherListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	minRating := 4.0
	maxPrice := 30.0
	mock.ExpectQuery(`FROM teacher_profiles t JOIN users u ON u.id = t.user_id WHERE t.is_active AND .*courses_offered.* AND t.rating >= \$2 AND t.hourly_rate <= \$3 .*LIMIT 50 OFFSET 0`).
		WithArgs("%math%", minRating, maxPrice).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "user_name"}).AddRow("t1", "u1", "Grace"))

	profiles, err := repo.List(context.Background(), models.TeacherFilter{Subject: "Math", MinRating: &minRating, MaxPrice: &maxPrice})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "Grace", profiles[0].UserName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptHireCreatesSessionAndBumpsCounters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	hours := 2
	hire := &models.HireRequest{ID: "h1", TeacherID: "t1", StudentID: "s1", Subject: "Calculus", DurationHours: &hours, Status: models.HirePending}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE hire_requests SET status").WithArgs("h1", models.HireAccepted, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO teaching_sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE teacher_profiles SET total_students = total_students \\+ 1").WithArgs("t1", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	session, err := repo.AcceptHire(context.Background(), hire)
	require.NoError(t, err)
	assert.Equal(t, 120, session.DurationMinutes)
	assert.Equal(t, models.TeachingScheduled, session.Status)
	assert.Equal(t, models.HireAccepted, hire.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptHireRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE hire_requests SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO teaching_sessions").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := repo.AcceptHire(context.Background(), &models.HireRequest{ID: "h1", TeacherID: "t1", StudentID: "s1"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherAddReviewRecomputesRating(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO teacher_reviews").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE teacher_profiles SET\nrating = \\(SELECT ROUND\\(AVG\\(rating\\)::numeric, 2\\)").WithArgs("t1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.AddReview(context.Background(), &models.TeacherReview{TeacherID: "t1", StudentID: "s1", Rating: 5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
