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

func TestCreateWithRoomIsTransactional(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO classrooms").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO classroom_members").WithArgs(sqlmock.AnyArg(), "admin", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO rooms").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	classroom := &models.Classroom{Name: "Physics 101", AdminID: "admin", InviteCode: "ABCD1234"}
	admin := "admin"
	room := &models.Room{Name: models.GeneralRoomName, CreatedBy: &admin}
	require.NoError(t, repo.CreateWithRoom(context.Background(), classroom, room))
	assert.Equal(t, classroom.ID, room.ClassroomID)
	assert.Equal(t, 1, classroom.MemberCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithRoomRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO classrooms").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO classroom_members").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err := repo.CreateWithRoom(context.Background(), &models.Classroom{AdminID: "admin"}, &models.Room{Name: models.GeneralRoomName})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsMember(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectQuery("SELECT EXISTS").WithArgs("c1", "u1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.IsMember(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteClassroomRemovesRoomsAndMessages(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM messages WHERE room_id IN \(SELECT id FROM rooms WHERE classroom_id = \$1\)`).
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec(`DELETE FROM rooms WHERE classroom_id = \$1`).
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM classroom_members WHERE classroom_id = \$1`).
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM classrooms WHERE id = \$1`).
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteClassroomRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassroomRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM messages`).WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM rooms`).WithArgs("c1").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "c1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}
