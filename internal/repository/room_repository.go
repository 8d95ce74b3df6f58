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

const roomColumns = `id, classroom_id, name, description, created_by, created_at, updated_at`

// RoomRepository stores classroom chat rooms.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create inserts a room.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	room.CreatedAt, room.UpdatedAt = now, now
	const query = `INSERT INTO rooms (id, classroom_id, name, description, created_by, created_at, updated_at) VALUES (:id, :classroom_id, :name, :description, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// FindByID returns a room.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1 LIMIT 1`
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	return &room, nil
}

// ListByClassroom returns every room of a classroom.
func (r *RoomRepository) ListByClassroom(ctx context.Context, classroomID string) ([]models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE classroom_id = $1 ORDER BY created_at ASC`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, classroomID); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// NameTaken reports whether another room of the classroom already uses the name.
func (r *RoomRepository) NameTaken(ctx context.Context, classroomID, name, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM rooms WHERE classroom_id = $1 AND LOWER(name) = LOWER($2) AND id::text <> $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, classroomID, name, excludeID); err != nil {
		return false, fmt.Errorf("check room name: %w", err)
	}
	return exists, nil
}

// Update renames a room. The classroom binding is never rewritten.
func (r *RoomRepository) Update(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rooms SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	return nil
}

// Delete removes the room and its messages.
func (r *RoomRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete room tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE room_id = $1`, id); err != nil {
		return fmt.Errorf("delete room messages: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete room tx: %w", err)
	}
	return nil
}
