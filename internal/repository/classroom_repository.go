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

const classroomColumns = `c.id, c.name, c.description, c.admin_id, c.invite_code, c.created_at, c.updated_at,
(SELECT COUNT(*) FROM classroom_members m WHERE m.classroom_id = c.id) AS member_count`

// ClassroomRepository stores classrooms and their membership.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs the repository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// InviteCodeExists reports whether an invite code is taken.
func (r *ClassroomRepository) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM classrooms WHERE invite_code = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		return false, fmt.Errorf("check invite code: %w", err)
	}
	return exists, nil
}

// CreateWithRoom inserts the classroom, its admin membership and its first room in one transaction.
func (r *ClassroomRepository) CreateWithRoom(ctx context.Context, classroom *models.Classroom, room *models.Room) (err error) {
	now := time.Now().UTC()
	if classroom.ID == "" {
		classroom.ID = uuid.NewString()
	}
	classroom.CreatedAt, classroom.UpdatedAt = now, now
	classroom.MemberCount = 1
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	room.ClassroomID = classroom.ID
	room.CreatedAt, room.UpdatedAt = now, now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin classroom tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertClassroom = `INSERT INTO classrooms (id, name, description, admin_id, invite_code, created_at, updated_at) VALUES (:id, :name, :description, :admin_id, :invite_code, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertClassroom, classroom); err != nil {
		return fmt.Errorf("insert classroom: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO classroom_members (classroom_id, user_id, joined_at) VALUES ($1, $2, $3)`, classroom.ID, classroom.AdminID, now); err != nil {
		return fmt.Errorf("insert admin membership: %w", err)
	}
	const insertRoom = `INSERT INTO rooms (id, classroom_id, name, description, created_by, created_at, updated_at) VALUES (:id, :classroom_id, :name, :description, :created_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertRoom, room); err != nil {
		return fmt.Errorf("insert general room: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit classroom tx: %w", err)
	}
	return nil
}

// FindByID returns a classroom.
func (r *ClassroomRepository) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	query := `SELECT ` + classroomColumns + ` FROM classrooms c WHERE c.id = $1 LIMIT 1`
	var classroom models.Classroom
	if err := r.db.GetContext(ctx, &classroom, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find classroom: %w", err)
	}
	return &classroom, nil
}

// FindByInviteCode returns the classroom owning the invite code.
func (r *ClassroomRepository) FindByInviteCode(ctx context.Context, code string) (*models.Classroom, error) {
	query := `SELECT ` + classroomColumns + ` FROM classrooms c WHERE c.invite_code = $1 LIMIT 1`
	var classroom models.Classroom
	if err := r.db.GetContext(ctx, &classroom, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find classroom by invite code: %w", err)
	}
	return &classroom, nil
}

// ListForUser returns classrooms the user belongs to.
func (r *ClassroomRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Classroom, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM classrooms c JOIN classroom_members cm ON cm.classroom_id = c.id
WHERE cm.user_id = $1 ORDER BY c.created_at DESC LIMIT %d`, classroomColumns, limit)
	var classrooms []models.Classroom
	if err := r.db.SelectContext(ctx, &classrooms, query, userID); err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	return classrooms, nil
}

// Update persists the classroom name and description.
func (r *ClassroomRepository) Update(ctx context.Context, classroom *models.Classroom) error {
	classroom.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classrooms SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, classroom); err != nil {
		return fmt.Errorf("update classroom: %w", err)
	}
	return nil
}

// Delete removes the classroom with its rooms, messages and memberships.
func (r *ClassroomRepository) Delete(ctx context.Context, id string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete classroom tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	statements := []string{
		`DELETE FROM messages WHERE room_id IN (SELECT id FROM rooms WHERE classroom_id = $1)`,
		`DELETE FROM rooms WHERE classroom_id = $1`,
		`DELETE FROM classroom_members WHERE classroom_id = $1`,
		`DELETE FROM classrooms WHERE id = $1`,
	}
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete classroom: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete classroom tx: %w", err)
	}
	return nil
}

// IsMember reports whether the user belongs to the classroom.
func (r *ClassroomRepository) IsMember(ctx context.Context, classroomID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM classroom_members WHERE classroom_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, classroomID, userID); err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// AddMember inserts a membership.
func (r *ClassroomRepository) AddMember(ctx context.Context, classroomID, userID string) error {
	const query = `INSERT INTO classroom_members (classroom_id, user_id, joined_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, classroomID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *ClassroomRepository) RemoveMember(ctx context.Context, classroomID, userID string) error {
	const query = `DELETE FROM classroom_members WHERE classroom_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, classroomID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// ListMembers returns compact profiles of every member.
func (r *ClassroomRepository) ListMembers(ctx context.Context, classroomID string) ([]models.UserSummary, error) {
	const query = `SELECT u.id, u.name, u.email, u.avatar, u.student_id FROM classroom_members cm
JOIN users u ON u.id = cm.user_id WHERE cm.classroom_id = $1 ORDER BY cm.joined_at ASC`
	var members []models.UserSummary
	if err := r.db.SelectContext(ctx, &members, query, classroomID); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// FriendsNotInClassroom returns the user's friends that are not members yet.
func (r *ClassroomRepository) FriendsNotInClassroom(ctx context.Context, classroomID, userID string) ([]models.UserSummary, error) {
	const query = `SELECT u.id, u.name, u.email, u.avatar, u.student_id FROM user_friends f
JOIN users u ON u.id = f.friend_id
WHERE f.user_id = $2 AND NOT EXISTS (SELECT 1 FROM classroom_members cm WHERE cm.classroom_id = $1 AND cm.user_id = f.friend_id)
ORDER BY u.name ASC`
	var friends []models.UserSummary
	if err := r.db.SelectContext(ctx, &friends, query, classroomID, userID); err != nil {
		return nil, fmt.Errorf("list available friends: %w", err)
	}
	return friends, nil
}
