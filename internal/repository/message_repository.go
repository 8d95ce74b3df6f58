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

const messageSelect = `SELECT m.id, m.room_id, m.sender_id, m.content, m.message_type, m.timestamp, m.edited, m.edited_at, m.deleted, m.deleted_at,
u.name AS sender_name, u.avatar AS sender_avatar
FROM messages m JOIN users u ON u.id = m.sender_id`

// MessageRepository stores room chat messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.MessageType == "" {
		msg.MessageType = models.ChatMessageText
	}
	const query = `INSERT INTO messages (id, room_id, sender_id, content, message_type, timestamp, edited, deleted) VALUES (:id, :room_id, :sender_id, :content, :message_type, :timestamp, FALSE, FALSE)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// FindByID returns a message with its sender, deleted or not.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	query := messageSelect + ` WHERE m.id = $1 LIMIT 1`
	var msg models.Message
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &msg, nil
}

// ListRecent returns non-deleted room messages newest first.
func (r *MessageRepository) ListRecent(ctx context.Context, roomID string, limit, skip int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}
	query := fmt.Sprintf(`%s WHERE m.room_id = $1 AND NOT m.deleted ORDER BY m.timestamp DESC LIMIT %d OFFSET %d`, messageSelect, limit, skip)
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, roomID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// UpdateContent rewrites a message body and flags it edited.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	const query = `UPDATE messages SET content = $2, edited = TRUE, edited_at = $3 WHERE id = $1 AND NOT deleted`
	res, err := r.db.ExecContext(ctx, query, id, content, editedAt)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete flags a message deleted.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	const query = `UPDATE messages SET deleted = TRUE, deleted_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, deletedAt); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
