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

const conversationColumns = `id, user_a, user_b, last_message_content, last_message_at, last_message_sender, created_at, updated_at`

// ConversationRepository stores direct message threads and their messages.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository constructs the repository.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func orderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// GetOrCreate returns the conversation of the pair, creating it when absent.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, userID, otherID string) (*models.Conversation, error) {
	a, b := orderedPair(userID, otherID)
	now := time.Now().UTC()
	query := `INSERT INTO conversations (id, user_a, user_b, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (user_a, user_b) DO UPDATE SET user_a = EXCLUDED.user_a
RETURNING ` + conversationColumns
	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, uuid.NewString(), a, b, now); err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	return &conv, nil
}

// FindByID returns a conversation.
func (r *ConversationRepository) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 LIMIT 1`
	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &conv, nil
}

// ListForUser returns the user's conversations most recent first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]models.ConversationListItem, error) {
	const query = `SELECT c.id, c.user_a, c.user_b, c.last_message_content, c.last_message_at, c.last_message_sender, c.created_at, c.updated_at,
u.id AS other_id, u.name AS other_name, u.email AS other_email, u.avatar AS other_avatar,
(SELECT COUNT(*) FROM direct_messages dm WHERE dm.conversation_id = c.id AND NOT dm.is_read AND dm.sender_id IS DISTINCT FROM $1::uuid) AS unread_count
FROM conversations c
JOIN users u ON u.id = CASE WHEN c.user_a = $1::uuid THEN c.user_b ELSE c.user_a END
WHERE c.user_a = $1::uuid OR c.user_b = $1::uuid
ORDER BY c.updated_at DESC`
	var items []models.ConversationListItem
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return items, nil
}

// ListMessages returns messages newest first with sender names.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.DirectMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT dm.id, dm.conversation_id, dm.sender_id, dm.content, dm.message_type, dm.file_url, dm.file_name, dm.file_size, dm.shared_content, dm.is_read, dm.created_at,
COALESCE(u.name, '%s') AS sender_name
FROM direct_messages dm LEFT JOIN users u ON u.id = dm.sender_id
WHERE dm.conversation_id = $1 ORDER BY dm.created_at DESC LIMIT %d OFFSET %d`, models.AISenderLabel, limit, offset)
	var msgs []models.DirectMessage
	if err := r.db.SelectContext(ctx, &msgs, query, conversationID); err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return msgs, nil
}

// MarkRead flags messages not sent by readerID as read.
func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string) error {
	const query = `UPDATE direct_messages SET is_read = TRUE WHERE conversation_id = $1 AND NOT is_read AND sender_id IS DISTINCT FROM $2::uuid`
	if _, err := r.db.ExecContext(ctx, query, conversationID, readerID); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// CreateMessage inserts a message and advances the conversation preview.
func (r *ConversationRepository) CreateMessage(ctx context.Context, msg *models.DirectMessage, preview string) (err error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin direct message tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO direct_messages (id, conversation_id, sender_id, content, message_type, file_url, file_name, file_size, shared_content, is_read, created_at)
VALUES (:id, :conversation_id, :sender_id, :content, :message_type, :file_url, :file_name, :file_size, :shared_content, :is_read, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insert, msg); err != nil {
		return fmt.Errorf("insert direct message: %w", err)
	}
	const touch = `UPDATE conversations SET last_message_content = $2, last_message_at = $3, last_message_sender = $4, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, touch, msg.ConversationID, preview, msg.CreatedAt, msg.SenderID); err != nil {
		return fmt.Errorf("update conversation preview: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit direct message tx: %w", err)
	}
	return nil
}

// FindMessage returns a direct message.
func (r *ConversationRepository) FindMessage(ctx context.Context, id string) (*models.DirectMessage, error) {
	const query = `SELECT id, conversation_id, sender_id, content, message_type, file_url, file_name, file_size, shared_content, is_read, created_at FROM direct_messages WHERE id = $1 LIMIT 1`
	var msg models.DirectMessage
	if err := r.db.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find direct message: %w", err)
	}
	return &msg, nil
}

// DeleteMessage hard deletes a direct message.
func (r *ConversationRepository) DeleteMessage(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM direct_messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete direct message: %w", err)
	}
	return nil
}

// CountUnread counts unread messages addressed to the user across conversations.
func (r *ConversationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM direct_messages dm JOIN conversations c ON c.id = dm.conversation_id
WHERE (c.user_a = $1::uuid OR c.user_b = $1::uuid) AND NOT dm.is_read AND dm.sender_id IS DISTINCT FROM $1::uuid`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread direct messages: %w", err)
	}
	return count, nil
}
