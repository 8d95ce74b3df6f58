package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/peerlearn/peerlearn-api/internal/models"
)

const documentColumns = `id, user_id, title, content, tags, status, file_name, file_type, created_at, updated_at`

// DocumentRepository stores note documents and their assistant history.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// List returns the owner's documents, most recently updated first.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	conditions := []string{"user_id = $1"}
	args := []interface{}{filter.UserID}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(content) LIKE $%d)", len(args), len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE %s ORDER BY updated_at DESC`, documentColumns, strings.Join(conditions, " AND "))
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Create inserts a document.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now
	if doc.Status == "" {
		doc.Status = models.DocumentDraft
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	const query = `INSERT INTO documents (id, user_id, title, content, tags, status, file_name, file_type, created_at, updated_at)
VALUES (:id, :user_id, :title, :content, :tags, :status, :file_name, :file_type, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindForUser returns a document owned by userID.
func (r *DocumentRepository) FindForUser(ctx context.Context, id, userID string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND user_id = $2 LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &doc, nil
}

// Update persists the editable fields.
func (r *DocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	const query = `UPDATE documents SET title = :title, content = :content, tags = :tags, status = :status, updated_at = :updated_at WHERE id = :id AND user_id = :user_id`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// Delete removes a document owned by userID and reports whether it existed.
func (r *DocumentRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddChatMessage stores one assistant exchange.
func (r *DocumentRepository) AddChatMessage(ctx context.Context, msg *models.DocumentChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO document_chat_messages (id, document_id, user_id, message, response, created_at) VALUES (:id, :document_id, :user_id, :message, :response, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, msg); err != nil {
		return fmt.Errorf("create document chat message: %w", err)
	}
	return nil
}

// RecentChat returns up to limit exchanges in chronological order.
func (r *DocumentRepository) RecentChat(ctx context.Context, documentID, userID string, limit int) ([]models.DocumentChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT * FROM (
SELECT id, document_id, user_id, message, response, created_at FROM document_chat_messages
WHERE document_id = $1 AND user_id = $2 ORDER BY created_at DESC LIMIT %d
) recent ORDER BY created_at ASC`, limit)
	var msgs []models.DocumentChatMessage
	if err := r.db.SelectContext(ctx, &msgs, query, documentID, userID); err != nil {
		return nil, fmt.Errorf("list document chat: %w", err)
	}
	return msgs, nil
}

// ChatHistory returns every exchange in chronological order.
func (r *DocumentRepository) ChatHistory(ctx context.Context, documentID, userID string) ([]models.DocumentChatMessage, error) {
	const query = `SELECT id, document_id, user_id, message, response, created_at FROM document_chat_messages
WHERE document_id = $1 AND user_id = $2 ORDER BY created_at ASC`
	var msgs []models.DocumentChatMessage
	if err := r.db.SelectContext(ctx, &msgs, query, documentID, userID); err != nil {
		return nil, fmt.Errorf("document chat history: %w", err)
	}
	return msgs, nil
}
