package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/docparse"
)

const documentChatWindow = 10

var documentExtensions = map[string]bool{".txt": true, ".docx": true, ".doc": true, ".pdf": true}

type documentStore interface {
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	Create(ctx context.Context, doc *models.Document) error
	FindForUser(ctx context.Context, id, userID string) (*models.Document, error)
	Update(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, id, userID string) (bool, error)
	AddChatMessage(ctx context.Context, msg *models.DocumentChatMessage) error
	RecentChat(ctx context.Context, documentID, userID string, limit int) ([]models.DocumentChatMessage, error)
	ChatHistory(ctx context.Context, documentID, userID string) ([]models.DocumentChatMessage, error)
}

type documentAssistant interface {
	DocumentChat(ctx context.Context, title, content, message string, history []models.DocumentChatMessage) (string, error)
	GenerateNotes(ctx context.Context, title, content, prompt string) (string, error)
}

// DocumentService manages note documents and the assistant conversations about them.
type DocumentService struct {
	docs      documentStore
	assistant documentAssistant
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDocumentService constructs the service.
func NewDocumentService(docs documentStore, assistant documentAssistant, validate *validator.Validate, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DocumentService{docs: docs, assistant: assistant, validator: validate, logger: logger}
}

// List returns the caller's documents filtered by search text and status.
func (s *DocumentService) List(ctx context.Context, userID, search, status string) ([]models.Document, error) {
	if status != "" && !models.DocumentStatus(status).Valid() {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Status must be one of: draft, published, archived")
	}
	docs, err := s.docs.List(ctx, models.DocumentFilter{UserID: userID, Search: strings.TrimSpace(search), Status: status})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to fetch documents")
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// Create stores a draft document.
func (s *DocumentService) Create(ctx context.Context, userID string, req dto.CreateDocumentRequest) (*models.Document, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid document payload")
	}
	doc := &models.Document{UserID: userID, Title: req.Title, Content: req.Content, Tags: req.Tags, Status: models.DocumentDraft}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to create document")
	}
	return doc, nil
}

// Get returns one of the caller's documents.
func (s *DocumentService) Get(ctx context.Context, id, userID string) (*models.Document, error) {
	doc, err := s.docs.FindForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

// Update patches title, content, tags or status.
func (s *DocumentService) Update(ctx context.Context, id, userID string, req dto.UpdateDocumentRequest) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid document payload")
	}
	doc, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		doc.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		doc.Content = *req.Content
	}
	if req.Tags != nil {
		doc.Tags = req.Tags
	}
	if req.Status != nil {
		doc.Status = *req.Status
	}
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document")
	}
	return doc, nil
}

// Delete removes one of the caller's documents.
func (s *DocumentService) Delete(ctx context.Context, id, userID string) error {
	deleted, err := s.docs.Delete(ctx, id, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete document")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "Document not found")
	}
	return nil
}

// Upload stores a document with text extracted from a TXT, DOCX, DOC or PDF file.
func (s *DocumentService) Upload(ctx context.Context, userID, title string, file *dto.Attachment) (*models.Document, error) {
	if file == nil {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "File is required")
	}
	ext := strings.ToLower(filepath.Ext(file.Name))
	if !documentExtensions[ext] {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Only TXT, DOCX, DOC, and PDF files are allowed")
	}
	name := filepath.Base(file.Name)
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	content := extractOrPlaceholder(s.logger, name, file.Data)
	fileType := strings.TrimPrefix(ext, ".")
	doc := &models.Document{
		UserID:   userID,
		Title:    title,
		Content:  content,
		Tags:     []string{},
		Status:   models.DocumentDraft,
		FileName: &name,
		FileType: &fileType,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to upload document")
	}
	return doc, nil
}

func extractOrPlaceholder(logger *zap.Logger, name string, data []byte) string {
	text, err := docparse.Extract(name, data)
	if err != nil {
		logger.Warn("document extraction failed", zap.String("file", name), zap.Error(err))
		return "Content extraction failed for " + name + ". You can edit this document manually."
	}
	return text
}

// Chat answers a message about the document and stores the exchange.
func (s *DocumentService) Chat(ctx context.Context, id, userID string, req dto.DocumentChatRequest) (*dto.DocumentChatResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid chat message")
	}
	doc, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.docs.RecentChat(ctx, doc.ID, userID, documentChatWindow)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to process chat message")
	}
	reply, err := s.assistant.DocumentChat(ctx, doc.Title, doc.Content, req.Message, history)
	if err != nil {
		s.logger.Warn("document chat failed", zap.String("document_id", doc.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to process chat message")
	}
	msg := &models.DocumentChatMessage{DocumentID: doc.ID, UserID: userID, Message: req.Message, Response: reply, CreatedAt: time.Now().UTC()}
	if err := s.docs.AddChatMessage(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to process chat message")
	}
	return &dto.DocumentChatResponse{Message: msg.Message, Response: msg.Response, Timestamp: msg.CreatedAt}, nil
}

// GenerateNotes writes notes for the document following the prompt.
func (s *DocumentService) GenerateNotes(ctx context.Context, id, userID string, req dto.GenerateNotesRequest) (*dto.GenerateNotesResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid prompt")
	}
	doc, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	notes, err := s.assistant.GenerateNotes(ctx, doc.Title, doc.Content, req.Prompt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to generate notes")
	}
	return &dto.GenerateNotesResponse{Notes: notes, Prompt: req.Prompt}, nil
}

// ChatHistory returns every exchange about the document in chronological order.
func (s *DocumentService) ChatHistory(ctx context.Context, id, userID string) ([]models.DocumentChatMessage, error) {
	doc, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.docs.ChatHistory(ctx, doc.ID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load chat history")
	}
	if history == nil {
		history = []models.DocumentChatMessage{}
	}
	return history, nil
}
