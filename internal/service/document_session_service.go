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
	"github.com/peerlearn/peerlearn-api/pkg/ai"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

const (
	defaultQuizQuestions = 5
	maxQuizQuestions     = 20
	quizSoftFailure      = "Quiz not available right now. Please try again later."
)

type documentSessionStore interface {
	Create(ctx context.Context, s *models.DocumentSession) error
	FindForUser(ctx context.Context, id, userID string) (*models.DocumentSession, error)
	ListForUser(ctx context.Context, userID string) ([]models.DocumentSession, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
	AppendChat(ctx context.Context, id string, entries ...models.ChatEntry) error
	UpdateSummaries(ctx context.Context, id, short, detailed string) error
	SaveFlashcards(ctx context.Context, id string, cards []models.Flashcard) error
	SaveQuiz(ctx context.Context, id string, questions []models.QuizQuestion) error
}

type documentFinder interface {
	FindForUser(ctx context.Context, id, userID string) (*models.Document, error)
}

// DocumentSessionService builds AI study sessions from document text.
type DocumentSessionService struct {
	sessions  documentSessionStore
	documents documentFinder
	assistant studyAssistant
	exporter  sessionExporter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewDocumentSessionService constructs the service.
func NewDocumentSessionService(sessions documentSessionStore, documents documentFinder, assistant studyAssistant, exporter sessionExporter, validate *validator.Validate, logger *zap.Logger) *DocumentSessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &DocumentSessionService{
		sessions:  sessions,
		documents: documents,
		assistant: assistant,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create builds a session from an uploaded file, pasted text or an existing document.
func (s *DocumentSessionService) Create(ctx context.Context, userID string, req dto.CreateDocumentSessionRequest) (*models.DocumentSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid session payload")
	}
	session := &models.DocumentSession{
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		ChatHistory: models.JSONList[models.ChatEntry]{},
		Flashcards:  models.JSONList[models.Flashcard]{},
		Quiz:        models.JSONList[models.QuizQuestion]{},
		SlideState:  models.SlideState{Status: models.SlidesPending, Images: models.JSONList[string]{}},
	}

	switch {
	case req.File != nil:
		ext := strings.ToLower(filepath.Ext(req.File.Name))
		if !documentExtensions[ext] {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Only TXT, DOCX, DOC, and PDF files are allowed")
		}
		name := filepath.Base(req.File.Name)
		session.FileName = &name
		session.Content = extractOrPlaceholder(s.logger, name, req.File.Data)
		if session.Title == "" {
			session.Title = strings.TrimSuffix(name, filepath.Ext(name))
		}
	case req.DocumentID != "":
		doc, err := s.documents.FindForUser(ctx, req.DocumentID, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "Document not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
		}
		session.DocumentID = &doc.ID
		session.Content = doc.Content
		session.FileName = doc.FileName
		if session.Title == "" {
			session.Title = doc.Title
		}
	default:
		session.Content = strings.TrimSpace(req.Content)
	}

	if strings.TrimSpace(session.Content) == "" {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Document content is required")
	}
	if session.Title == "" {
		session.Title = "Untitled document"
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save session")
	}
	return session, nil
}

// List returns the caller's document sessions.
func (s *DocumentSessionService) List(ctx context.Context, userID string) ([]models.DocumentSession, error) {
	items, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if items == nil {
		items = []models.DocumentSession{}
	}
	return items, nil
}

// Get returns one of the caller's sessions.
func (s *DocumentSessionService) Get(ctx context.Context, id, userID string) (*models.DocumentSession, error) {
	session, err := s.sessions.FindForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// Delete removes one of the caller's sessions.
func (s *DocumentSessionService) Delete(ctx context.Context, id, userID string) error {
	deleted, err := s.sessions.Delete(ctx, id, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "Session not found")
	}
	return nil
}

// Summarize generates and stores both summaries.
func (s *DocumentSessionService) Summarize(ctx context.Context, id, userID string) (*dto.SummariesResponse, error) {
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	short, detailed, fellBack := s.assistant.Summaries(ctx, session.Content, session.Title)
	if err := s.sessions.UpdateSummaries(ctx, session.ID, short, detailed); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save summaries")
	}
	return &dto.SummariesResponse{ShortSummary: short, DetailedSummary: detailed, Message: summariesMessage(fellBack)}, nil
}

// Flashcards generates cards from the summaries, or from the content when none exist yet.
func (s *DocumentSessionService) Flashcards(ctx context.Context, id, userID string, count int) (*dto.FlashcardsResponse, error) {
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	short, detailed := session.ShortSummary, session.DetailedSummary
	if short == "" && detailed == "" {
		detailed = session.Content
	}
	cards, err := s.assistant.Flashcards(ctx, short, detailed, session.Title, clampCount(count, defaultFlashcards, maxFlashcards))
	return saveFlashcards(ctx, s.logger, session.ID, cards, err, s.sessions.SaveFlashcards)
}

// Quiz generates and stores multiple choice questions.
func (s *DocumentSessionService) Quiz(ctx context.Context, id, userID string, count int) (*dto.QuizResponse, error) {
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	questions, err := s.assistant.Quiz(ctx, session.Content, session.Title, clampCount(count, defaultQuizQuestions, maxQuizQuestions))
	if err != nil {
		if ai.IsGenerationError(err) {
			s.logger.Warn("quiz generation failed", zap.String("session_id", id), zap.Error(err))
			return &dto.QuizResponse{Questions: []models.QuizQuestion{}, Count: 0, Message: quizSoftFailure, Error: err.Error()}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "An unexpected error occurred while generating the quiz")
	}
	if err := s.sessions.SaveQuiz(ctx, session.ID, questions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save quiz")
	}
	return &dto.QuizResponse{Questions: questions, Count: len(questions)}, nil
}

// Ask answers a question about the document and appends both turns to the history.
func (s *DocumentSessionService) Ask(ctx context.Context, id, userID string, req dto.AskRequest) (*dto.AskResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid question")
	}
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	answer, err := s.assistant.Answer(ctx, req.Question, session.Content, session.Title, session.ChatHistory)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to generate answer")
	}
	return appendExchange(ctx, s.sessions.AppendChat, session.ID, req.Question, answer, s.now())
}

// Export renders the session as pdf, docx or markdown.
func (s *DocumentSessionService) Export(ctx context.Context, id, userID, format string) (*dto.ExportFile, error) {
	session, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.exporter.DocumentSession(ctx, session, format)
}
