package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/pkg/ai"
)

type memoryDocuments struct {
	docs  map[string]*models.Document
	chats []models.DocumentChatMessage
}

func newMemoryDocuments() *memoryDocuments {
	return &memoryDocuments{docs: map[string]*models.Document{}}
}

func (m *memoryDocuments) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	return nil, nil
}

func (m *memoryDocuments) Create(ctx context.Context, doc *models.Document) error {
	doc.ID = "doc-" + doc.Title
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memoryDocuments) FindForUser(ctx context.Context, id, userID string) (*models.Document, error) {
	if d, ok := m.docs[id]; ok && d.UserID == userID {
		cp := *d
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryDocuments) Update(ctx context.Context, doc *models.Document) error {
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memoryDocuments) Delete(ctx context.Context, id, userID string) (bool, error) {
	if _, err := m.FindForUser(ctx, id, userID); err != nil {
		return false, nil
	}
	delete(m.docs, id)
	return true, nil
}

func (m *memoryDocuments) AddChatMessage(ctx context.Context, msg *models.DocumentChatMessage) error {
	m.chats = append(m.chats, *msg)
	return nil
}

func (m *memoryDocuments) RecentChat(ctx context.Context, documentID, userID string, limit int) ([]models.DocumentChatMessage, error) {
	return m.chats, nil
}

func (m *memoryDocuments) ChatHistory(ctx context.Context, documentID, userID string) ([]models.DocumentChatMessage, error) {
	return m.chats, nil
}

type stubDocumentAssistant struct {
	reply      string
	err        error
	gotHistory []models.DocumentChatMessage
}

func (s *stubDocumentAssistant) DocumentChat(ctx context.Context, title, content, message string, history []models.DocumentChatMessage) (string, error) {
	s.gotHistory = history
	return s.reply, s.err
}

func (s *stubDocumentAssistant) GenerateNotes(ctx context.Context, title, content, prompt string) (string, error) {
	return "notes for " + title, s.err
}

func TestDocumentUploadExtractsText(t *testing.T) {
	docs := newMemoryDocuments()
	svc := NewDocumentService(docs, &stubDocumentAssistant{}, nil, zap.NewNop())

	_, err := svc.Upload(context.Background(), "u1", "", &dto.Attachment{Name: "slides.exe", Data: []byte("x")})
	assertAppError(t, err, http.StatusBadRequest, "Only TXT, DOCX, DOC, and PDF files are allowed")

	doc, err := svc.Upload(context.Background(), "u1", "", &dto.Attachment{Name: "notes.txt", Data: []byte("  photosynthesis basics  ")})
	require.NoError(t, err)
	assert.Equal(t, "notes", doc.Title)
	assert.Equal(t, "photosynthesis basics", doc.Content)
	assert.Equal(t, models.DocumentDraft, doc.Status)
	require.NotNil(t, doc.FileType)
	assert.Equal(t, "txt", *doc.FileType)

	doc, err = svc.Upload(context.Background(), "u1", "Broken", &dto.Attachment{Name: "broken.pdf", Data: []byte("not a pdf")})
	require.NoError(t, err)
	assert.Equal(t, "Content extraction failed for broken.pdf. You can edit this document manually.", doc.Content)
}

func TestDocumentChatStoresExchange(t *testing.T) {
	docs := newMemoryDocuments()
	docs.docs["d1"] = &models.Document{ID: "d1", UserID: "u1", Title: "Cells", Content: "mitochondria"}
	assistant := &stubDocumentAssistant{reply: "powerhouse"}
	svc := NewDocumentService(docs, assistant, nil, zap.NewNop())

	resp, err := svc.Chat(context.Background(), "d1", "u1", dto.DocumentChatRequest{Message: "what?"})
	require.NoError(t, err)
	assert.Equal(t, "powerhouse", resp.Response)
	require.Len(t, docs.chats, 1)

	_, err = svc.Chat(context.Background(), "d1", "u2", dto.DocumentChatRequest{Message: "what?"})
	assertAppError(t, err, http.StatusNotFound, "Document not found")

	assistant.err = errors.New("llm down")
	_, err = svc.Chat(context.Background(), "d1", "u1", dto.DocumentChatRequest{Message: "again"})
	assertAppError(t, err, http.StatusInternalServerError, "Failed to process chat message")
	assert.Len(t, docs.chats, 1)
}

func TestDocumentListRejectsUnknownStatus(t *testing.T) {
	svc := NewDocumentService(newMemoryDocuments(), &stubDocumentAssistant{}, nil, zap.NewNop())
	_, err := svc.List(context.Background(), "u1", "", "deleted")
	assertAppError(t, err, http.StatusBadRequest, "Status must be one of: draft, published, archived")

	docs, err := svc.List(context.Background(), "u1", "", "draft")
	require.NoError(t, err)
	assert.NotNil(t, docs)
}

type memoryDocumentSessions struct {
	items   map[string]*models.DocumentSession
	quizzes map[string][]models.QuizQuestion
	cards   map[string][]models.Flashcard
	chats   map[string][]models.ChatEntry
}

func newMemoryDocumentSessions() *memoryDocumentSessions {
	return &memoryDocumentSessions{
		items:   map[string]*models.DocumentSession{},
		quizzes: map[string][]models.QuizQuestion{},
		cards:   map[string][]models.Flashcard{},
		chats:   map[string][]models.ChatEntry{},
	}
}

func (m *memoryDocumentSessions) Create(ctx context.Context, s *models.DocumentSession) error {
	s.ID = "ds-1"
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *memoryDocumentSessions) FindForUser(ctx context.Context, id, userID string) (*models.DocumentSession, error) {
	if s, ok := m.items[id]; ok && s.UserID == userID {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryDocumentSessions) ListForUser(ctx context.Context, userID string) ([]models.DocumentSession, error) {
	return nil, nil
}

func (m *memoryDocumentSessions) Delete(ctx context.Context, id, userID string) (bool, error) {
	_, ok := m.items[id]
	delete(m.items, id)
	return ok, nil
}

func (m *memoryDocumentSessions) AppendChat(ctx context.Context, id string, entries ...models.ChatEntry) error {
	m.chats[id] = append(m.chats[id], entries...)
	return nil
}

func (m *memoryDocumentSessions) UpdateSummaries(ctx context.Context, id, short, detailed string) error {
	m.items[id].ShortSummary, m.items[id].DetailedSummary = short, detailed
	return nil
}

func (m *memoryDocumentSessions) SaveFlashcards(ctx context.Context, id string, cards []models.Flashcard) error {
	m.cards[id] = cards
	return nil
}

func (m *memoryDocumentSessions) SaveQuiz(ctx context.Context, id string, questions []models.QuizQuestion) error {
	m.quizzes[id] = questions
	return nil
}

func newDocumentSessionFixture() (*DocumentSessionService, *memoryDocumentSessions, *memoryDocuments, *stubAssistant) {
	sessions := newMemoryDocumentSessions()
	docs := newMemoryDocuments()
	assistant := &stubAssistant{}
	return NewDocumentSessionService(sessions, docs, assistant, nil, nil, zap.NewNop()), sessions, docs, assistant
}

func TestDocumentSessionCreateSources(t *testing.T) {
	svc, _, docs, _ := newDocumentSessionFixture()
	const docID = "5f0c7e2a-8d4b-4c1e-9a3f-2b6d8e0f1a2c"
	docs.docs[docID] = &models.Document{ID: docID, UserID: "u1", Title: "Genetics", Content: "DNA"}

	session, err := svc.Create(context.Background(), "u1", dto.CreateDocumentSessionRequest{Content: "  pasted text  "})
	require.NoError(t, err)
	assert.Equal(t, "pasted text", session.Content)
	assert.Equal(t, "Untitled document", session.Title)

	session, err = svc.Create(context.Background(), "u1", dto.CreateDocumentSessionRequest{DocumentID: docID})
	require.NoError(t, err)
	assert.Equal(t, "Genetics", session.Title)
	assert.Equal(t, "DNA", session.Content)
	require.NotNil(t, session.DocumentID)

	session, err = svc.Create(context.Background(), "u1", dto.CreateDocumentSessionRequest{File: &dto.Attachment{Name: "chapter1.txt", Data: []byte("cell theory")}})
	require.NoError(t, err)
	assert.Equal(t, "chapter1", session.Title)
	assert.Equal(t, "cell theory", session.Content)

	_, err = svc.Create(context.Background(), "u1", dto.CreateDocumentSessionRequest{})
	assertAppError(t, err, http.StatusBadRequest, "Document content is required")

	_, err = svc.Create(context.Background(), "u2", dto.CreateDocumentSessionRequest{DocumentID: docID})
	assertAppError(t, err, http.StatusNotFound, "Document not found")
}

func TestDocumentSessionQuiz(t *testing.T) {
	svc, sessions, _, assistant := newDocumentSessionFixture()
	sessions.items["s1"] = &models.DocumentSession{ID: "s1", UserID: "u1", Title: "Cells", Content: "mitochondria"}

	assistant.quiz = []models.QuizQuestion{{Question: "q", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 2}}
	resp, err := svc.Quiz(context.Background(), "s1", "u1", 50)
	require.NoError(t, err)
	assert.Equal(t, maxQuizQuestions, assistant.gotCount)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, assistant.quiz, sessions.quizzes["s1"])

	assistant.quiz, assistant.quizErr = nil, &ai.GenerationError{Operation: "quiz", Reason: "no valid questions"}
	resp, err = svc.Quiz(context.Background(), "s1", "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultQuizQuestions, assistant.gotCount)
	assert.Equal(t, quizSoftFailure, resp.Message)
	assert.Empty(t, resp.Questions)
}

func TestDocumentSessionSummarizeThenFlashcards(t *testing.T) {
	svc, sessions, _, assistant := newDocumentSessionFixture()
	sessions.items["s1"] = &models.DocumentSession{ID: "s1", UserID: "u1", Title: "Cells", Content: "mitochondria"}

	assistant.cards = []models.Flashcard{{Question: "q", Answer: "a"}}
	_, err := svc.Flashcards(context.Background(), "s1", "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, "mitochondria", assistant.gotSource)

	summaries, err := svc.Summarize(context.Background(), "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "short of Cells", summaries.ShortSummary)
	assert.Equal(t, "detailed of Cells", sessions.items["s1"].DetailedSummary)

	_, err = svc.Flashcards(context.Background(), "s1", "u1", 0)
	require.NoError(t, err)
	assert.Equal(t, "detailed of Cells", assistant.gotSource)
}
