package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/internal/service"
	"github.com/peerlearn/peerlearn-api/pkg/response"
)

// NotesHandler exposes note documents and document AI sessions under /notes.
type NotesHandler struct {
	documents *service.DocumentService
	sessions  *service.DocumentSessionService
	slides    *service.SlideService
	maxUpload int64
}

// NewNotesHandler constructs the handler.
func NewNotesHandler(documents *service.DocumentService, sessions *service.DocumentSessionService, slides *service.SlideService, maxUpload int64) *NotesHandler {
	return &NotesHandler{documents: documents, sessions: sessions, slides: slides, maxUpload: maxUpload}
}

// ListDocuments godoc
// @Summary List my documents
// @Tags Notes
// @Produce json
// @Param search query string false "Title or content"
// @Param status query string false "draft, published or archived"
// @Success 200 {object} response.Envelope
// @Router /notes/documents [get]
func (h *NotesHandler) ListDocuments(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	docs, err := h.documents.List(c.Request.Context(), claims.UserID, strings.TrimSpace(c.Query("search")), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// CreateDocument godoc
// @Summary Create a document
// @Tags Notes
// @Accept json
// @Produce json
// @Param payload body dto.CreateDocumentRequest true "Document"
// @Success 201 {object} response.Envelope
// @Router /notes/documents [post]
func (h *NotesHandler) CreateDocument(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	var req dto.CreateDocumentRequest
	if !bindJSON(c, &req, "invalid document payload") {
		return
	}
	doc, err := h.documents.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// UploadDocument godoc
// @Summary Upload a document
// @Tags Notes
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "TXT, DOCX, DOC or PDF"
// @Param title formData string false "Title"
// @Success 201 {object} response.Envelope
// @Router /notes/documents/upload [post]
func (h *NotesHandler) UploadDocument(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	file, err := formFile(c, "file", h.maxUpload)
	if err != nil {
		response.Error(c, err)
		return
	}
	doc, err := h.documents.Upload(c.Request.Context(), claims.UserID, c.PostForm("title"), file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// GetDocument godoc
// @Summary Get a document
// @Tags Notes
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /notes/documents/{id} [get]
func (h *NotesHandler) GetDocument(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "document")
	if !ok {
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// UpdateDocument godoc
// @Summary Update a document
// @Tags Notes
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.UpdateDocumentRequest true "Fields"
// @Success 200 {object} response.Envelope
// @Router /notes/documents/{id} [put]
func (h *NotesHandler) UpdateDocument(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "document")
	if !ok {
		return
	}
	var req dto.UpdateDocumentRequest
	if !bindJSON(c, &req, "invalid document payload") {
		return
	}
	doc, err := h.documents.Update(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// DeleteDocument godoc
// @Summary Delete a document
// @Tags Notes
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /notes/documents/{id} [delete]
func (h *NotesHandler) DeleteDocument(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "document")
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Document deleted successfully"}, nil)
}

// DocumentChat godoc
// @Summary Chat about a document
// @Tags Notes
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.DocumentChatRequest true "Message"
// @Success 200 {object} response.Envelope
// @Router /notes/documents/{id}/chat [post]
func (h *NotesHandler) DocumentChat(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "document")
	if !ok {
		return
	}
	var req dto.DocumentChatRequest
	if !bindJSON(c, &req, "invalid chat payload") {
		return
	}
	res, err := h.documents.Chat(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// GenerateNotes godoc
// @Summary Generate notes from a document
// @Tags Notes
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.GenerateNotesRequest true "Prompt"
// @Success 200 {object} response.Envelope
// @Router /notes/documents/{id}/generate-notes [post]
func (h *NotesHandler) GenerateNotes(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "document")
	if !ok {
		return
	}
	var req dto.GenerateNotesRequest
	if !bindJSON(c, &req, "invalid notes payload") {
		return
	}
	res, err := h.documents.GenerateNotes(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ChatHistory godoc
// @Summary Document chat history
// @Tags Notes
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /notes/documents/{id}/chat-history [get]
func (h *NotesHandler) ChatHistory(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "document")
	if !ok {
		return
	}
	history, err := h.documents.ChatHistory(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// CreateSession godoc
// @Summary Create a document session
// @Description Accepts a multipart file, JSON text, or an existing document id
// @Tags Notes
// @Accept json,multipart/form-data
// @Produce json
// @Param payload body dto.CreateDocumentSessionRequest false "Text or document id"
// @Param file formData file false "TXT, DOCX, DOC or PDF"
// @Success 201 {object} response.Envelope
// @Router /notes/sessions [post]
func (h *NotesHandler) CreateSession(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	var req dto.CreateDocumentSessionRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := formFile(c, "file", h.maxUpload)
		if err != nil {
			response.Error(c, err)
			return
		}
		req.File = file
		req.Title = c.PostForm("title")
		req.Content = c.PostForm("content")
		req.DocumentID = c.PostForm("document_id")
	} else if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// ListSessions godoc
// @Summary List document sessions
// @Tags Notes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notes/sessions [get]
func (h *NotesHandler) ListSessions(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	sessions, err := h.sessions.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// GetSession godoc
// @Summary Get a document session
// @Tags Notes
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /notes/sessions/{id} [get]
func (h *NotesHandler) GetSession(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// DeleteSession godoc
// @Summary Delete a document session
// @Tags Notes
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /notes/sessions/{id} [delete]
func (h *NotesHandler) DeleteSession(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Session deleted successfully"}, nil)
}

// Summarize godoc
// @Summary Summarize a document session
// @Tags Notes
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /notes/sessions/{id}/summarize [post]
func (h *NotesHandler) Summarize(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	res, err := h.sessions.Summarize(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Flashcards godoc
// @Summary Generate flashcards from a document session
// @Tags Notes
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CountRequest false "Card count (max 25)"
// @Success 200 {object} response.Envelope
// @Router /notes/sessions/{id}/flashcards [post]
func (h *NotesHandler) Flashcards(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	var req dto.CountRequest
	if !bindOptionalJSON(c, &req, "invalid count") {
		return
	}
	res, err := h.sessions.Flashcards(c.Request.Context(), id, claims.UserID, req.Count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Quiz godoc
// @Summary Generate a quiz
// @Tags Notes
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CountRequest false "Question count (max 20)"
// @Success 200 {object} response.Envelope
// @Router /notes/sessions/{id}/quiz [post]
func (h *NotesHandler) Quiz(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	var req dto.CountRequest
	if !bindOptionalJSON(c, &req, "invalid count") {
		return
	}
	res, err := h.sessions.Quiz(c.Request.Context(), id, claims.UserID, req.Count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Ask godoc
// @Summary Ask about a document session
// @Tags Notes
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.AskRequest true "Question"
// @Success 200 {object} response.Envelope
// @Router /notes/sessions/{id}/chat [post]
func (h *NotesHandler) Ask(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	var req dto.AskRequest
	if !bindJSON(c, &req, "invalid question payload") {
		return
	}
	res, err := h.sessions.Ask(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Export godoc
// @Summary Export a document session
// @Tags Notes
// @Produce octet-stream
// @Param id path string true "Session ID"
// @Param format path string true "pdf, docx or markdown"
// @Success 200 {file} file
// @Router /notes/sessions/{id}/export/{format} [get]
func (h *NotesHandler) Export(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	file, err := h.sessions.Export(c.Request.Context(), id, claims.UserID, c.Param("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// StartSlides godoc
// @Summary Start slide generation for a document session
// @Tags Notes
// @Produce json
// @Param id path string true "Session ID"
// @Success 202 {object} response.Envelope
// @Router /notes/sessions/{id}/slides [post]
func (h *NotesHandler) StartSlides(c *gin.Context) {
	startSlides(c, h.slides, models.SessionDocument)
}

// SlidesStatus godoc
// @Summary Poll slide generation for a document session
// @Tags Notes
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /notes/sessions/{id}/slides [get]
func (h *NotesHandler) SlidesStatus(c *gin.Context) {
	slidesStatus(c, h.slides, models.SessionDocument)
}
