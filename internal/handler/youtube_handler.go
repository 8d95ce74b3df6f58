package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/internal/service"
	"github.com/peerlearn/peerlearn-api/pkg/response"
)

// YouTubeHandler exposes video summary sessions.
type YouTubeHandler struct {
	service *service.YouTubeService
	slides  *service.SlideService
}

// NewYouTubeHandler constructs the handler.
func NewYouTubeHandler(svc *service.YouTubeService, slides *service.SlideService) *YouTubeHandler {
	return &YouTubeHandler{service: svc, slides: slides}
}

// Create godoc
// @Summary Process a YouTube video
// @Description Downloads, transcribes and summarizes the video (300s limit)
// @Tags YouTube
// @Accept json
// @Produce json
// @Param payload body dto.CreateYouTubeSessionRequest true "Video URL"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 408 {object} response.Envelope
// @Router /youtube/sessions [post]
func (h *YouTubeHandler) Create(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	var req dto.CreateYouTubeSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	session, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// List godoc
// @Summary List my video sessions
// @Tags YouTube
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /youtube/sessions [get]
func (h *YouTubeHandler) List(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	sessions, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Get godoc
// @Summary Get a video session
// @Tags YouTube
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /youtube/sessions/{id} [get]
func (h *YouTubeHandler) Get(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	session, err := h.service.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Delete a video session
// @Tags YouTube
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /youtube/sessions/{id} [delete]
func (h *YouTubeHandler) Delete(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Session deleted successfully"}, nil)
}

// Ask godoc
// @Summary Ask about the video
// @Tags YouTube
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.AskRequest true "Question"
// @Success 200 {object} response.Envelope
// @Router /youtube/sessions/{id}/chat [post]
func (h *YouTubeHandler) Ask(c *gin.Context) {
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
	res, err := h.service.Ask(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// RegenerateSummaries godoc
// @Summary Regenerate summaries
// @Tags YouTube
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /youtube/sessions/{id}/regenerate-summaries [post]
func (h *YouTubeHandler) RegenerateSummaries(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	res, err := h.service.RegenerateSummaries(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Export godoc
// @Summary Export the session
// @Tags YouTube
// @Produce octet-stream
// @Param id path string true "Session ID"
// @Param format path string true "pdf, docx or markdown"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /youtube/sessions/{id}/export/{format} [get]
func (h *YouTubeHandler) Export(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	file, err := h.service.Export(c.Request.Context(), id, claims.UserID, c.Param("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// Flashcards godoc
// @Summary Generate flashcards
// @Description Soft failures return 200 with an empty list and a message
// @Tags YouTube
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CountRequest false "Card count (max 25)"
// @Success 200 {object} response.Envelope
// @Router /youtube/sessions/{id}/flashcards [post]
func (h *YouTubeHandler) Flashcards(c *gin.Context) {
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
	res, err := h.service.Flashcards(c.Request.Context(), id, claims.UserID, req.Count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ExportFlashcards godoc
// @Summary Download flashcards as CSV
// @Tags YouTube
// @Produce text/csv
// @Param id path string true "Session ID"
// @Success 200 {file} file
// @Router /youtube/sessions/{id}/flashcards/export [get]
func (h *YouTubeHandler) ExportFlashcards(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	file, err := h.service.ExportFlashcards(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// Explain godoc
// @Summary Explain a flashcard
// @Tags YouTube
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.ExplainRequest true "Flashcard"
// @Success 200 {object} response.Envelope
// @Router /youtube/sessions/{id}/flashcards/explain [post]
func (h *YouTubeHandler) Explain(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	var req dto.ExplainRequest
	if !bindJSON(c, &req, "invalid flashcard") {
		return
	}
	res, err := h.service.Explain(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// RelatedVideos godoc
// @Summary Suggest related videos
// @Tags YouTube
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CountRequest false "Video count (max 10)"
// @Success 200 {object} response.Envelope
// @Router /youtube/sessions/{id}/related-videos [post]
func (h *YouTubeHandler) RelatedVideos(c *gin.Context) {
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
	res, err := h.service.RelatedVideos(c.Request.Context(), id, claims.UserID, req.Count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// StartSlides godoc
// @Summary Start slide generation
// @Description Returns 202 when a job was queued
// @Tags YouTube
// @Produce json
// @Param id path string true "Session ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /youtube/sessions/{id}/slides [post]
func (h *YouTubeHandler) StartSlides(c *gin.Context) {
	startSlides(c, h.slides, models.SessionYouTube)
}

// SlidesStatus godoc
// @Summary Poll slide generation
// @Tags YouTube
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /youtube/sessions/{id}/slides [get]
func (h *YouTubeHandler) SlidesStatus(c *gin.Context) {
	slidesStatus(c, h.slides, models.SessionYouTube)
}

func startSlides(c *gin.Context, slides *service.SlideService, kind models.SessionKind) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	res, queued, err := slides.Start(c.Request.Context(), kind, id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	response.JSON(c, status, res, nil)
}

func slidesStatus(c *gin.Context, slides *service.SlideService, kind models.SessionKind) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	res, _, err := slides.Status(c.Request.Context(), kind, id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
