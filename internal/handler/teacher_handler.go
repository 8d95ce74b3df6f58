package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/internal/service"
	"github.com/peerlearn/peerlearn-api/pkg/response"
)

// TeacherHandler exposes the teacher hiring marketplace.
type TeacherHandler struct {
	service   *service.TeacherService
	maxUpload int64
}

// NewTeacherHandler constructs a teacher handler.
func NewTeacherHandler(svc *service.TeacherService, maxUpload int64) *TeacherHandler {
	return &TeacherHandler{service: svc, maxUpload: maxUpload}
}

// CreateProfile godoc
// @Summary Create my teacher profile
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body dto.TeacherProfileRequest true "Profile"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/profile [post]
func (h *TeacherHandler) CreateProfile(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	var req dto.TeacherProfileRequest
	if !bindJSON(c, &req, "invalid teacher profile payload") {
		return
	}
	profile, err := h.service.CreateProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// MyProfile godoc
// @Summary Get my teacher profile
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/profile [get]
func (h *TeacherHandler) MyProfile(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	profile, err := h.service.MyProfile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UpdateProfile godoc
// @Summary Update my teacher profile
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body dto.TeacherProfileRequest true "Profile"
// @Success 200 {object} response.Envelope
// @Router /teachers/profile [put]
func (h *TeacherHandler) UpdateProfile(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	var req dto.TeacherProfileRequest
	if !bindJSON(c, &req, "invalid teacher profile payload") {
		return
	}
	profile, err := h.service.UpdateProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// UploadPicture godoc
// @Summary Upload my teacher picture
// @Tags Teachers
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Image"
// @Success 200 {object} response.Envelope
// @Router /teachers/profile/picture [post]
func (h *TeacherHandler) UploadPicture(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	file, err := formFile(c, "file", h.maxUpload)
	if err != nil {
		response.Error(c, err)
		return
	}
	url, err := h.service.UploadPicture(c.Request.Context(), claims.UserID, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "Profile picture updated", "profile_picture": url}, nil)
}

// List godoc
// @Summary Browse teachers
// @Tags Teachers
// @Produce json
// @Param subject query string false "Course offered"
// @Param expertise query string false "Expertise"
// @Param min_rating query number false "Minimum rating"
// @Param max_price query number false "Maximum hourly rate"
// @Param language query string false "Language"
// @Param search query string false "Search"
// @Param skip query int false "Offset" default(0)
// @Param limit query int false "Page size" default(50)
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *TeacherHandler) List(c *gin.Context) {
	filter := models.TeacherFilter{
		Subject:   strings.TrimSpace(c.Query("subject")),
		Expertise: strings.TrimSpace(c.Query("expertise")),
		Language:  strings.TrimSpace(c.Query("language")),
		Search:    strings.TrimSpace(c.Query("search")),
		Skip:      queryInt(c, "skip", 0),
		Limit:     queryInt(c, "limit", 50),
	}
	if v, ok := queryFloat(c, "min_rating"); ok {
		filter.MinRating = &v
	}
	if v, ok := queryFloat(c, "max_price"); ok {
		filter.MaxPrice = &v
	}
	teachers, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}

func queryFloat(c *gin.Context, key string) (float64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Get godoc
// @Summary Teacher detail with latest reviews
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher profile ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id", "teacher")
	if !ok {
		return
	}
	profile, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile, nil)
}

// Reviews godoc
// @Summary Teacher reviews
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher profile ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/reviews [get]
func (h *TeacherHandler) Reviews(c *gin.Context) {
	id, ok := idParam(c, "id", "teacher")
	if !ok {
		return
	}
	reviews, err := h.service.Reviews(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, nil)
}

// AddReview godoc
// @Summary Review a teacher you hired
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path string true "Teacher profile ID"
// @Param payload body dto.ReviewRequest true "Review"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/{id}/reviews [post]
func (h *TeacherHandler) AddReview(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "teacher")
	if !ok {
		return
	}
	var req dto.ReviewRequest
	if !bindJSON(c, &req, "invalid review payload") {
		return
	}
	review, err := h.service.AddReview(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// Hire godoc
// @Summary Send a hire request
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body dto.HireRequestPayload true "Hire request"
// @Success 201 {object} response.Envelope
// @Router /teachers/hire [post]
func (h *TeacherHandler) Hire(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	var req dto.HireRequestPayload
	if !bindJSON(c, &req, "invalid hire payload") {
		return
	}
	hire, err := h.service.Hire(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, hire)
}

// SentRequests godoc
// @Summary Hire requests I sent
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/hire/requests/sent [get]
func (h *TeacherHandler) SentRequests(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	hires, err := h.service.SentRequests(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hires, nil)
}

// ReceivedRequests godoc
// @Summary Hire requests I received
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /teachers/hire/requests/received [get]
func (h *TeacherHandler) ReceivedRequests(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	hires, err := h.service.ReceivedRequests(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hires, nil)
}

// UpdateRequest godoc
// @Summary Accept, reject or close a hire request
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path string true "Hire request ID"
// @Param payload body dto.UpdateHireStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Router /teachers/hire/requests/{id} [put]
func (h *TeacherHandler) UpdateRequest(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "hire request")
	if !ok {
		return
	}
	var req dto.UpdateHireStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	hire, session, err := h.service.UpdateRequest(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload := gin.H{"message": "Hire request updated", "request": hire}
	if session != nil {
		payload["session"] = session
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// MySessions godoc
// @Summary My teaching sessions
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/sessions/my-sessions [get]
func (h *TeacherHandler) MySessions(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	sessions, err := h.service.MySessions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// CompleteSession godoc
// @Summary Mark a teaching session completed
// @Tags Teachers
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/sessions/{id}/complete [put]
func (h *TeacherHandler) CompleteSession(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "session")
	if !ok {
		return
	}
	if err := h.service.CompleteSession(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Session marked as completed"}, nil)
}

// Analytics godoc
// @Summary Teacher dashboard analytics
// @Tags Teachers
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teachers/dashboard/analytics [get]
func (h *TeacherHandler) Analytics(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	analytics, err := h.service.Analytics(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analytics, nil)
}
