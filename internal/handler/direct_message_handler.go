package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/service"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/response"
)

// DirectMessageHandler exposes friend-to-friend conversations.
type DirectMessageHandler struct {
	service   *service.DirectMessageService
	maxUpload int64
}

// NewDirectMessageHandler constructs the handler.
func NewDirectMessageHandler(svc *service.DirectMessageService, maxUpload int64) *DirectMessageHandler {
	return &DirectMessageHandler{service: svc, maxUpload: maxUpload}
}

// Conversations godoc
// @Summary List conversations
// @Tags Messages
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /messages/conversations [get]
func (h *DirectMessageHandler) Conversations(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	items, err := h.service.Conversations(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Open godoc
// @Summary Open or create a conversation with a friend
// @Tags Messages
// @Produce json
// @Param id path string true "Friend user ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /messages/conversations/{id} [post]
func (h *DirectMessageHandler) Open(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	friendID, ok := idParam(c, "id", "user")
	if !ok {
		return
	}
	conv, err := h.service.Open(c.Request.Context(), claims.UserID, friendID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conv, nil)
}

// Messages godoc
// @Summary List conversation messages
// @Tags Messages
// @Produce json
// @Param id path string true "Conversation ID"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset from newest" default(0)
// @Success 200 {object} response.Envelope
// @Router /messages/conversations/{id}/messages [get]
func (h *DirectMessageHandler) Messages(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "conversation")
	if !ok {
		return
	}
	items, err := h.service.Messages(c.Request.Context(), id, claims.UserID, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Send godoc
// @Summary Send a direct message
// @Description Multipart body; mention @AI to get an assistant reply
// @Tags Messages
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Conversation ID"
// @Param content formData string false "Text"
// @Param file formData file false "Attachment"
// @Param shared_content formData string false "Shared content JSON"
// @Success 201 {object} response.Envelope
// @Router /messages/conversations/{id}/messages [post]
func (h *DirectMessageHandler) Send(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "conversation")
	if !ok {
		return
	}
	file, err := formFile(c, "file", h.maxUpload)
	if err != nil {
		response.Error(c, err)
		return
	}
	req := dto.SendDirectMessageRequest{
		Content: strings.TrimSpace(c.PostForm("content")),
		File:    file,
	}
	if shared := strings.TrimSpace(c.PostForm("shared_content")); shared != "" {
		if !json.Valid([]byte(shared)) {
			response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, "Invalid shared content"))
			return
		}
		req.SharedContent = json.RawMessage(shared)
	}
	res, err := h.service.Send(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Delete godoc
// @Summary Delete own direct message
// @Tags Messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} response.Envelope
// @Router /messages/messages/{id} [delete]
func (h *DirectMessageHandler) Delete(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "message")
	if !ok {
		return
	}
	if err := h.service.DeleteMessage(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Message deleted successfully"}, nil)
}
