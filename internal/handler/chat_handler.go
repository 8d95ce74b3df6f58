package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/service"
	"github.com/peerlearn/peerlearn-api/pkg/response"
)

// ChatHandler is the HTTP transport of the room chat. It shares ChatService with the websocket gateway.
type ChatHandler struct {
	service *service.ChatService
}

// NewChatHandler constructs a chat handler.
func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// List godoc
// @Summary List room messages
// @Description Non-deleted messages in chronological order
// @Tags Chat
// @Produce json
// @Param room_id path string true "Room ID"
// @Param limit query int false "Page size" default(50)
// @Param skip query int false "Offset from newest" default(0)
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /chat/rooms/{room_id}/messages [get]
func (h *ChatHandler) List(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	roomID, ok := idParam(c, "room_id", "room")
	if !ok {
		return
	}
	msgs, err := h.service.List(c.Request.Context(), claims.UserID, roomID, queryInt(c, "limit", 50), queryInt(c, "skip", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msgs, nil)
}

// Send godoc
// @Summary Post a room message
// @Tags Chat
// @Accept json
// @Produce json
// @Param room_id path string true "Room ID"
// @Param payload body dto.SendMessageRequest true "Message"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /chat/rooms/{room_id}/messages [post]
func (h *ChatHandler) Send(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	roomID, ok := idParam(c, "room_id", "room")
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if !bindJSON(c, &req, "invalid message payload") {
		return
	}
	msg, err := h.service.Send(c.Request.Context(), service.ChatSender{ID: claims.UserID}, roomID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Get godoc
// @Summary Get a message by id
// @Description Includes soft-deleted messages
// @Tags Chat
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} response.Envelope
// @Router /chat/messages/{id} [get]
func (h *ChatHandler) Get(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "message")
	if !ok {
		return
	}
	msg, err := h.service.Get(c.Request.Context(), claims.UserID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

// Edit godoc
// @Summary Edit own message
// @Tags Chat
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param payload body dto.SendMessageRequest true "New content"
// @Success 200 {object} response.Envelope
// @Router /chat/messages/{id} [put]
func (h *ChatHandler) Edit(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "message")
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if !bindJSON(c, &req, "invalid message payload") {
		return
	}
	msg, err := h.service.Edit(c.Request.Context(), claims.UserID, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

// Delete godoc
// @Summary Soft-delete own message
// @Tags Chat
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} response.Envelope
// @Router /chat/messages/{id} [delete]
func (h *ChatHandler) Delete(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "message")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.UserID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Message deleted successfully"}, nil)
}

// Summarize godoc
// @Summary Summarize a room's discussion
// @Tags Chat
// @Produce json
// @Param room_id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Router /chat/rooms/{room_id}/summarize [post]
func (h *ChatHandler) Summarize(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	roomID, ok := idParam(c, "room_id", "room")
	if !ok {
		return
	}
	summary, err := h.service.Summarize(c.Request.Context(), claims.UserID, roomID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
