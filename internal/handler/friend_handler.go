package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/service"
	"github.com/peerlearn/peerlearn-api/pkg/response"
)

// FriendHandler exposes the friend graph.
type FriendHandler struct {
	service *service.FriendService
}

// NewFriendHandler constructs a friend handler.
func NewFriendHandler(svc *service.FriendService) *FriendHandler {
	return &FriendHandler{service: svc}
}

// List godoc
// @Summary List friends
// @Tags Friends
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /friends [get]
func (h *FriendHandler) List(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	friends, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, friends, nil)
}

// SendRequest godoc
// @Summary Send a friend request
// @Tags Friends
// @Produce json
// @Param receiver_id path string true "Receiver ID"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /friends/send-request/{receiver_id} [post]
func (h *FriendHandler) SendRequest(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	receiverID, ok := idParam(c, "receiver_id", "user")
	if !ok {
		return
	}
	req, err := h.service.SendRequest(c.Request.Context(), claims.UserID, receiverID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"message": "Friend request sent", "request_id": req.ID})
}

// Requests godoc
// @Summary Pending friend requests received
// @Tags Friends
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /friends/requests [get]
func (h *FriendHandler) Requests(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	items, err := h.service.PendingRequests(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Accept godoc
// @Summary Accept a friend request
// @Tags Friends
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /friends/accept-request/{id} [post]
func (h *FriendHandler) Accept(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "request")
	if !ok {
		return
	}
	if err := h.service.AcceptRequest(c.Request.Context(), claims.UserID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Friend request accepted"}, nil)
}

// Decline godoc
// @Summary Decline a friend request
// @Tags Friends
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /friends/decline-request/{id} [post]
func (h *FriendHandler) Decline(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "request")
	if !ok {
		return
	}
	if err := h.service.DeclineRequest(c.Request.Context(), claims.UserID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Friend request declined"}, nil)
}

// Remove godoc
// @Summary Remove a friend
// @Tags Friends
// @Produce json
// @Param friend_id path string true "Friend ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /friends/remove/{friend_id} [delete]
func (h *FriendHandler) Remove(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	friendID, ok := idParam(c, "friend_id", "user")
	if !ok {
		return
	}
	if err := h.service.Remove(c.Request.Context(), claims.UserID, friendID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Friend removed successfully"}, nil)
}

// Search godoc
// @Summary Search users
// @Tags Friends
// @Produce json
// @Param query path string true "Name, email or student id"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /friends/search/{query} [get]
func (h *FriendHandler) Search(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	results, err := h.service.Search(c.Request.Context(), claims.UserID, c.Param("query"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}
