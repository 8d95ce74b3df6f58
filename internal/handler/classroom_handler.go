package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/service"
	"github.com/peerlearn/peerlearn-api/pkg/response"
)

// ClassroomHandler exposes classroom and room management.
type ClassroomHandler struct {
	service *service.ClassroomService
}

// NewClassroomHandler constructs a classroom handler.
func NewClassroomHandler(svc *service.ClassroomService) *ClassroomHandler {
	return &ClassroomHandler{service: svc}
}

// Create godoc
// @Summary Create classroom
// @Description The caller becomes admin; a General room is created alongside
// @Tags Classrooms
// @Accept json
// @Produce json
// @Param payload body dto.CreateClassroomRequest true "Classroom payload"
// @Success 201 {object} response.Envelope
// @Router /classrooms [post]
func (h *ClassroomHandler) Create(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	var req dto.CreateClassroomRequest
	if !bindJSON(c, &req, "invalid classroom payload") {
		return
	}
	classroom, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, classroom)
}

// List godoc
// @Summary List my classrooms
// @Tags Classrooms
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /classrooms [get]
func (h *ClassroomHandler) List(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	classrooms, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classrooms, nil)
}

// Get godoc
// @Summary Get classroom detail
// @Tags Classrooms
// @Produce json
// @Param id path string true "Classroom ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classrooms/{id} [get]
func (h *ClassroomHandler) Get(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Update godoc
// @Summary Update classroom
// @Tags Classrooms
// @Accept json
// @Produce json
// @Param id path string true "Classroom ID"
// @Param payload body dto.UpdateClassroomRequest true "Classroom fields"
// @Success 200 {object} response.Envelope
// @Router /classrooms/{id} [put]
func (h *ClassroomHandler) Update(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	var req dto.UpdateClassroomRequest
	if !bindJSON(c, &req, "invalid classroom payload") {
		return
	}
	classroom, err := h.service.Update(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classroom, nil)
}

// Join godoc
// @Summary Join classroom by invite code
// @Tags Classrooms
// @Produce json
// @Param invite_code path string true "Invite code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classrooms/join/{invite_code} [post]
func (h *ClassroomHandler) Join(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	res, err := h.service.Join(c.Request.Context(), claims.UserID, c.Param("invite_code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Leave godoc
// @Summary Leave classroom
// @Tags Classrooms
// @Produce json
// @Param id path string true "Classroom ID"
// @Success 200 {object} response.Envelope
// @Router /classrooms/{id}/leave [delete]
func (h *ClassroomHandler) Leave(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	if err := h.service.Leave(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Successfully left classroom"}, nil)
}

// AddMember godoc
// @Summary Add a friend to the classroom
// @Tags Classrooms
// @Produce json
// @Param id path string true "Classroom ID"
// @Param user_id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /classrooms/{id}/add-member/{user_id} [post]
func (h *ClassroomHandler) AddMember(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	userID, ok := idParam(c, "user_id", "user")
	if !ok {
		return
	}
	if err := h.service.AddMember(c.Request.Context(), id, claims.UserID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Member added successfully"}, nil)
}

// AvailableFriends godoc
// @Summary Friends that can be added
// @Tags Classrooms
// @Produce json
// @Param id path string true "Classroom ID"
// @Success 200 {object} response.Envelope
// @Router /classrooms/{id}/available-friends [get]
func (h *ClassroomHandler) AvailableFriends(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	friends, err := h.service.AvailableFriends(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, friends, nil)
}

// Delete godoc
// @Summary Delete classroom
// @Description Removes the classroom with its rooms and messages
// @Tags Classrooms
// @Produce json
// @Param id path string true "Classroom ID"
// @Success 200 {object} response.Envelope
// @Router /classrooms/{id} [delete]
func (h *ClassroomHandler) Delete(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Classroom deleted successfully"}, nil)
}

// CreateRoom godoc
// @Summary Create room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param id path string true "Classroom ID"
// @Param payload body dto.RoomRequest true "Room payload"
// @Success 201 {object} response.Envelope
// @Router /classrooms/{id}/rooms [post]
func (h *ClassroomHandler) CreateRoom(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	var req dto.RoomRequest
	if !bindJSON(c, &req, "invalid room payload") {
		return
	}
	room, err := h.service.CreateRoom(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// Rooms godoc
// @Summary List rooms
// @Tags Rooms
// @Produce json
// @Param id path string true "Classroom ID"
// @Success 200 {object} response.Envelope
// @Router /classrooms/{id}/rooms [get]
func (h *ClassroomHandler) Rooms(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	rooms, err := h.service.Rooms(c.Request.Context(), id, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, nil)
}

// UpdateRoom godoc
// @Summary Rename room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param id path string true "Classroom ID"
// @Param room_id path string true "Room ID"
// @Param payload body dto.RoomRequest true "Room payload"
// @Success 200 {object} response.Envelope
// @Router /classrooms/{id}/rooms/{room_id} [put]
func (h *ClassroomHandler) UpdateRoom(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	roomID, ok := idParam(c, "room_id", "room")
	if !ok {
		return
	}
	var req dto.RoomRequest
	if !bindJSON(c, &req, "invalid room payload") {
		return
	}
	room, err := h.service.UpdateRoom(c.Request.Context(), id, roomID, claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, room, nil)
}

// DeleteRoom godoc
// @Summary Delete room
// @Tags Rooms
// @Produce json
// @Param id path string true "Classroom ID"
// @Param room_id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /classrooms/{id}/rooms/{room_id} [delete]
func (h *ClassroomHandler) DeleteRoom(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		return
	}
	id, ok := idParam(c, "id", "classroom")
	if !ok {
		return
	}
	roomID, ok := idParam(c, "room_id", "room")
	if !ok {
		return
	}
	if err := h.service.DeleteRoom(c.Request.Context(), id, roomID, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MessageResponse{Message: "Room deleted successfully"}, nil)
}

// SuggestNames godoc
// @Summary Suggest classroom names
// @Tags Classrooms
// @Produce json
// @Param description query string true "What the classroom is about"
// @Success 200 {object} response.Envelope
// @Router /classrooms/suggest-names [get]
func (h *ClassroomHandler) SuggestNames(c *gin.Context) {
	res, err := h.service.SuggestNames(c.Request.Context(), c.Query("description"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// SuggestRoomNames godoc
// @Summary Suggest room names
// @Tags Rooms
// @Produce json
// @Param classroom_name query string true "Classroom name"
// @Param subject query string false "Subject"
// @Success 200 {object} response.Envelope
// @Router /classrooms/suggest-room-names [get]
func (h *ClassroomHandler) SuggestRoomNames(c *gin.Context) {
	res, err := h.service.SuggestRoomNames(c.Request.Context(), c.Query("classroom_name"), c.Query("subject"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
