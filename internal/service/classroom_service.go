package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

const (
	inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	inviteCodeLength   = 8
	inviteCodeAttempts = 10
	classroomListLimit = 100
)

type classroomStore interface {
	InviteCodeExists(ctx context.Context, code string) (bool, error)
	CreateWithRoom(ctx context.Context, classroom *models.Classroom, room *models.Room) error
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
	FindByInviteCode(ctx context.Context, code string) (*models.Classroom, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Classroom, error)
	Update(ctx context.Context, classroom *models.Classroom) error
	Delete(ctx context.Context, id string) error
	IsMember(ctx context.Context, classroomID, userID string) (bool, error)
	AddMember(ctx context.Context, classroomID, userID string) error
	RemoveMember(ctx context.Context, classroomID, userID string) error
	ListMembers(ctx context.Context, classroomID string) ([]models.UserSummary, error)
	FriendsNotInClassroom(ctx context.Context, classroomID, userID string) ([]models.UserSummary, error)
}

type roomStore interface {
	Create(ctx context.Context, room *models.Room) error
	FindByID(ctx context.Context, id string) (*models.Room, error)
	ListByClassroom(ctx context.Context, classroomID string) ([]models.Room, error)
	NameTaken(ctx context.Context, classroomID, name, excludeID string) (bool, error)
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type friendshipChecker interface {
	AreFriends(ctx context.Context, userID, friendID string) (bool, error)
}

type nameSuggester interface {
	SuggestClassroomNames(ctx context.Context, description string) []string
	SuggestRoomNames(ctx context.Context, classroomName, subject string) []string
}

// ClassroomService manages classrooms, their membership and their rooms.
type ClassroomService struct {
	classrooms classroomStore
	rooms      roomStore
	users      userFinder
	friends    friendshipChecker
	names      nameSuggester
	validator  *validator.Validate
	logger     *zap.Logger
	newCode    func() (string, error)
}

// NewClassroomService constructs the service.
func NewClassroomService(classrooms classroomStore, rooms roomStore, users userFinder, friends friendshipChecker, names nameSuggester, validate *validator.Validate, logger *zap.Logger) *ClassroomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClassroomService{
		classrooms: classrooms,
		rooms:      rooms,
		users:      users,
		friends:    friends,
		names:      names,
		validator:  validate,
		logger:     logger,
		newCode:    randomInviteCode,
	}
}

func randomInviteCode() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(inviteCodeAlphabet)))
	for i := 0; i < inviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(inviteCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

func (s *ClassroomService) uniqueInviteCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate invite code")
		}
		taken, err := s.classrooms.InviteCodeExists(ctx, code)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check invite code")
		}
		if !taken {
			return code, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "failed to generate a unique invite code")
}

// Create makes the caller admin and member of a new classroom with its General room.
func (s *ClassroomService) Create(ctx context.Context, userID string, req dto.CreateClassroomRequest) (*models.Classroom, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid classroom payload")
	}
	code, err := s.uniqueInviteCode(ctx)
	if err != nil {
		return nil, err
	}
	classroom := &models.Classroom{Name: req.Name, Description: req.Description, AdminID: userID, InviteCode: code}
	description := "General discussion room"
	room := &models.Room{Name: models.GeneralRoomName, Description: &description, CreatedBy: &userID}
	if err := s.classrooms.CreateWithRoom(ctx, classroom, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create classroom")
	}
	s.logger.Info("classroom created", zap.String("classroom_id", classroom.ID), zap.String("admin_id", userID))
	return classroom, nil
}

// List returns the caller's classrooms.
func (s *ClassroomService) List(ctx context.Context, userID string) ([]models.Classroom, error) {
	items, err := s.classrooms.ListForUser(ctx, userID, classroomListLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classrooms")
	}
	if items == nil {
		items = []models.Classroom{}
	}
	return items, nil
}

func (s *ClassroomService) load(ctx context.Context, id string) (*models.Classroom, error) {
	classroom, err := s.classrooms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	return classroom, nil
}

func (s *ClassroomService) isMember(ctx context.Context, classroomID, userID string) (bool, error) {
	ok, err := s.classrooms.IsMember(ctx, classroomID, userID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	return ok, nil
}

func (s *ClassroomService) loadForMember(ctx context.Context, id, userID string) (*models.Classroom, error) {
	classroom, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.isMember(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Not a member of this classroom")
	}
	return classroom, nil
}

func (s *ClassroomService) loadForAdmin(ctx context.Context, id, userID, denied string) (*models.Classroom, error) {
	classroom, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if classroom.AdminID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, denied)
	}
	return classroom, nil
}

// Get returns the classroom with its members and rooms.
func (s *ClassroomService) Get(ctx context.Context, id, userID string) (*dto.ClassroomDetail, error) {
	classroom, err := s.loadForMember(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	members, err := s.classrooms.ListMembers(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}
	rooms, err := s.rooms.ListByClassroom(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	if members == nil {
		members = []models.UserSummary{}
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return &dto.ClassroomDetail{Classroom: *classroom, Members: members, Rooms: rooms, IsAdmin: classroom.AdminID == userID}, nil
}

// Update changes name or description. Admin only.
func (s *ClassroomService) Update(ctx context.Context, id, userID string, req dto.UpdateClassroomRequest) (*models.Classroom, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid classroom payload")
	}
	classroom, err := s.loadForAdmin(ctx, id, userID, "Only classroom admin can update classroom")
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		classroom.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		classroom.Description = req.Description
	}
	if err := s.classrooms.Update(ctx, classroom); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update classroom")
	}
	return classroom, nil
}

// Join adds the caller through an invite code.
func (s *ClassroomService) Join(ctx context.Context, userID, inviteCode string) (*dto.JoinClassroomResponse, error) {
	classroom, err := s.classrooms.FindByInviteCode(ctx, strings.ToUpper(strings.TrimSpace(inviteCode)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Invalid invite code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	member, err := s.isMember(ctx, classroom.ID, userID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Already a member of this classroom")
	}
	if err := s.classrooms.AddMember(ctx, classroom.ID, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join classroom")
	}
	return &dto.JoinClassroomResponse{Message: "Successfully joined classroom", ClassroomID: classroom.ID}, nil
}

// Leave removes the caller. The admin cannot leave.
func (s *ClassroomService) Leave(ctx context.Context, id, userID string) error {
	classroom, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if classroom.AdminID == userID {
		return appErrors.Clone(appErrors.ErrBadRequest, "Admin cannot leave classroom. Transfer admin or delete classroom.")
	}
	member, err := s.isMember(ctx, id, userID)
	if err != nil {
		return err
	}
	if !member {
		return appErrors.Clone(appErrors.ErrBadRequest, "Not a member of this classroom")
	}
	if err := s.classrooms.RemoveMember(ctx, id, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave classroom")
	}
	return nil
}

// AddMember lets the admin add one of their friends.
func (s *ClassroomService) AddMember(ctx context.Context, id, adminID, userID string) error {
	if _, err := s.loadForAdmin(ctx, id, adminID, "Only classroom admin can add members"); err != nil {
		return err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	member, err := s.isMember(ctx, id, userID)
	if err != nil {
		return err
	}
	if member {
		return appErrors.Clone(appErrors.ErrBadRequest, "User is already a member of this classroom")
	}
	friends, err := s.friends.AreFriends(ctx, adminID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check friendship")
	}
	if !friends {
		return appErrors.Clone(appErrors.ErrBadRequest, "Can only add friends to classroom")
	}
	if err := s.classrooms.AddMember(ctx, id, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add member")
	}
	return nil
}

// AvailableFriends lists the admin's friends who are not yet members.
func (s *ClassroomService) AvailableFriends(ctx context.Context, id, adminID string) ([]models.UserSummary, error) {
	if _, err := s.loadForAdmin(ctx, id, adminID, "Only classroom admin can view available friends"); err != nil {
		return nil, err
	}
	friends, err := s.classrooms.FriendsNotInClassroom(ctx, id, adminID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list friends")
	}
	if friends == nil {
		friends = []models.UserSummary{}
	}
	return friends, nil
}

// Delete removes the classroom with its rooms and messages. Admin only.
func (s *ClassroomService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.loadForAdmin(ctx, id, userID, "Only classroom admin can delete classroom"); err != nil {
		return err
	}
	if err := s.classrooms.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete classroom")
	}
	s.logger.Info("classroom deleted", zap.String("classroom_id", id))
	return nil
}

// CreateRoom adds a room with a name unique in the classroom. Admin only.
func (s *ClassroomService) CreateRoom(ctx context.Context, classroomID, userID string, req dto.RoomRequest) (*models.Room, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid room payload")
	}
	if _, err := s.loadForAdmin(ctx, classroomID, userID, "Only classroom admin can create rooms"); err != nil {
		return nil, err
	}
	if err := s.ensureRoomName(ctx, classroomID, req.Name, ""); err != nil {
		return nil, err
	}
	room := &models.Room{ClassroomID: classroomID, Name: req.Name, Description: req.Description, CreatedBy: &userID}
	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	return room, nil
}

func (s *ClassroomService) ensureRoomName(ctx context.Context, classroomID, name, excludeID string) error {
	taken, err := s.rooms.NameTaken(ctx, classroomID, name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check room name")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrBadRequest, "Room name already exists in this classroom")
	}
	return nil
}

// Rooms lists the rooms of a classroom. Members only.
func (s *ClassroomService) Rooms(ctx context.Context, classroomID, userID string) ([]models.Room, error) {
	if _, err := s.loadForMember(ctx, classroomID, userID); err != nil {
		return nil, err
	}
	rooms, err := s.rooms.ListByClassroom(ctx, classroomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return rooms, nil
}

func (s *ClassroomService) loadRoom(ctx context.Context, classroomID, roomID string) (*models.Room, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room")
	}
	if room.ClassroomID != classroomID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Room not found")
	}
	return room, nil
}

// UpdateRoom renames a room. Admin only.
func (s *ClassroomService) UpdateRoom(ctx context.Context, classroomID, roomID, userID string, req dto.RoomRequest) (*models.Room, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid room payload")
	}
	if _, err := s.loadForAdmin(ctx, classroomID, userID, "Only classroom admin can update rooms"); err != nil {
		return nil, err
	}
	room, err := s.loadRoom(ctx, classroomID, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureRoomName(ctx, classroomID, req.Name, room.ID); err != nil {
		return nil, err
	}
	room.Name = req.Name
	if req.Description != nil {
		room.Description = req.Description
	}
	if err := s.rooms.Update(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	return room, nil
}

// DeleteRoom removes a room and its messages. The General room is permanent.
func (s *ClassroomService) DeleteRoom(ctx context.Context, classroomID, roomID, userID string) error {
	if _, err := s.loadForAdmin(ctx, classroomID, userID, "Only classroom admin can delete rooms"); err != nil {
		return err
	}
	room, err := s.loadRoom(ctx, classroomID, roomID)
	if err != nil {
		return err
	}
	if room.Name == models.GeneralRoomName {
		return appErrors.Clone(appErrors.ErrBadRequest, "Cannot delete the General room")
	}
	if err := s.rooms.Delete(ctx, room.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}
	return nil
}

// SuggestNames proposes classroom names for a description.
func (s *ClassroomService) SuggestNames(ctx context.Context, description string) (*dto.NameSuggestions, error) {
	description = strings.TrimSpace(description)
	if len(description) < 3 {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Description must be at least 3 characters long")
	}
	return &dto.NameSuggestions{Suggestions: s.names.SuggestClassroomNames(ctx, description)}, nil
}

// SuggestRoomNames proposes room names for a classroom and subject.
func (s *ClassroomService) SuggestRoomNames(ctx context.Context, classroomName, subject string) (*dto.NameSuggestions, error) {
	classroomName = strings.TrimSpace(classroomName)
	if len(classroomName) < 2 {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Classroom name must be at least 2 characters long")
	}
	return &dto.NameSuggestions{Suggestions: s.names.SuggestRoomNames(ctx, classroomName, strings.TrimSpace(subject))}, nil
}
