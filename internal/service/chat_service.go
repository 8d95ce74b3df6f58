package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

// Room events emitted after a successful write.
const (
	EventNewMessage     = "new_message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
)

const (
	defaultMessagePage  = 50
	maxMessagePage      = 100
	summaryMessageLimit = 100
)

// RoomBroadcaster fans an event out to every connection joined to a room.
type RoomBroadcaster interface {
	BroadcastToRoom(ctx context.Context, roomID, event string, data interface{})
}

type chatMessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	ListRecent(ctx context.Context, roomID string, limit, skip int) ([]models.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type roomAuthorizer interface {
	CanAccessRoom(ctx context.Context, userID, roomID string) (*models.Room, error)
}

type contentGate interface {
	Check(ctx context.Context, text string) error
}

type roomSummarizer interface {
	SummarizeRoom(ctx context.Context, roomName string, lines []string) string
}

// ChatSender identifies the author of a room message. Name and Avatar are
// resolved from the user record when Name is empty.
type ChatSender struct {
	ID     string
	Name   string
	Avatar *string
}

// ChatService is the single write path for room messages, shared by HTTP and websocket.
// Each write runs authorize, moderate, persist and broadcast in that order.
type ChatService struct {
	messages    chatMessageStore
	membership  roomAuthorizer
	moderation  contentGate
	summarizer  roomSummarizer
	users       userFinder
	broadcaster RoomBroadcaster
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewChatService constructs the service. broadcaster may be set later with SetBroadcaster.
func NewChatService(messages chatMessageStore, membership roomAuthorizer, moderation contentGate, summarizer roomSummarizer, users userFinder, validate *validator.Validate, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ChatService{
		messages:   messages,
		membership: membership,
		moderation: moderation,
		summarizer: summarizer,
		users:      users,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetBroadcaster wires the realtime fan-out.
func (s *ChatService) SetBroadcaster(b RoomBroadcaster) {
	s.broadcaster = b
}

func (s *ChatService) broadcast(ctx context.Context, roomID, event string, data interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.BroadcastToRoom(ctx, roomID, event, data)
}

// AuthorizeRoom exposes the membership check to the realtime gateway.
func (s *ChatService) AuthorizeRoom(ctx context.Context, userID, roomID string) (*models.Room, error) {
	return s.membership.CanAccessRoom(ctx, userID, roomID)
}

// List returns a page of non-deleted messages in chronological order.
func (s *ChatService) List(ctx context.Context, userID, roomID string, limit, skip int) ([]models.Message, error) {
	if _, err := s.membership.CanAccessRoom(ctx, userID, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}
	msgs, err := s.messages.ListRecent(ctx, roomID, limit, skip)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	reverseMessages(msgs)
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func (s *ChatService) resolveSender(ctx context.Context, sender ChatSender) (ChatSender, error) {
	if sender.Name != "" {
		return sender, nil
	}
	user, err := s.users.FindByID(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sender, appErrors.Clone(appErrors.ErrUnauthorized, "User not found")
		}
		return sender, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	sender.Name, sender.Avatar = user.Name, user.Avatar
	return sender, nil
}

// Send stores a room message and broadcasts new_message to the room.
func (s *ChatService) Send(ctx context.Context, sender ChatSender, roomID string, req dto.SendMessageRequest) (*models.Message, error) {
	req.Content = strings.TrimSpace(req.Content)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid message payload")
	}
	if _, err := s.membership.CanAccessRoom(ctx, sender.ID, roomID); err != nil {
		return nil, err
	}
	if err := s.moderation.Check(ctx, req.Content); err != nil {
		return nil, err
	}
	sender, err := s.resolveSender(ctx, sender)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		RoomID:       roomID,
		SenderID:     sender.ID,
		Content:      req.Content,
		MessageType:  models.ChatMessageText,
		Timestamp:    s.now(),
		SenderName:   sender.Name,
		SenderAvatar: sender.Avatar,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save message")
	}
	s.broadcast(ctx, roomID, EventNewMessage, dto.MessageEvent{Message: *msg, SenderName: sender.Name, SenderAvatar: sender.Avatar})
	return msg, nil
}

func (s *ChatService) loadMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := s.messages.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	return msg, nil
}

// Get returns a message by id, including soft-deleted ones. Members only.
func (s *ChatService) Get(ctx context.Context, userID, messageID string) (*models.Message, error) {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.membership.CanAccessRoom(ctx, userID, msg.RoomID); err != nil {
		return nil, err
	}
	return msg, nil
}

// Edit rewrites the caller's own message and broadcasts message_edited.
func (s *ChatService) Edit(ctx context.Context, userID, messageID string, req dto.SendMessageRequest) (*models.Message, error) {
	req.Content = strings.TrimSpace(req.Content)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid message payload")
	}
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Can only edit your own messages")
	}
	if msg.Deleted {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Cannot edit deleted message")
	}
	if _, err := s.membership.CanAccessRoom(ctx, userID, msg.RoomID); err != nil {
		return nil, err
	}
	if err := s.moderation.Check(ctx, req.Content); err != nil {
		return nil, err
	}

	editedAt := s.now()
	if err := s.messages.UpdateContent(ctx, msg.ID, req.Content, editedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrBadRequest, "Cannot edit deleted message")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to edit message")
	}
	msg.Content = req.Content
	msg.Edited = true
	msg.EditedAt = &editedAt
	s.broadcast(ctx, msg.RoomID, EventMessageEdited, dto.MessageEvent{Message: *msg, SenderName: msg.SenderName, SenderAvatar: msg.SenderAvatar})
	return msg, nil
}

// Delete soft-deletes the caller's own message and broadcasts message_deleted.
func (s *ChatService) Delete(ctx context.Context, userID, messageID string) error {
	msg, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "Can only delete your own messages")
	}
	if msg.Deleted {
		return appErrors.Clone(appErrors.ErrBadRequest, "Message already deleted")
	}
	if _, err := s.membership.CanAccessRoom(ctx, userID, msg.RoomID); err != nil {
		return err
	}
	if err := s.messages.SoftDelete(ctx, msg.ID, s.now()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete message")
	}
	s.broadcast(ctx, msg.RoomID, EventMessageDeleted, dto.MessageDeletedEvent{MessageID: msg.ID, RoomID: msg.RoomID})
	return nil
}

// Summarize turns the room's recent discussion into study notes.
func (s *ChatService) Summarize(ctx context.Context, userID, roomID string) (*dto.RoomSummary, error) {
	room, err := s.membership.CanAccessRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListRecent(ctx, roomID, summaryMessageLimit, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load messages")
	}
	if len(msgs) == 0 {
		return &dto.RoomSummary{Summary: "No messages to summarize in this room.", MessageCount: 0}, nil
	}
	reverseMessages(msgs)
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.SenderName+": "+m.Content)
	}
	summary := s.summarizer.SummarizeRoom(ctx, room.Name, lines)
	return &dto.RoomSummary{Summary: summary, MessageCount: len(msgs), RoomName: room.Name}, nil
}
