package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/storage"
)

const (
	previewLength    = 100
	aiContextWindow  = 10
	defaultDMPage    = 50
	maxDMPage        = 200
	aiReplyFallback  = "Sorry, I couldn't generate a response right now. Please try again later."
	dmMessageSuccess = "Message sent successfully"
)

var aiMention = regexp.MustCompile(`(?i)@ai\b`)

type conversationStore interface {
	GetOrCreate(ctx context.Context, userID, otherID string) (*models.Conversation, error)
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationListItem, error)
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.DirectMessage, error)
	MarkRead(ctx context.Context, conversationID, readerID string) error
	CreateMessage(ctx context.Context, msg *models.DirectMessage, preview string) error
	FindMessage(ctx context.Context, id string) (*models.DirectMessage, error)
	DeleteMessage(ctx context.Context, id string) error
}

type directReplier interface {
	DirectReply(ctx context.Context, conversation []string, prompt string) (string, error)
}

// DirectMessageService handles one-to-one conversations between friends.
type DirectMessageService struct {
	conversations conversationStore
	friends       friendshipChecker
	assistant     directReplier
	store         storage.ObjectStore
	logger        *zap.Logger
}

// NewDirectMessageService constructs the service.
func NewDirectMessageService(conversations conversationStore, friends friendshipChecker, assistant directReplier, store storage.ObjectStore, logger *zap.Logger) *DirectMessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectMessageService{conversations: conversations, friends: friends, assistant: assistant, store: store, logger: logger}
}

// Conversations lists the caller's conversations, most recently active first.
func (s *DirectMessageService) Conversations(ctx context.Context, userID string) ([]dto.ConversationItem, error) {
	rows, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conversations")
	}
	items := make([]dto.ConversationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.ConversationItem{
			ID:                 row.ID,
			OtherUser:          models.UserSummary{ID: row.OtherID, Name: row.OtherName, Email: row.OtherEmail, Avatar: row.OtherAvatar},
			LastMessageContent: row.LastMessageContent,
			LastMessageAt:      row.LastMessageAt,
			UnreadCount:        row.UnreadCount,
			UpdatedAt:          row.UpdatedAt,
		})
	}
	return items, nil
}

// Open returns the conversation with a friend, creating it on first use.
func (s *DirectMessageService) Open(ctx context.Context, userID, friendID string) (*models.Conversation, error) {
	ok, err := s.friends.AreFriends(ctx, userID, friendID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check friendship")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Can only message friends")
	}
	conv, err := s.conversations.GetOrCreate(ctx, userID, friendID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open conversation")
	}
	return conv, nil
}

func (s *DirectMessageService) participantConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Conversation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}
	if !conv.HasParticipant(userID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Access denied")
	}
	return conv, nil
}

// Messages returns a chronological page and marks the counterpart's messages read.
func (s *DirectMessageService) Messages(ctx context.Context, conversationID, userID string, limit, offset int) ([]dto.DirectMessageItem, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultDMPage
	}
	if limit > maxDMPage {
		limit = maxDMPage
	}
	msgs, err := s.conversations.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	if err := s.conversations.MarkRead(ctx, conversationID, userID); err != nil {
		s.logger.Warn("mark read failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	items := make([]dto.DirectMessageItem, len(msgs))
	for i, m := range msgs {
		own := m.SenderID != nil && *m.SenderID == userID
		items[len(msgs)-1-i] = dto.DirectMessageItem{DirectMessage: m, IsOwnMessage: own}
	}
	return items, nil
}

// Send posts text, a file and/or shared study content. An @AI mention adds an assistant reply.
func (s *DirectMessageService) Send(ctx context.Context, conversationID, userID string, req dto.SendDirectMessageRequest) (*dto.SendDirectMessageResponse, error) {
	conv, err := s.participantConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(req.Content)
	shared := bytes.TrimSpace(req.SharedContent)
	if content == "" && req.File == nil && len(shared) == 0 {
		return nil, appErrors.Clone(appErrors.ErrBadRequest, "Message must have content or a file")
	}

	sender := userID
	msg := &models.DirectMessage{ConversationID: conv.ID, SenderID: &sender, MessageType: models.DMText}
	if content != "" {
		msg.Content = &content
	}
	if req.File != nil {
		if err := s.attach(ctx, conv.ID, msg, req.File); err != nil {
			return nil, err
		}
	}
	if len(shared) > 0 {
		if err := validateSharedContent(shared); err != nil {
			return nil, err
		}
		msg.SharedContent = models.JSONObject(shared)
		msg.MessageType = models.DMSharedContent
	}

	if err := s.conversations.CreateMessage(ctx, msg, preview(msg)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	resp := &dto.SendDirectMessageResponse{MessageID: msg.ID, Message: dmMessageSuccess}

	if content != "" && aiMention.MatchString(content) {
		if id := s.replyWithAI(ctx, conv.ID, content); id != "" {
			resp.AIResponseID = &id
		}
	}
	return resp, nil
}

func (s *DirectMessageService) attach(ctx context.Context, conversationID string, msg *models.DirectMessage, file *dto.Attachment) error {
	if s.store == nil {
		return appErrors.Clone(appErrors.ErrInternal, "file storage is not configured")
	}
	key := fmt.Sprintf("messages/%s/%s%s", conversationID, uuid.NewString(), strings.ToLower(filepath.Ext(file.Name)))
	url, err := storage.PutBytes(ctx, s.store, key, file.Data, file.ContentType)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	name := filepath.Base(file.Name)
	size := file.Size
	if size == 0 {
		size = int64(len(file.Data))
	}
	msg.FileURL, msg.FileName, msg.FileSize = &url, &name, &size
	msg.MessageType = models.DirectMessageTypeFor(file.ContentType)
	return nil
}

func validateSharedContent(raw []byte) error {
	var payload struct {
		Type models.SharedContentType `json:"type"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return appErrors.Clone(appErrors.ErrBadRequest, "Invalid shared content")
	}
	if !payload.Type.Valid() {
		return appErrors.Clone(appErrors.ErrBadRequest, "Invalid shared content type")
	}
	return nil
}

func preview(msg *models.DirectMessage) string {
	switch {
	case msg.Content != nil:
		return truncateRunes(*msg.Content, previewLength)
	case msg.FileName != nil:
		return truncateRunes("Sent a file: "+*msg.FileName, previewLength)
	default:
		return "Shared study content"
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (s *DirectMessageService) replyWithAI(ctx context.Context, conversationID, prompt string) string {
	recent, err := s.conversations.ListMessages(ctx, conversationID, aiContextWindow, 0)
	if err != nil {
		s.logger.Warn("load ai context failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	lines := make([]string, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		if m.Content == nil {
			continue
		}
		name := models.AISenderLabel
		if m.SenderName != nil {
			name = *m.SenderName
		}
		lines = append(lines, name+": "+*m.Content)
	}

	reply, err := s.assistant.DirectReply(ctx, lines, aiMention.ReplaceAllString(prompt, ""))
	if err != nil {
		s.logger.Warn("ai reply failed", zap.String("conversation_id", conversationID), zap.Error(err))
		reply = aiReplyFallback
	}
	aiMsg := &models.DirectMessage{ConversationID: conversationID, Content: &reply, MessageType: models.DMAIResponse}
	if err := s.conversations.CreateMessage(ctx, aiMsg, truncateRunes(reply, previewLength)); err != nil {
		s.logger.Error("store ai reply failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return ""
	}
	return aiMsg.ID
}

// DeleteMessage hard deletes the caller's own message.
func (s *DirectMessageService) DeleteMessage(ctx context.Context, messageID, userID string) error {
	msg, err := s.conversations.FindMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Message not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	if msg.SenderID == nil || *msg.SenderID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "Can only delete your own messages")
	}
	if err := s.conversations.DeleteMessage(ctx, msg.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete message")
	}
	return nil
}
