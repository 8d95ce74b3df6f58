package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
)

type memoryConversations struct {
	convs    map[string]*models.Conversation
	messages []models.DirectMessage
	previews []string
	readBy   []string
}

func newMemoryConversations() *memoryConversations {
	return &memoryConversations{convs: map[string]*models.Conversation{}}
}

func (m *memoryConversations) GetOrCreate(ctx context.Context, userID, otherID string) (*models.Conversation, error) {
	a, b := userID, otherID
	if b < a {
		a, b = b, a
	}
	id := a + "-" + b
	if c, ok := m.convs[id]; ok {
		return c, nil
	}
	c := &models.Conversation{ID: id, UserA: a, UserB: b}
	m.convs[id] = c
	return c, nil
}

func (m *memoryConversations) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	if c, ok := m.convs[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memoryConversations) ListForUser(ctx context.Context, userID string) ([]models.ConversationListItem, error) {
	return nil, nil
}

// ListMessages returns newest first.
func (m *memoryConversations) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.DirectMessage, error) {
	var out []models.DirectMessage
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].ConversationID == conversationID {
			out = append(out, m.messages[i])
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryConversations) MarkRead(ctx context.Context, conversationID, readerID string) error {
	m.readBy = append(m.readBy, readerID)
	return nil
}

func (m *memoryConversations) CreateMessage(ctx context.Context, msg *models.DirectMessage, preview string) error {
	msg.ID = fmt.Sprintf("dm%d", len(m.messages)+1)
	m.messages = append(m.messages, *msg)
	m.previews = append(m.previews, preview)
	return nil
}

func (m *memoryConversations) FindMessage(ctx context.Context, id string) (*models.DirectMessage, error) {
	for _, msg := range m.messages {
		if msg.ID == id {
			cp := msg
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryConversations) DeleteMessage(ctx context.Context, id string) error {
	for i, msg := range m.messages {
		if msg.ID == id {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

type fixedFriendships map[string]bool

func (f fixedFriendships) AreFriends(ctx context.Context, userID, friendID string) (bool, error) {
	return f[userID+"|"+friendID] || f[friendID+"|"+userID], nil
}

type stubReplier struct {
	reply     string
	err       error
	gotLines  []string
	gotPrompt string
}

func (s *stubReplier) DirectReply(ctx context.Context, conversation []string, prompt string) (string, error) {
	s.gotLines, s.gotPrompt = conversation, prompt
	return s.reply, s.err
}

func newDMFixture() (*DirectMessageService, *memoryConversations, *stubReplier, *memoryObjectStore) {
	convs := newMemoryConversations()
	replier := &stubReplier{reply: "Photosynthesis turns light into sugar."}
	store := &memoryObjectStore{}
	svc := NewDirectMessageService(convs, fixedFriendships{"amy|ben": true}, replier, store, zap.NewNop())
	return svc, convs, replier, store
}

func TestDirectMessageOpenRequiresFriendship(t *testing.T) {
	svc, _, _, _ := newDMFixture()
	ctx := context.Background()

	conv, err := svc.Open(ctx, "ben", "amy")
	require.NoError(t, err)
	assert.Equal(t, "amy", conv.UserA)

	again, err := svc.Open(ctx, "amy", "ben")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	_, err = svc.Open(ctx, "amy", "cat")
	assertAppError(t, err, http.StatusForbidden, "Can only message friends")
}

func TestDirectMessageSendVariants(t *testing.T) {
	svc, convs, _, store := newDMFixture()
	ctx := context.Background()
	conv, err := svc.Open(ctx, "amy", "ben")
	require.NoError(t, err)

	_, err = svc.Send(ctx, conv.ID, "amy", dto.SendDirectMessageRequest{Content: "   "})
	assertAppError(t, err, http.StatusBadRequest, "Message must have content or a file")

	_, err = svc.Send(ctx, conv.ID, "cat", dto.SendDirectMessageRequest{Content: "hi"})
	assertAppError(t, err, http.StatusForbidden, "Access denied")

	resp, err := svc.Send(ctx, conv.ID, "amy", dto.SendDirectMessageRequest{Content: strings.Repeat("a", 150)})
	require.NoError(t, err)
	assert.Equal(t, dmMessageSuccess, resp.Message)
	assert.Nil(t, resp.AIResponseID)
	assert.Len(t, convs.previews[0], previewLength)

	_, err = svc.Send(ctx, conv.ID, "ben", dto.SendDirectMessageRequest{File: &dto.Attachment{Name: "Diagram.PNG", ContentType: "image/png", Data: []byte("png")}})
	require.NoError(t, err)
	fileMsg := convs.messages[1]
	assert.Equal(t, models.DMImage, fileMsg.MessageType)
	require.NotNil(t, fileMsg.FileURL)
	assert.True(t, strings.HasSuffix(*fileMsg.FileURL, ".png"))
	assert.Equal(t, "Sent a file: Diagram.PNG", convs.previews[1])
	assert.Len(t, store.objects, 1)

	shared := json.RawMessage(`{"type":"flashcards","session_id":"s1"}`)
	_, err = svc.Send(ctx, conv.ID, "amy", dto.SendDirectMessageRequest{SharedContent: shared})
	require.NoError(t, err)
	assert.Equal(t, models.DMSharedContent, convs.messages[2].MessageType)
	assert.Equal(t, "Shared study content", convs.previews[2])

	_, err = svc.Send(ctx, conv.ID, "amy", dto.SendDirectMessageRequest{SharedContent: json.RawMessage(`{"type":"homework"}`)})
	assertAppError(t, err, http.StatusBadRequest, "Invalid shared content type")
}

func TestDirectMessageAIMention(t *testing.T) {
	svc, convs, replier, _ := newDMFixture()
	ctx := context.Background()
	conv, err := svc.Open(ctx, "amy", "ben")
	require.NoError(t, err)

	_, err = svc.Send(ctx, conv.ID, "ben", dto.SendDirectMessageRequest{Content: "Studying biology tonight"})
	require.NoError(t, err)
	convs.messages[0].SenderName = strPtr("Ben")

	resp, err := svc.Send(ctx, conv.ID, "amy", dto.SendDirectMessageRequest{Content: "@AI explain photosynthesis"})
	require.NoError(t, err)
	require.NotNil(t, resp.AIResponseID)
	assert.Equal(t, " explain photosynthesis", replier.gotPrompt)
	assert.Equal(t, "Ben: Studying biology tonight", replier.gotLines[0])

	aiMsg := convs.messages[len(convs.messages)-1]
	assert.Equal(t, models.DMAIResponse, aiMsg.MessageType)
	assert.Nil(t, aiMsg.SenderID)

	replier.err = errors.New("llm down")
	_, err = svc.Send(ctx, conv.ID, "amy", dto.SendDirectMessageRequest{Content: "hey @ai?"})
	require.NoError(t, err)
	assert.Equal(t, aiReplyFallback, *convs.messages[len(convs.messages)-1].Content)

	_, err = svc.Send(ctx, conv.ID, "amy", dto.SendDirectMessageRequest{Content: "email me at said@aischool.org"})
	require.NoError(t, err)
	assert.Equal(t, models.DMText, convs.messages[len(convs.messages)-1].MessageType)
}

func TestDirectMessageListingAndDelete(t *testing.T) {
	svc, convs, _, _ := newDMFixture()
	ctx := context.Background()
	conv, err := svc.Open(ctx, "amy", "ben")
	require.NoError(t, err)
	for _, text := range []string{"first", "second"} {
		_, err := svc.Send(ctx, conv.ID, "amy", dto.SendDirectMessageRequest{Content: text})
		require.NoError(t, err)
	}

	items, err := svc.Messages(ctx, conv.ID, "ben", 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", *items[0].Content)
	assert.False(t, items[0].IsOwnMessage)
	assert.Equal(t, []string{"ben"}, convs.readBy)

	err = svc.DeleteMessage(ctx, "dm1", "ben")
	assertAppError(t, err, http.StatusForbidden, "Can only delete your own messages")
	require.NoError(t, svc.DeleteMessage(ctx, "dm1", "amy"))
	err = svc.DeleteMessage(ctx, "dm1", "amy")
	assertAppError(t, err, http.StatusNotFound, "Message not found")
}

func strPtr(s string) *string { return &s }
