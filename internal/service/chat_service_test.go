package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
)

type memoryRooms map[string]*models.Room

func (m memoryRooms) FindByID(ctx context.Context, id string) (*models.Room, error) {
	if r, ok := m[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

type memoryMembers map[string]map[string]bool

func (m memoryMembers) IsMember(ctx context.Context, classroomID, userID string) (bool, error) {
	return m[classroomID][userID], nil
}

type memoryMessages struct {
	items map[string]*models.Message
	seq   int
}

func (m *memoryMessages) Create(ctx context.Context, msg *models.Message) error {
	m.seq++
	msg.ID = fmt.Sprintf("m%02d", m.seq)
	cp := *msg
	m.items[msg.ID] = &cp
	return nil
}

func (m *memoryMessages) FindByID(ctx context.Context, id string) (*models.Message, error) {
	if msg, ok := m.items[id]; ok {
		cp := *msg
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

// ListRecent returns newest first, like the SQL query.
func (m *memoryMessages) ListRecent(ctx context.Context, roomID string, limit, skip int) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range m.items {
		if msg.RoomID == roomID && !msg.Deleted {
			out = append(out, *msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if skip >= len(out) {
		return nil, nil
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryMessages) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	if m.items[id].Deleted {
		return sql.ErrNoRows
	}
	m.items[id].Content, m.items[id].Edited, m.items[id].EditedAt = content, true, &editedAt
	return nil
}

func (m *memoryMessages) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	m.items[id].Deleted, m.items[id].DeletedAt = true, &deletedAt
	return nil
}

type blocklistGate struct{ blocked map[string]bool }

func (g blocklistGate) Check(ctx context.Context, text string) error {
	if g.blocked[text] {
		return appErrors.Clone(appErrors.ErrBadRequest, "Message content inappropriate: blocked")
	}
	return nil
}

type fixedSummarizer struct{ gotLines []string }

func (f *fixedSummarizer) SummarizeRoom(ctx context.Context, roomName string, lines []string) string {
	f.gotLines = lines
	return "notes for " + roomName
}

type broadcastRecord struct {
	room  string
	event string
	data  interface{}
}

type recordingBroadcaster struct{ events []broadcastRecord }

func (r *recordingBroadcaster) BroadcastToRoom(ctx context.Context, roomID, event string, data interface{}) {
	r.events = append(r.events, broadcastRecord{room: roomID, event: event, data: data})
}

type chatFixture struct {
	svc         *ChatService
	messages    *memoryMessages
	broadcaster *recordingBroadcaster
	summarizer  *fixedSummarizer
}

func newChatFixture() chatFixture {
	rooms := memoryRooms{"r1": {ID: "r1", ClassroomID: "c1", Name: "general"}}
	members := memoryMembers{"c1": {"alice": true, "bob": true}}
	users := &memoryUserDirectory{users: map[string]*models.User{
		"alice": {ID: "alice", Name: "Alice"},
		"bob":   {ID: "bob", Name: "Bob"},
		"eve":   {ID: "eve", Name: "Eve"},
	}}
	messages := &memoryMessages{items: map[string]*models.Message{}}
	summarizer := &fixedSummarizer{}
	gate := blocklistGate{blocked: map[string]bool{"rude words": true}}
	svc := NewChatService(messages, NewMembership(rooms, members), gate, summarizer, users, nil, zap.NewNop())
	broadcaster := &recordingBroadcaster{}
	svc.SetBroadcaster(broadcaster)
	return chatFixture{svc: svc, messages: messages, broadcaster: broadcaster, summarizer: summarizer}
}

func TestChatSendAuthorizesModeratesAndBroadcasts(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	msg, err := f.svc.Send(ctx, ChatSender{ID: "alice"}, "r1", dto.SendMessageRequest{Content: "  hello class  "})
	require.NoError(t, err)
	assert.Equal(t, "hello class", msg.Content)
	assert.Equal(t, "Alice", msg.SenderName)
	assert.Equal(t, models.ChatMessageText, msg.MessageType)
	require.Len(t, f.broadcaster.events, 1)
	assert.Equal(t, EventNewMessage, f.broadcaster.events[0].event)
	assert.Equal(t, "r1", f.broadcaster.events[0].room)

	_, err = f.svc.Send(ctx, ChatSender{ID: "eve"}, "r1", dto.SendMessageRequest{Content: "let me in"})
	assertAppError(t, err, http.StatusForbidden, "Not a member of this classroom")

	_, err = f.svc.Send(ctx, ChatSender{ID: "alice"}, "missing", dto.SendMessageRequest{Content: "hi"})
	assertAppError(t, err, http.StatusNotFound, "Room not found")

	_, err = f.svc.Send(ctx, ChatSender{ID: "bob"}, "r1", dto.SendMessageRequest{Content: "rude words"})
	assertAppError(t, err, http.StatusBadRequest, "Message content inappropriate: blocked")

	_, err = f.svc.Send(ctx, ChatSender{ID: "bob"}, "r1", dto.SendMessageRequest{Content: "   "})
	assertAppError(t, err, http.StatusBadRequest, "")

	assert.Len(t, f.messages.items, 1)
	assert.Len(t, f.broadcaster.events, 1)
}

func TestChatEditAndDeleteOwnMessagesOnly(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	msg, err := f.svc.Send(ctx, ChatSender{ID: "alice", Name: "Alice"}, "r1", dto.SendMessageRequest{Content: "draft"})
	require.NoError(t, err)

	_, err = f.svc.Edit(ctx, "bob", msg.ID, dto.SendMessageRequest{Content: "hijack"})
	assertAppError(t, err, http.StatusForbidden, "Can only edit your own messages")

	_, err = f.svc.Edit(ctx, "alice", msg.ID, dto.SendMessageRequest{Content: "rude words"})
	assertAppError(t, err, http.StatusBadRequest, "")

	edited, err := f.svc.Edit(ctx, "alice", msg.ID, dto.SendMessageRequest{Content: "final"})
	require.NoError(t, err)
	assert.True(t, edited.Edited)
	assert.NotNil(t, edited.EditedAt)
	assert.Equal(t, EventMessageEdited, f.broadcaster.events[len(f.broadcaster.events)-1].event)

	err = f.svc.Delete(ctx, "bob", msg.ID)
	assertAppError(t, err, http.StatusForbidden, "Can only delete your own messages")

	require.NoError(t, f.svc.Delete(ctx, "alice", msg.ID))
	last := f.broadcaster.events[len(f.broadcaster.events)-1]
	assert.Equal(t, EventMessageDeleted, last.event)
	assert.Equal(t, dto.MessageDeletedEvent{MessageID: msg.ID, RoomID: "r1"}, last.data)

	err = f.svc.Delete(ctx, "alice", msg.ID)
	assertAppError(t, err, http.StatusBadRequest, "Message already deleted")
	_, err = f.svc.Edit(ctx, "alice", msg.ID, dto.SendMessageRequest{Content: "again"})
	assertAppError(t, err, http.StatusBadRequest, "Cannot edit deleted message")

	got, err := f.svc.Get(ctx, "bob", msg.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)
}

func TestChatListIsChronologicalAndSkipsDeleted(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		_, err := f.svc.Send(ctx, ChatSender{ID: "alice", Name: "Alice"}, "r1", dto.SendMessageRequest{Content: text})
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Delete(ctx, "alice", "m02"))

	msgs, err := f.svc.List(ctx, "bob", "r1", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)

	msgs, err = f.svc.List(ctx, "bob", "r1", 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "three", msgs[0].Content)

	_, err = f.svc.List(ctx, "eve", "r1", 0, 0)
	assertAppError(t, err, http.StatusForbidden, "")
}

func TestChatSummarize(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	empty, err := f.svc.Summarize(ctx, "alice", "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.MessageCount)
	assert.Equal(t, "No messages to summarize in this room.", empty.Summary)

	_, err = f.svc.Send(ctx, ChatSender{ID: "alice"}, "r1", dto.SendMessageRequest{Content: "what is a limit?"})
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, ChatSender{ID: "bob"}, "r1", dto.SendMessageRequest{Content: "approaching a value"})
	require.NoError(t, err)

	summary, err := f.svc.Summarize(ctx, "bob", "r1")
	require.NoError(t, err)
	assert.Equal(t, "notes for general", summary.Summary)
	assert.Equal(t, 2, summary.MessageCount)
	assert.Equal(t, []string{"Alice: what is a limit?", "Bob: approaching a value"}, f.summarizer.gotLines)
}

func TestMembershipReadsStoreOnEveryCall(t *testing.T) {
	rooms := memoryRooms{"r1": {ID: "r1", ClassroomID: "c1"}}
	members := memoryMembers{"c1": {"alice": true}}
	m := NewMembership(rooms, members)

	_, err := m.CanAccessRoom(context.Background(), "alice", "r1")
	require.NoError(t, err)

	delete(members["c1"], "alice")
	_, err = m.CanAccessRoom(context.Background(), "alice", "r1")
	assertAppError(t, err, http.StatusForbidden, "Not a member of this classroom")
}

// deletingGate soft-deletes the message while the edit is being moderated.
type deletingGate struct {
	messages *memoryMessages
	id       string
}

func (g deletingGate) Check(ctx context.Context, text string) error {
	return g.messages.SoftDelete(ctx, g.id, time.Now())
}

func TestChatEditLosesRaceWithDelete(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	msg, err := f.svc.Send(ctx, ChatSender{ID: "alice"}, "r1", dto.SendMessageRequest{Content: "draft"})
	require.NoError(t, err)
	events := len(f.broadcaster.events)

	f.svc.moderation = deletingGate{messages: f.messages, id: msg.ID}
	_, err = f.svc.Edit(ctx, "alice", msg.ID, dto.SendMessageRequest{Content: "final"})
	assertAppError(t, err, http.StatusBadRequest, "Cannot edit deleted message")
	assert.Equal(t, "draft", f.messages.items[msg.ID].Content)
	assert.Len(t, f.broadcaster.events, events)
}
