package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventCounter struct {
	events []string
}

func (e *eventCounter) ObserveWebsocketEvent(event string) {
	e.events = append(e.events, event)
}

func testClient(userID string, buffer int) *Client {
	return newClient(nil, Session{UserID: userID, Name: userID}, buffer, zap.NewNop())
}

func drain(c *Client) []Frame {
	var frames []Frame
	for {
		select {
		case raw := <-c.send:
			var f Frame
			_ = json.Unmarshal(raw, &f)
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestHubBroadcastReachesOnlyJoinedClients(t *testing.T) {
	counter := &eventCounter{}
	hub := NewHub(NewLocalBus(), nil).WithMetrics(counter)
	require.NoError(t, hub.Start(context.Background()))

	inRoom := testClient("a", 4)
	otherRoom := testClient("b", 4)
	hub.Join(inRoom, "room-1")
	hub.Join(otherRoom, "room-2")

	hub.BroadcastToRoom(context.Background(), "room-1", "new_message", map[string]string{"content": "hi"})

	frames := drain(inRoom)
	require.Len(t, frames, 1)
	assert.Equal(t, "new_message", frames[0].Event)
	assert.JSONEq(t, `{"content":"hi"}`, string(frames[0].Data))
	assert.Empty(t, drain(otherRoom))
	assert.Equal(t, []string{"new_message"}, counter.events)
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := NewHub(nil, nil)
	c := testClient("a", 4)

	hub.Join(c, "room-1")
	hub.Join(c, "room-1")
	assert.Equal(t, 1, hub.RoomSize("room-1"))

	assert.True(t, hub.Leave(c, "room-1"))
	assert.False(t, hub.Leave(c, "room-1"))
	assert.Equal(t, 0, hub.RoomSize("room-1"))
}

func TestHubUnregisterLeavesEveryRoom(t *testing.T) {
	hub := NewHub(nil, nil)
	c := testClient("a", 4)
	peer := testClient("b", 4)
	hub.Join(c, "room-1")
	hub.Join(c, "room-2")
	hub.Join(peer, "room-2")

	hub.Unregister(c)

	assert.Equal(t, 0, hub.RoomSize("room-1"))
	assert.Equal(t, 1, hub.RoomSize("room-2"))
}

func TestHubDropsFramesForSlowClients(t *testing.T) {
	hub := NewHub(NewLocalBus(), nil)
	require.NoError(t, hub.Start(context.Background()))
	slow := testClient("slow", 1)
	hub.Join(slow, "room-1")

	hub.BroadcastToRoom(context.Background(), "room-1", "new_message", map[string]int{"n": 1})
	hub.BroadcastToRoom(context.Background(), "room-1", "new_message", map[string]int{"n": 2})

	frames := drain(slow)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"n":1}`, string(frames[0].Data))
}

func TestClientEmitAfterCloseIsDropped(t *testing.T) {
	c := testClient("a", 2)
	close(c.done)
	assert.False(t, c.Emit("error", map[string]string{"error": "x"}))
}

func TestLocalBusRequiresStart(t *testing.T) {
	bus := NewLocalBus()
	err := bus.Publish(context.Background(), Envelope{Room: "r", Event: "e"})
	assert.Error(t, err)
}

func TestEncodeFramePassesRawJSONThrough(t *testing.T) {
	raw, err := encodeFrame("room_joined", json.RawMessage(`{"room_id":"r"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"room_joined","data":{"room_id":"r"}}`, string(raw))

	raw, err = encodeFrame("ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping"}`, string(raw))
}
