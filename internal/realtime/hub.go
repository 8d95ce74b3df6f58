package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Hub tracks which local connections joined which rooms and fans bus events out to them.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	joined  map[*Client]map[string]struct{}
	bus     Bus
	logger  *zap.Logger
	metrics eventObserver
}

type eventObserver interface {
	ObserveWebsocketEvent(event string)
}

// NewHub creates a hub on top of bus. Call Start before serving connections.
func NewHub(bus Bus, logger *zap.Logger) *Hub {
	if bus == nil {
		bus = NewLocalBus()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
		bus:    bus,
		logger: logger,
	}
}

// WithMetrics attaches an event counter.
func (h *Hub) WithMetrics(m eventObserver) *Hub {
	h.metrics = m
	return h
}

// Start attaches the hub to its bus.
func (h *Hub) Start(ctx context.Context) error {
	return h.bus.Start(ctx, h.deliver)
}

// Close releases the bus subscription.
func (h *Hub) Close() error {
	return h.bus.Close()
}

// BroadcastToRoom publishes an event for every connection joined to roomID on any instance.
func (h *Hub) BroadcastToRoom(ctx context.Context, roomID, event string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("encode room event", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.bus.Publish(ctx, Envelope{Room: roomID, Event: event, Data: raw}); err != nil {
		h.logger.Error("publish room event", zap.String("room_id", roomID), zap.String("event", event), zap.Error(err))
	}
}

func (h *Hub) deliver(env Envelope) {
	raw, err := encodeFrame(env.Event, env.Data)
	if err != nil {
		h.logger.Warn("encode delivered frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[env.Room]))
	for c := range h.rooms[env.Room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(raw)
	}
	if h.metrics != nil {
		h.metrics.ObserveWebsocketEvent(env.Event)
	}
}

// Join adds c to roomID. Joining twice is a no-op.
func (h *Hub) Join(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}
	rooms, ok := h.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[c] = rooms
	}
	rooms[roomID] = struct{}{}
}

// Leave removes c from roomID and reports whether it had been joined.
func (h *Hub) Leave(c *Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(c, roomID)
}

func (h *Hub) leaveLocked(c *Client, roomID string) bool {
	members, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[c]; !ok {
		return false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, roomID)
	}
	return true
}

// Unregister drops c from every room it joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.joined[c] {
		h.leaveLocked(c, roomID)
	}
	delete(h.joined, c)
}

// RoomSize reports local connections joined to roomID.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
