package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peerlearn/peerlearn-api/internal/dto"
	"github.com/peerlearn/peerlearn-api/internal/models"
	"github.com/peerlearn/peerlearn-api/internal/service"
	appErrors "github.com/peerlearn/peerlearn-api/pkg/errors"
	"github.com/peerlearn/peerlearn-api/pkg/middleware/cors"
)

// Events exchanged with clients.
const (
	EventAuthenticate  = "authenticate"
	EventAuthenticated = "authenticated"
	EventError         = "error"
	EventJoinRoom      = "join_room"
	EventRoomJoined    = "room_joined"
	EventLeaveRoom     = "leave_room"
	EventUserLeft      = "user_left"
	EventSendMessage   = "send_message"
)

const (
	handshakeTimeout = 10 * time.Second
	eventTimeout     = 15 * time.Second
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

type profileLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type chatWriter interface {
	AuthorizeRoom(ctx context.Context, userID, roomID string) (*models.Room, error)
	Send(ctx context.Context, sender service.ChatSender, roomID string, req dto.SendMessageRequest) (*models.Message, error)
}

type connectionGauge interface {
	WebsocketConnected(delta int)
}

// GatewayOptions tunes the upgrader and per-connection buffers.
type GatewayOptions struct {
	AllowedOrigins []string
	SendBuffer     int
}

// Gateway upgrades authenticated HTTP requests and routes client events.
type Gateway struct {
	hub      *Hub
	tokens   tokenValidator
	users    profileLookup
	chat     chatWriter
	upgrader websocket.Upgrader
	buffer   int
	logger   *zap.Logger
	gauge    connectionGauge
}

// NewGateway wires the gateway to the hub and the shared chat service.
func NewGateway(hub *Hub, tokens tokenValidator, users profileLookup, chat chatWriter, opts GatewayOptions, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		hub:    hub,
		tokens: tokens,
		users:  users,
		chat:   chat,
		buffer: opts.SendBuffer,
		logger: logger,
	}
	g.upgrader = websocket.Upgrader{
		HandshakeTimeout: handshakeTimeout,
		CheckOrigin:      originChecker(opts.AllowedOrigins),
	}
	return g
}

// WithMetrics attaches the connection gauge.
func (g *Gateway) WithMetrics(gauge connectionGauge) *Gateway {
	g.gauge = gauge
	return g
}

func originChecker(allowed []string) func(r *http.Request) bool {
	policy := cors.NewPolicy(allowed)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || policy.Allows(origin)
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// ServeHTTP validates the token before upgrading. Rejected requests never get a session.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	claims, err := g.tokens.ValidateToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	session := Session{UserID: claims.UserID, Name: claims.Name}
	if g.users != nil {
		if user, err := g.users.FindByID(r.Context(), claims.UserID); err == nil {
			session.Name, session.Avatar = user.Name, user.Avatar
		} else {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Sugar().Warnw("websocket upgrade failed", "user_id", session.UserID, "error", err)
		return
	}

	client := newClient(conn, session, g.buffer, g.logger)
	if g.gauge != nil {
		g.gauge.WebsocketConnected(1)
	}
	g.logger.Sugar().Infow("websocket connected", "user_id", session.UserID)

	go client.writePump()
	client.Emit(EventAuthenticated, map[string]string{"status": "success", "user": session.Name})

	go func() {
		client.readPump(func(frame Frame) { g.dispatch(client, frame) })
		g.hub.Unregister(client)
		if g.gauge != nil {
			g.gauge.WebsocketConnected(-1)
		}
		g.logger.Sugar().Infow("websocket disconnected", "user_id", session.UserID)
	}()
}

type roomPayload struct {
	RoomID string `json:"room_id"`
}

type sendPayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

func (g *Gateway) dispatch(c *Client, frame Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch frame.Event {
	case EventAuthenticate:
		c.Emit(EventAuthenticated, map[string]string{"status": "success", "user": c.session.Name})
	case EventJoinRoom:
		g.joinRoom(ctx, c, frame.Data)
	case EventLeaveRoom:
		g.leaveRoom(ctx, c, frame.Data)
	case EventSendMessage:
		g.sendMessage(ctx, c, frame.Data)
	default:
		c.emitError("Unknown event")
	}
}

func (g *Gateway) joinRoom(ctx context.Context, c *Client, raw json.RawMessage) {
	var payload roomPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" {
		c.emitError("Missing room_id")
		return
	}
	if _, err := g.chat.AuthorizeRoom(ctx, c.session.UserID, payload.RoomID); err != nil {
		c.emitError(errorMessage(err))
		return
	}
	g.hub.Join(c, payload.RoomID)
	c.Emit(EventRoomJoined, map[string]string{"room_id": payload.RoomID, "user_name": c.session.Name})
}

func (g *Gateway) leaveRoom(ctx context.Context, c *Client, raw json.RawMessage) {
	var payload roomPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" {
		c.emitError("Missing room_id")
		return
	}
	if !g.hub.Leave(c, payload.RoomID) {
		return
	}
	g.hub.BroadcastToRoom(ctx, payload.RoomID, EventUserLeft, map[string]string{
		"user_name": c.session.Name,
		"room_id":   payload.RoomID,
	})
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, raw json.RawMessage) {
	var payload sendPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.RoomID == "" || strings.TrimSpace(payload.Content) == "" {
		c.emitError("Missing required fields")
		return
	}
	if c.session.UserID == "" {
		c.emitError("Not authenticated")
		return
	}
	sender := service.ChatSender{ID: c.session.UserID, Name: c.session.Name, Avatar: c.session.Avatar}
	if _, err := g.chat.Send(ctx, sender, payload.RoomID, dto.SendMessageRequest{Content: payload.Content}); err != nil {
		c.emitError(errorMessage(err))
	}
}

func errorMessage(err error) string {
	appErr := appErrors.FromError(err)
	if appErr.Status >= http.StatusInternalServerError {
		return "Internal server error"
	}
	return appErr.Message
}
