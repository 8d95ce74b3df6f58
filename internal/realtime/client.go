package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultSendBuffer = 100
	writeWait         = 5 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 30 * time.Second
	maxFrameSize      = 64 << 10
)

// Frame is the JSON shape of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Session is the identity bound to a connection at handshake.
type Session struct {
	UserID string
	Name   string
	Avatar *string
}

// Client wraps one websocket. All writes go through the send channel and a
// single writer goroutine.
type Client struct {
	conn    *websocket.Conn
	session Session
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	logger  *zap.Logger

	pingPeriod time.Duration
	pongWait   time.Duration
}

func newClient(conn *websocket.Conn, session Session, buffer int, logger *zap.Logger) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{
		conn:       conn,
		session:    session,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		logger:     logger,
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}
}

// Session returns the identity bound at connect.
func (c *Client) Session() Session {
	return c.session
}

// enqueue never blocks. A full buffer drops the frame.
func (c *Client) enqueue(raw []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- raw:
		return true
	default:
		c.logger.Debug("dropping realtime frame for slow client", zap.String("user_id", c.session.UserID))
		return false
	}
}

// Emit queues a single event for this client only.
func (c *Client) Emit(event string, data interface{}) bool {
	raw, err := encodeFrame(event, data)
	if err != nil {
		c.logger.Warn("encode realtime frame", zap.String("event", event), zap.Error(err))
		return false
	}
	return c.enqueue(raw)
}

func (c *Client) emitError(message string) {
	c.Emit(EventError, map[string]string{"error": message})
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case raw := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump blocks until the peer goes away or sends garbage past the read limit.
func (c *Client) readPump(handle func(Frame)) {
	defer c.Close()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read closed", zap.String("user_id", c.session.UserID), zap.Error(err))
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			c.emitError("Invalid message format")
			continue
		}
		handle(frame)
	}
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	var payload json.RawMessage
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		payload = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		payload = raw
	}
	return json.Marshal(Frame{Event: event, Data: payload})
}
