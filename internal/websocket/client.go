package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"letschat/internal/domain"
	"letschat/internal/observability"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 8192
	sendTimeout    = 5 * time.Second
)

// Frame types exchanged over the socket.
const (
	TypeHistory = "history"
	TypeMessage = "message"
	TypeError   = "error"
	TypeSend    = "send"
)

// Sender appends a message to a room and fans it out.
type Sender interface {
	Send(ctx context.Context, roomID, username, text string) (*domain.Message, error)
}

// LiveFeed is the live tail of a room, as returned by a subscription.
type LiveFeed interface {
	Next(ctx context.Context) (*domain.Message, error)
	Pending() int
	Close()
}

// Conn is the subset of *websocket.Conn the client uses.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// ClientMessage is a frame sent by the browser.
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerMessage is a frame sent to the browser. Exactly one payload field is set.
type ServerMessage struct {
	Type     string            `json:"type"`
	Messages []*domain.Message `json:"messages,omitempty"`
	Message  *domain.Message   `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Client is one browser connection bound to a room and a username.
type Client struct {
	conn     Conn
	roomID   string
	username string
	sender   Sender
	history  []*domain.Message
	live     LiveFeed

	writeMu   sync.Mutex
	closed    atomic.Bool
	ctx       context.Context
	ctxCancel context.CancelFunc
}

func NewClient(ctx context.Context, conn Conn, roomID, username string, sender Sender,
	history []*domain.Message, live LiveFeed) *Client {
	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:      conn,
		roomID:    roomID,
		username:  username,
		sender:    sender,
		history:   history,
		live:      live,
		ctx:       clientCtx,
		ctxCancel: cancel,
	}
}

// RoomID returns the room the client is attached to.
func (c *Client) RoomID() string { return c.roomID }

// Username returns the name the client posts under.
func (c *Client) Username() string { return c.username }

// Done is closed once the client has stopped.
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

// Run writes the history frame, then serves reads and live writes until either side stops.
func (c *Client) Run() {
	defer c.Close()

	if err := c.writeFrame(ServerMessage{Type: TypeHistory, Messages: nonNil(c.history)}); err != nil {
		return
	}
	c.history = nil

	go c.ReadPump()
	c.WritePump()
}

// ReadPump turns incoming "send" frames into ChatService sends.
func (c *Client) ReadPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("user", c.username),
			slog.String("room_id", c.roomID))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("user", c.username))
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("invalid message format",
			slog.String("error", err.Error()),
			slog.String("user", c.username))
		c.writeError("invalid message format")
		return
	}

	if msg.Type != TypeSend {
		c.writeError("unsupported message type: " + msg.Type)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, sendTimeout)
	defer cancel()

	// The accepted message comes back through the live feed.
	if _, err := c.sender.Send(ctx, c.roomID, c.username, msg.Text); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			c.writeError(ve.Error())
			return
		}
		slog.Error("error sending message",
			slog.String("error", err.Error()),
			slog.String("user", c.username),
			slog.String("room_id", c.roomID))
		c.writeError("message could not be stored, try again")
	}
}

// WritePump forwards live messages and keeps the connection alive with pings.
func (c *Client) WritePump() {
	defer c.Close()

	go c.pingLoop()

	for {
		msg, err := c.live.Next(c.ctx)
		if err != nil {
			if errors.Is(err, domain.ErrSlowSubscriber) {
				slog.Warn("evicting slow websocket client",
					slog.String("user", c.username),
					slog.String("room_id", c.roomID))
				c.writeError(err.Error())
			}
			_ = c.writeMessage(websocket.CloseMessage, []byte{})
			return
		}
		observability.ChatSubscriberBacklog.WithLabelValues(c.roomID).Observe(float64(c.live.Pending()))
		if err := c.writeFrame(ServerMessage{Type: TypeMessage, Message: msg}); err != nil {
			return
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) writeError(text string) {
	_ = c.writeFrame(ServerMessage{Type: TypeError, Error: text})
}

func (c *Client) writeFrame(frame ServerMessage) error {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("failed to marshal frame",
			slog.String("error", err.Error()),
			slog.String("type", frame.Type))
		return err
	}
	if err := c.writeMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	observability.WebSocketMessagesSent.WithLabelValues(c.roomID, frame.Type).Inc()
	return nil
}

// writeMessage writes a message to the WebSocket connection in a thread-safe manner
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// Close stops both pumps, releases the subscription and closes the socket.
// It is safe to call more than once.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.ctxCancel()
		c.live.Close()
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}
}

func nonNil(msgs []*domain.Message) []*domain.Message {
	if msgs == nil {
		return []*domain.Message{}
	}
	return msgs
}
