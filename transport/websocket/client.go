package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/gameroom/game/protocol"
	"github.com/wricardo/mcp-training/gameroom/game/room"
	"go.uber.org/zap"
)

// WelcomeMessage is the status sent right after the upgrade
const WelcomeMessage = "Welcome! Connection to game server successful."

// State is the lifecycle stage of a client connection
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one WebSocket connection. The read pump and the write pump run
// in their own goroutines; only the write pump writes once they start.
type Client struct {
	id      uuid.UUID
	roomID  string
	conn    *websocket.Conn
	send    chan []byte
	handler *Handler
	logger  *zap.SugaredLogger

	// room is set before the pumps start and never changes afterwards
	room *room.Room

	state     atomic.Int32
	closeOnce sync.Once
}

func newClient(h *Handler, conn *websocket.Conn, roomID string) *Client {
	id := uuid.New()
	c := &Client{
		id:      id,
		roomID:  roomID,
		conn:    conn,
		send:    make(chan []byte, h.opts.SendBuffer),
		handler: h,
		logger:  h.logger.With("conn", id, "room", roomID),
	}
	c.state.Store(int32(StateConnecting))
	h.active.Add(1)
	return c
}

// ID returns the connection id
func (c *Client) ID() uuid.UUID {
	return c.id
}

// State returns the current lifecycle state
func (c *Client) State() State {
	return State(c.state.Load())
}

// start greets the client, joins the room and launches the pumps
func (c *Client) start() {
	c.logger.Debugw("connection accepted", "remote", c.conn.RemoteAddr().String())

	if err := c.writeDirect(protocol.Status(WelcomeMessage)); err != nil {
		c.logger.Debugw("failed to send welcome", "error", err)
		c.close()
		return
	}

	joined, err := c.handler.rooms.Join(c.roomID, c.id, c.send)
	if err != nil {
		c.reject(err)
		return
	}

	c.room = joined
	c.state.Store(int32(StateJoined))
	c.logger.Infow("client joined", "members", joined.Len())

	go c.writePump()
	go c.readPump()
}

// reject reports a failed join to the client and closes the connection
func (c *Client) reject(err error) {
	message := "Could not join room."
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		message = "Room not found."
	case errors.Is(err, room.ErrRoomFull):
		message = "Room is full."
	}

	c.logger.Infow("join rejected", "error", err)

	if err := c.writeDirect(protocol.Error(message)); err == nil {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
	}
	c.close()
}

// close is idempotent and safe to call from either pump
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		if c.room != nil {
			c.room.Leave(c.id)
		}
		c.conn.Close()
		c.state.Store(int32(StateClosed))
		c.handler.active.Add(-1)
		c.logger.Debugw("connection closed")
	})
}

// writeDirect writes one envelope before the write pump owns the socket
func (c *Client) writeDirect(env protocol.Envelope) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, protocol.Encode(env))
}

// readPump decodes client frames and hands them to the room
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.handler.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warnw("websocket read error", "error", err)
			}
			return
		}
		c.handleMessage(messageType, data)
	}
}

func (c *Client) handleMessage(messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		c.room.Send(c.id, protocol.Error(protocol.InvalidFormatMessage))
		return
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		c.logger.Debugw("malformed client message", "error", err)
		c.room.Send(c.id, protocol.Error(protocol.InvalidFormatMessage))
		return
	}

	delivered := c.room.Broadcast(protocol.Echo(msg.Message, c.roomID), c.id, !c.handler.opts.EchoToSender)
	c.logger.Debugw("message broadcast", "bytes", len(data), "delivered", delivered)
}

// writePump drains the output channel to the socket and keeps the
// connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The room closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debugw("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
