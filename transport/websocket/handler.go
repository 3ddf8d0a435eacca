package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/gameroom/game/room"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageSize = 4096
	defaultSendBuffer     = 64
)

// Rooms is the part of the registry the handler needs
type Rooms interface {
	Join(code string, id uuid.UUID, out chan<- []byte) (*room.Room, error)
}

// Options tunes connection handling
type Options struct {
	// SendBuffer is the capacity of each connection's output channel
	SendBuffer int

	// MaxMessageSize is the largest client frame accepted, in bytes
	MaxMessageSize int64

	// EchoToSender includes the sender in its own echo broadcast
	EchoToSender bool

	// AllowedOrigins restricts the Origin header. Empty allows all.
	AllowedOrigins []string
}

// Handler upgrades requests on /ws/game and runs one Client per connection
type Handler struct {
	rooms    Rooms
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
	active   atomic.Int64
}

// NewHandler creates a WebSocket handler joining clients through rooms
func NewHandler(rooms Rooms, opts Options, logger *zap.SugaredLogger) *Handler {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	h := &Handler{
		rooms:  rooms,
		opts:   opts,
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeHTTP validates the room code, upgrades the connection and starts the
// client. Malformed codes are rejected before the upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if !room.ValidCode(roomID) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "room_id parameter must match ^[a-z0-9]{5}$",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		h.logger.Warnw("websocket upgrade failed", "room", roomID, "error", err)
		return
	}

	client := newClient(h, conn, roomID)
	client.start()
}

// Active returns the number of connections that have not reached Closed
func (h *Handler) Active() int {
	return int(h.active.Load())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		// Not a browser
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
