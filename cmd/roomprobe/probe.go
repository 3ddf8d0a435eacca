package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/gameroom/game/protocol"
	"go.uber.org/zap"
)

// Client talks to a game room server over REST and WebSocket
type Client struct {
	baseURL string
	client  *http.Client
	dialer  *websocket.Dialer
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// CreateRoom asks the server for a new room and returns its code
func (c *Client) CreateRoom(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rooms", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create room failed: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var created struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("parse create response: %w", err)
	}
	return created.RoomID, nil
}

// Connect joins roomID and consumes the welcome status
func (c *Client) Connect(ctx context.Context, roomID string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws/game?room_id=" + roomID

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	env, err := readEnvelope(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if env.Type != protocol.TypeStatus {
		conn.Close()
		return nil, fmt.Errorf("expected status envelope, got %s: %s", env.Type, env.Message)
	}
	return conn, nil
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (protocol.Envelope, error) {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.DecodeEnvelope(data)
}

// Report is the outcome of one probe run
type Report struct {
	RoomID   string
	Clients  int
	Received []int
	Missing  map[int]string
	Elapsed  time.Duration
}

// OK reports whether every expected client saw the echo
func (r *Report) OK() bool {
	return len(r.Missing) == 0
}

func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "room %s: %d/%d clients received the echo in %s\n",
		r.RoomID, len(r.Received), len(r.Received)+len(r.Missing), r.Elapsed.Round(time.Millisecond))
	for i := 0; i < r.Clients; i++ {
		if reason, missing := r.Missing[i]; missing {
			fmt.Fprintf(&sb, "  client %d: MISSING (%s)\n", i, reason)
		}
	}
	return sb.String()
}

// Probe creates a room, connects clients to it, sends message from the first
// client and checks that the echo reaches the others. The sender is only
// checked when expectSender is set.
func Probe(ctx context.Context, c *Client, clients int, message string, expectSender bool, logger *zap.SugaredLogger) (*Report, error) {
	if clients < 1 {
		return nil, fmt.Errorf("need at least one client, got %d", clients)
	}
	start := time.Now()

	roomID, err := c.CreateRoom(ctx)
	if err != nil {
		return nil, err
	}
	logger.Infow("room created", "room", roomID)

	conns := make([]*websocket.Conn, 0, clients)
	defer func() {
		for _, conn := range conns {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}
	}()

	for i := 0; i < clients; i++ {
		conn, err := c.Connect(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("client %d: %w", i, err)
		}
		conns = append(conns, conn)
		logger.Debugw("client connected", "client", i)
	}

	if err := conns[0].WriteMessage(websocket.TextMessage, protocol.EncodeClient(protocol.ClientMessage{Message: message})); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	want := protocol.Echo(message, roomID)
	report := &Report{
		RoomID:  roomID,
		Clients: clients,
		Missing: make(map[int]string),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i, conn := range conns {
		if i == 0 && !expectSender {
			continue
		}

		wg.Add(1)
		go func(i int, conn *websocket.Conn) {
			defer wg.Done()
			reason := awaitEcho(ctx, conn, want)

			mu.Lock()
			defer mu.Unlock()
			if reason == "" {
				report.Received = append(report.Received, i)
			} else {
				report.Missing[i] = reason
			}
		}(i, conn)
	}
	wg.Wait()

	report.Elapsed = time.Since(start)
	logger.Infow("probe finished", "room", roomID, "received", len(report.Received), "missing", len(report.Missing))
	return report, nil
}

// awaitEcho reads until the expected echo arrives. It returns an empty string
// on success and the reason otherwise.
func awaitEcho(ctx context.Context, conn *websocket.Conn, want protocol.Envelope) string {
	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			return err.Error()
		}
		switch env.Type {
		case protocol.TypeEcho:
			if env.ClientMessage == want.ClientMessage {
				if env.ServerResponse != want.ServerResponse {
					return fmt.Sprintf("unexpected server_response %q", env.ServerResponse)
				}
				return ""
			}
		case protocol.TypeError:
			return "server error: " + env.Message
		}
	}
}
