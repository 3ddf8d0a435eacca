package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/gameroom/game/protocol"
	"github.com/wricardo/mcp-training/gameroom/game/room"
	"github.com/wricardo/mcp-training/gameroom/game/service"
	wstransport "github.com/wricardo/mcp-training/gameroom/transport/websocket"
	"go.uber.org/zap"
)

// MockRoomService implements service.RoomService for testing
type MockRoomService struct {
	CreateRoomFunc func(ctx context.Context) (*service.RoomInfo, error)
	GetRoomFunc    func(ctx context.Context, roomID string) (*service.RoomInfo, error)
	ListRoomsFunc  func(ctx context.Context) ([]*service.RoomInfo, error)
	CloseRoomFunc  func(ctx context.Context, roomID string) error
}

func (m *MockRoomService) CreateRoom(ctx context.Context) (*service.RoomInfo, error) {
	if m.CreateRoomFunc != nil {
		return m.CreateRoomFunc(ctx)
	}
	return &service.RoomInfo{ID: "abc12", CreatedAt: time.Now()}, nil
}

func (m *MockRoomService) GetRoom(ctx context.Context, roomID string) (*service.RoomInfo, error) {
	if m.GetRoomFunc != nil {
		return m.GetRoomFunc(ctx, roomID)
	}
	return &service.RoomInfo{ID: roomID, CreatedAt: time.Now()}, nil
}

func (m *MockRoomService) ListRooms(ctx context.Context) ([]*service.RoomInfo, error) {
	if m.ListRoomsFunc != nil {
		return m.ListRoomsFunc(ctx)
	}
	return []*service.RoomInfo{}, nil
}

func (m *MockRoomService) CloseRoom(ctx context.Context, roomID string) error {
	if m.CloseRoomFunc != nil {
		return m.CloseRoomFunc(ctx, roomID)
	}
	return nil
}

// Test helpers
func setupTestServer(mockService *MockRoomService, opts ...Option) *Server {
	return NewServer(mockService, nil, opts...)
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server := setupTestServer(&MockRoomService{})

	for _, path := range []string{"/health", "/api/v1/health/"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.ServeHTTP(w, httptest.NewRequest("GET", path, nil))

			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
				t.Errorf("Unexpected content type %q", ct)
			}
			if w.Body.String() != "ok bro\n" {
				t.Errorf("Unexpected body %q", w.Body.String())
			}
		})
	}
}

func TestCreateRoom(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		setupMock      func(*MockRoomService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:           "Create room",
			path:           "/rooms",
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				if ct := w.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Unexpected content type %q", ct)
				}
				var resp map[string]interface{}
				parseResponse(t, w, &resp)
				if len(resp) != 1 || resp["room_id"] != "abc12" {
					t.Errorf("Expected exactly {room_id: abc12}, got %v", resp)
				}
			},
		},
		{
			name:           "Create room via frontend alias",
			path:           "/api/v1/rooms/create/",
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Code space exhausted",
			path: "/rooms",
			setupMock: func(m *MockRoomService) {
				m.CreateRoomFunc = func(ctx context.Context) (*service.RoomInfo, error) {
					return nil, fmt.Errorf("failed to create room: %w", room.ErrCodeGenerationExhausted)
				}
			},
			expectedStatus: http.StatusServiceUnavailable,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] == "" {
					t.Error("Expected error message")
				}
			},
		},
		{
			name: "Handle service error",
			path: "/rooms",
			setupMock: func(m *MockRoomService) {
				m.CreateRoomFunc = func(ctx context.Context) (*service.RoomInfo, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]string
				parseResponse(t, w, &resp)
				if resp["error"] != "service error" {
					t.Errorf("Expected error message 'service error', got %s", resp["error"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRoomService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			server := setupTestServer(mockService)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, httptest.NewRequest("POST", tt.path, nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestCreateRoom_WrongMethod(t *testing.T) {
	server := setupTestServer(&MockRoomService{})
	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("PUT", "/rooms", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestListRooms(t *testing.T) {
	mockService := &MockRoomService{
		ListRoomsFunc: func(ctx context.Context) ([]*service.RoomInfo, error) {
			return []*service.RoomInfo{
				{ID: "aaaaa", Members: 2, MaxMembers: 8},
				{ID: "bbbbb", Members: 0, MaxMembers: 8},
			}, nil
		},
	}
	server := setupTestServer(mockService)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/rooms", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Count int                 `json:"count"`
		Rooms []*service.RoomInfo `json:"rooms"`
	}
	parseResponse(t, w, &resp)
	if resp.Count != 2 || len(resp.Rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %+v", resp)
	}
	if resp.Rooms[0].ID != "aaaaa" || resp.Rooms[0].Members != 2 {
		t.Errorf("Unexpected first room %+v", resp.Rooms[0])
	}
}

func TestGetRoom(t *testing.T) {
	tests := []struct {
		name           string
		roomID         string
		err            error
		expectedStatus int
	}{
		{"Existing room", "abc12", nil, http.StatusOK},
		{"Missing room", "zzzzz", room.ErrRoomNotFound, http.StatusNotFound},
		{"Invalid code", "BAD", fmt.Errorf("%w: %q", room.ErrInvalidCode, "BAD"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockRoomService{
				GetRoomFunc: func(ctx context.Context, roomID string) (*service.RoomInfo, error) {
					if roomID != tt.roomID {
						t.Errorf("Expected room id %s, got %s", tt.roomID, roomID)
					}
					if tt.err != nil {
						return nil, tt.err
					}
					return &service.RoomInfo{ID: roomID, Members: 1}, nil
				},
			}
			server := setupTestServer(mockService)

			w := httptest.NewRecorder()
			server.ServeHTTP(w, httptest.NewRequest("GET", "/rooms/"+tt.roomID, nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.err == nil {
				var info service.RoomInfo
				parseResponse(t, w, &info)
				if info.ID != tt.roomID {
					t.Errorf("Expected room %s, got %s", tt.roomID, info.ID)
				}
			}
		})
	}
}

func TestCloseRoom(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"Close room", nil, http.StatusOK},
		{"Missing room", room.ErrRoomNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var closed string
			mockService := &MockRoomService{
				CloseRoomFunc: func(ctx context.Context, roomID string) error {
					closed = roomID
					return tt.err
				},
			}
			server := setupTestServer(mockService)

			w := httptest.NewRecorder()
			server.ServeHTTP(w, httptest.NewRequest("DELETE", "/rooms/abc12", nil))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if closed != "abc12" {
				t.Errorf("Expected CloseRoom(abc12), got %q", closed)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantHeader string
	}{
		{"Allow all by default", nil, "https://anywhere.example.com", "*"},
		{"Allowed origin", []string{"https://play.example.com"}, "https://play.example.com", "https://play.example.com"},
		{"Disallowed origin", []string{"https://play.example.com"}, "https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(&MockRoomService{}, WithAllowedOrigins(tt.origins))

			req := httptest.NewRequest("GET", "/health", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			server.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{room.ErrInvalidCode, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", room.ErrRoomNotFound), http.StatusNotFound},
		{room.ErrCodeGenerationExhausted, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// TestEndToEnd runs the full stack: create a room over REST, join it over
// WebSocket and receive the echo.
func TestEndToEnd(t *testing.T) {
	registry := room.NewRegistry(room.WithCodeGenerator(func() (string, error) {
		return "abc12", nil
	}))
	logger := zap.NewNop().Sugar()
	roomService := service.NewRoomService(registry, logger)
	wsHandler := wstransport.NewHandler(registry, wstransport.Options{EchoToSender: true}, logger)

	ts := httptest.NewServer(NewServer(roomService, wsHandler, WithLogger(logger)))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/rooms", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /rooms failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created map[string]string
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if created["room_id"] != "abc12" {
		t.Fatalf("Expected room abc12, got %v", created)
	}

	// Both mounts join the same room; earlier connections stay open so the
	// room is not evicted in between.
	for _, path := range []string{"/ws/game", "/api/v1/ws/game/"} {
		wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + path + "?room_id=abc12"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("%s: failed to connect to WebSocket: %v", path, err)
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("%s: failed to read welcome: %v", path, err)
		}
		if string(data) != `{"type":"status","message":"Welcome! Connection to game server successful."}` {
			t.Errorf("%s: unexpected welcome %s", path, data)
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"hi"}`)); err != nil {
			t.Fatalf("%s: failed to write: %v", path, err)
		}

		_, data, err = conn.ReadMessage()
		if err != nil {
			t.Fatalf("%s: failed to read echo: %v", path, err)
		}
		want := `{"type":"echo","client_message":"hi","server_response":"Server heard: 'hi' in room 'abc12'"}`
		if string(data) != want {
			t.Errorf("%s: unexpected echo\n got: %s\nwant: %s", path, data, want)
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil || env.Type != protocol.TypeEcho {
			t.Errorf("%s: echo should decode as an echo envelope: %+v %v", path, env, err)
		}
	}
}
