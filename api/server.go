package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/wricardo/mcp-training/gameroom/game/room"
	"github.com/wricardo/mcp-training/gameroom/game/service"
	"go.uber.org/zap"
)

// HealthBody is the exact body served on the health endpoints
const HealthBody = "ok bro\n"

// Server represents the REST API server
type Server struct {
	service        service.RoomService
	ws             http.Handler
	router         *mux.Router
	handler        http.Handler
	logger         *zap.SugaredLogger
	allowedOrigins []string
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request and error logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAllowedOrigins restricts CORS to the given origins. Empty allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// NewServer creates a new API server. ws serves the game WebSocket endpoint
// and may be nil when only the REST surface is needed.
func NewServer(roomService service.RoomService, ws http.Handler, opts ...Option) *Server {
	s := &Server{
		service: roomService,
		ws:      ws,
		router:  mux.NewRouter(),
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	s.handler = s.wrap(s.router)
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health, with the trailing-slash alias used by the web frontend
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/health/", s.handleHealth).Methods("GET")

	// Room management
	s.router.HandleFunc("/rooms", s.handleCreateRoom).Methods("POST")
	s.router.HandleFunc("/api/v1/rooms/create/", s.handleCreateRoom).Methods("POST")
	s.router.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	s.router.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")
	s.router.HandleFunc("/rooms/{id}", s.handleCloseRoom).Methods("DELETE")

	// WebSocket
	if s.ws != nil {
		s.router.Handle("/ws/game", s.ws)
		s.router.Handle("/api/v1/ws/game/", s.ws)
	}
}

// wrap adds CORS and request logging around the router
func (s *Server) wrap(next http.Handler) http.Handler {
	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Requested-With"}),
	)

	return handlers.CustomLoggingHandler(io.Discard, cors(next), s.logRequest)
}

func (s *Server) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	s.logger.Infow("http request",
		"method", params.Request.Method,
		"path", params.URL.Path,
		"status", params.StatusCode,
		"bytes", params.Size,
		"duration", time.Since(params.TimeStamp),
		"remote", params.Request.RemoteAddr,
	)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, room.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrCodeGenerationExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, HealthBody)
}

// Room Handlers

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.CreateRoom(r.Context())
	if err != nil {
		s.logger.Errorw("create room failed", "error", err)
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"room_id": info.ID,
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.service.ListRooms(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rooms),
		"rooms": rooms,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	info, err := s.service.GetRoom(r.Context(), roomID)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleCloseRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	if err := s.service.CloseRoom(r.Context(), roomID); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Room %s closed", roomID),
	})
}
