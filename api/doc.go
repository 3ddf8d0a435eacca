// Package api provides the HTTP REST API for game rooms.
//
// Endpoints:
//
//   - GET /health - Liveness probe, plain text "ok bro"
//   - POST /rooms - Create a room, returns {"room_id": "<code>"}
//   - GET /rooms - List live rooms
//   - GET /rooms/{id} - Inspect a room
//   - DELETE /rooms/{id} - Close a room and disconnect its members
//   - GET /ws/game?room_id=<code> - WebSocket endpoint, see transport/websocket
//
// The web frontend uses trailing-slash aliases under /api/v1:
// /api/v1/health/, /api/v1/rooms/create/ and /api/v1/ws/game/.
//
// Every request passes through CORS (gorilla/handlers) and is logged with
// zap once it completes.
//
// Error Handling:
//
// Errors are returned as JSON with a matching status code:
//
//	{"error": "room not found"}
//
// Invalid room codes map to 400, unknown rooms to 404 and an exhausted code
// space to 503.
//
// Usage:
//
//	server := api.NewServer(roomService, wsHandler, api.WithLogger(logger))
//	http.ListenAndServe(":8080", server)
package api
