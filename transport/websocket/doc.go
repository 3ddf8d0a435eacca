// Package websocket provides the WebSocket transport for game rooms.
//
// Each connection on /ws/game?room_id=<code> gets a Client that moves through
// Connecting, Joined, Closing and Closed. On accept the client is sent a
// status envelope, then joined to the requested room. A failed join is
// reported with an error envelope followed by a policy-violation close.
//
// Once joined, the read pump decodes {"message": "..."} frames and
// broadcasts an echo envelope to the room. The write pump owns the socket
// and drains the per-connection output channel, pinging the peer to keep
// the connection alive. When the room drops a slow member it closes that
// member's channel and the write pump closes the socket.
//
// Usage:
//
//	registry := room.NewRegistry()
//	handler := websocket.NewHandler(registry, websocket.Options{EchoToSender: true}, logger)
//	router.Handle("/ws/game", handler)
package websocket
