// Package mcp exposes the game room REST API as Model Context Protocol tools.
//
// The Client is a thin proxy: every tool call becomes one HTTP request
// against a running server, so the same tools work from the in-process
// /mcp endpoint and from a standalone stdio process.
//
// MCP Tools:
//   - create_room: Create a room and return its code and join URL
//   - list_rooms: List live rooms with occupancy
//   - get_room: Show one room
//   - close_room: Close a room, disconnecting its members
//   - server_health: Probe /health
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
