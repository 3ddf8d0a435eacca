// Package service provides the application layer between the transports
// (HTTP, MCP) and the room registry.
//
// Core Interfaces:
//
// RoomService is the context-aware façade used by the REST API and the MCP
// bridge. RoomManager is the storage contract it needs, implemented by
// *room.Registry.
//
// The WebSocket transport does not go through this package: joining and
// broadcasting talk to the registry directly so the hot path stays a single
// lock per room.
//
// Usage:
//
//	registry := room.NewRegistry()
//	svc := service.NewRoomService(registry, logger)
//
//	info, err := svc.CreateRoom(ctx)
package service
