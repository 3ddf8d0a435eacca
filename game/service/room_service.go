package service

import (
	"context"
	"time"

	"github.com/wricardo/mcp-training/gameroom/game/room"
)

// RoomService defines the room operations exposed to the HTTP API and MCP
type RoomService interface {
	CreateRoom(ctx context.Context) (*RoomInfo, error)
	GetRoom(ctx context.Context, roomID string) (*RoomInfo, error)
	ListRooms(ctx context.Context) ([]*RoomInfo, error)
	CloseRoom(ctx context.Context, roomID string) error
}

// RoomManager defines room storage operations; *room.Registry implements it
type RoomManager interface {
	Create() (*room.Room, error)
	Get(code string) (*room.Room, error)
	List() []*room.Room
	Delete(code string) error
	Count() int
}

// RoomInfo is the read model of a live room
type RoomInfo struct {
	ID         string    `json:"room_id"`
	Members    int       `json:"members"`
	MaxMembers int       `json:"max_members"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRoomInfo snapshots a room
func NewRoomInfo(r *room.Room) *RoomInfo {
	return &RoomInfo{
		ID:         r.Code(),
		Members:    r.Len(),
		MaxMembers: r.MaxMembers(),
		CreatedAt:  r.CreatedAt(),
	}
}
