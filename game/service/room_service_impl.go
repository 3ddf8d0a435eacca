package service

import (
	"context"
	"fmt"

	"github.com/wricardo/mcp-training/gameroom/game/room"
	"go.uber.org/zap"
)

// roomServiceImpl implements the RoomService interface
type roomServiceImpl struct {
	rooms  RoomManager
	logger *zap.SugaredLogger
}

// NewRoomService creates a new room service instance
func NewRoomService(rooms RoomManager, logger *zap.SugaredLogger) RoomService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &roomServiceImpl{
		rooms:  rooms,
		logger: logger,
	}
}

// CreateRoom creates a room under a fresh code
func (s *roomServiceImpl) CreateRoom(ctx context.Context) (*RoomInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := s.rooms.Create()
	if err != nil {
		s.logger.Errorw("room creation failed", "error", err)
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return NewRoomInfo(r), nil
}

// GetRoom returns a live room by code
func (s *roomServiceImpl) GetRoom(ctx context.Context, roomID string) (*RoomInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !room.ValidCode(roomID) {
		return nil, fmt.Errorf("%w: %q", room.ErrInvalidCode, roomID)
	}

	r, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	return NewRoomInfo(r), nil
}

// ListRooms returns all live rooms, oldest first
func (s *roomServiceImpl) ListRooms(ctx context.Context) ([]*RoomInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rooms := s.rooms.List()
	result := make([]*RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		result = append(result, NewRoomInfo(r))
	}
	return result, nil
}

// CloseRoom disconnects every member and removes the room
func (s *roomServiceImpl) CloseRoom(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !room.ValidCode(roomID) {
		return fmt.Errorf("%w: %q", room.ErrInvalidCode, roomID)
	}

	if err := s.rooms.Delete(roomID); err != nil {
		return err
	}

	s.logger.Infow("room closed", "room", roomID, "rooms", s.rooms.Count())
	return nil
}
