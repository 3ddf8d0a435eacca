package room

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrRoomNotFound            = errors.New("room not found")
	ErrRoomFull                = errors.New("room is full")
	ErrRoomClosed              = errors.New("room is closed")
	ErrAlreadyJoined           = errors.New("connection already joined")
	ErrCodeGenerationExhausted = errors.New("could not generate a unique room code")
	ErrInvalidCode             = errors.New("invalid room code")
)

// DefaultMaxCodeAttempts bounds collision retries in Create
const DefaultMaxCodeAttempts = 32

// Registry owns every live room of the process. Rooms are only created
// through Create; lookups are strict and never create rooms implicitly.
//
// Lock order is registry then room. Rooms call back into the registry only
// after releasing their own lock.
type Registry struct {
	generate    CodeGenerator
	maxAttempts int
	maxMembers  int
	logger      *zap.SugaredLogger
	now         func() time.Time

	rooms map[string]*Room
	mu    sync.RWMutex
}

// Option configures a Registry
type Option func(*Registry)

// WithCodeGenerator replaces the random code generator
func WithCodeGenerator(g CodeGenerator) Option {
	return func(reg *Registry) {
		reg.generate = g
	}
}

// WithMaxCodeAttempts sets how many candidate codes Create tries
func WithMaxCodeAttempts(n int) Option {
	return func(reg *Registry) {
		if n > 0 {
			reg.maxAttempts = n
		}
	}
}

// WithMaxMembers caps room occupancy. Zero means unlimited.
func WithMaxMembers(n int) Option {
	return func(reg *Registry) {
		if n >= 0 {
			reg.maxMembers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(reg *Registry) {
		if logger != nil {
			reg.logger = logger
		}
	}
}

// WithClock overrides time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(reg *Registry) {
		if now != nil {
			reg.now = now
		}
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	reg := &Registry{
		generate:    RandomCode,
		maxAttempts: DefaultMaxCodeAttempts,
		logger:      zap.NewNop().Sugar(),
		now:         time.Now,
		rooms:       make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// Create registers a new room under a fresh code
func (reg *Registry) Create() (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for attempt := 1; attempt <= reg.maxAttempts; attempt++ {
		code, err := reg.generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate room code: %w", err)
		}
		if !ValidCode(code) {
			return nil, fmt.Errorf("%w: generator returned %q", ErrInvalidCode, code)
		}
		if _, exists := reg.rooms[code]; exists {
			reg.logger.Debugw("room code collision", "code", code, "attempt", attempt)
			continue
		}

		room := newRoom(code, reg.maxMembers, reg.now, reg.logger, reg.handleEmpty)
		reg.rooms[code] = room

		reg.logger.Infow("room created", "room", code, "rooms", len(reg.rooms))
		return room, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrCodeGenerationExhausted, reg.maxAttempts)
}

// Get returns the live room for code
func (reg *Registry) Get(code string) (*Room, error) {
	reg.mu.RLock()
	room, exists := reg.rooms[code]
	reg.mu.RUnlock()

	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Join looks up the room and adds the member to it. A room evicted between
// the lookup and the join is reported as not found.
func (reg *Registry) Join(code string, id uuid.UUID, out chan<- []byte) (*Room, error) {
	room, err := reg.Get(code)
	if err != nil {
		return nil, err
	}

	if err := room.Join(id, out); err != nil {
		if errors.Is(err, ErrRoomClosed) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// RemoveIfEmpty evicts the room when it has no members
func (reg *Registry) RemoveIfEmpty(code string) bool {
	return reg.evict(code, nil)
}

// Delete closes the room, disconnecting all of its members
func (reg *Registry) Delete(code string) error {
	reg.mu.Lock()
	room, exists := reg.rooms[code]
	if !exists {
		reg.mu.Unlock()
		return ErrRoomNotFound
	}
	delete(reg.rooms, code)
	reg.mu.Unlock()

	n := room.shutdown()
	reg.logger.Infow("room deleted", "room", code, "disconnected", n)
	return nil
}

// List returns all live rooms ordered by creation time
func (reg *Registry) List() []*Room {
	reg.mu.RLock()
	result := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		result = append(result, room)
	}
	reg.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].createdAt.Equal(result[j].createdAt) {
			return result[i].code < result[j].code
		}
		return result[i].createdAt.Before(result[j].createdAt)
	})
	return result
}

// Count returns the number of live rooms
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// CleanupIdleRooms evicts rooms that have been empty for longer than maxIdle.
// This catches rooms that were created but never joined.
func (reg *Registry) CleanupIdleRooms(maxIdle time.Duration) int {
	cutoff := reg.now().Add(-maxIdle)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	removed := 0
	for code, room := range reg.rooms {
		if room.retire(cutoff) {
			delete(reg.rooms, code)
			removed++
		}
	}

	if removed > 0 {
		reg.logger.Infow("idle rooms removed", "removed", removed, "rooms", len(reg.rooms))
	}
	return removed
}

// Close shuts down every room. The registry stays usable afterwards.
func (reg *Registry) Close() {
	reg.mu.Lock()
	rooms := reg.rooms
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	disconnected := 0
	for _, room := range rooms {
		disconnected += room.shutdown()
	}
	reg.logger.Infow("registry closed", "rooms", len(rooms), "disconnected", disconnected)
}

func (reg *Registry) handleEmpty(room *Room) {
	reg.evict(room.code, room)
}

// evict removes the room registered under code if it is empty. When only is
// set, a different room registered under the same code is left alone.
func (reg *Registry) evict(code string, only *Room) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.rooms[code]
	if !exists || (only != nil && room != only) {
		return false
	}
	if !room.retire(time.Time{}) {
		return false
	}

	delete(reg.rooms, code)
	reg.logger.Infow("room removed", "room", code, "rooms", len(reg.rooms))
	return true
}
