package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wricardo/mcp-training/gameroom/game/protocol"
	"go.uber.org/zap"
)

// Room is one broadcast group. All membership changes and broadcast
// enumeration happen under mu, so a broadcast never observes a half-applied
// join or leave.
type Room struct {
	code       string
	createdAt  time.Time
	maxMembers int
	logger     *zap.SugaredLogger
	now        func() time.Time

	// onEmpty runs after the last member is removed, outside mu
	onEmpty func(r *Room)

	mu         sync.Mutex
	members    map[uuid.UUID]chan<- []byte
	lastActive time.Time
	closed     bool
}

func newRoom(code string, maxMembers int, now func() time.Time, logger *zap.SugaredLogger, onEmpty func(*Room)) *Room {
	created := now()
	return &Room{
		code:       code,
		createdAt:  created,
		maxMembers: maxMembers,
		logger:     logger,
		now:        now,
		onEmpty:    onEmpty,
		members:    make(map[uuid.UUID]chan<- []byte),
		lastActive: created,
	}
}

// Code returns the room code
func (r *Room) Code() string {
	return r.code
}

// CreatedAt returns when the room was created
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// MaxMembers returns the occupancy cap, 0 meaning unlimited
func (r *Room) MaxMembers() int {
	return r.maxMembers
}

// Join adds a member whose messages are delivered on out. The room takes
// ownership of out and closes it when the member is removed.
func (r *Room) Join(id uuid.UUID, out chan<- []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if _, exists := r.members[id]; exists {
		return ErrAlreadyJoined
	}
	if r.maxMembers > 0 && len(r.members) >= r.maxMembers {
		return ErrRoomFull
	}

	r.members[id] = out
	r.lastActive = r.now()

	r.logger.Debugw("member joined", "room", r.code, "conn", id, "members", len(r.members))
	return nil
}

// Leave removes a member and closes its output channel. It reports whether
// the member was present; calling it twice is harmless.
func (r *Room) Leave(id uuid.UUID) bool {
	r.mu.Lock()
	removed := r.removeLocked(id)
	remaining := len(r.members)
	r.mu.Unlock()

	if !removed {
		return false
	}

	r.logger.Debugw("member left", "room", r.code, "conn", id, "members", remaining)
	if remaining == 0 {
		r.notifyEmpty()
	}
	return true
}

// Broadcast delivers env to every current member, skipping from when
// excludeSelf is set. A member whose output channel is full is dropped and
// disconnected instead of blocking the others. It returns the number of
// members the envelope was queued for.
func (r *Room) Broadcast(env protocol.Envelope, from uuid.UUID, excludeSelf bool) int {
	data := protocol.Encode(env)

	r.mu.Lock()
	delivered := 0
	var dropped []uuid.UUID
	for id, out := range r.members {
		if excludeSelf && id == from {
			continue
		}
		select {
		case out <- data:
			delivered++
		default:
			dropped = append(dropped, id)
		}
	}
	for _, id := range dropped {
		r.removeLocked(id)
	}
	remaining := len(r.members)
	r.mu.Unlock()

	for _, id := range dropped {
		r.logger.Warnw("dropping slow member", "room", r.code, "conn", id)
	}
	if len(dropped) > 0 && remaining == 0 {
		r.notifyEmpty()
	}

	return delivered
}

// Send delivers env to a single member. It returns false when the member is
// gone or its output channel is full; in the latter case the member is
// dropped like in Broadcast.
func (r *Room) Send(id uuid.UUID, env protocol.Envelope) bool {
	data := protocol.Encode(env)

	r.mu.Lock()
	out, ok := r.members[id]
	if !ok {
		r.mu.Unlock()
		return false
	}

	select {
	case out <- data:
		r.mu.Unlock()
		return true
	default:
	}

	r.removeLocked(id)
	remaining := len(r.members)
	r.mu.Unlock()

	r.logger.Warnw("dropping slow member", "room", r.code, "conn", id)
	if remaining == 0 {
		r.notifyEmpty()
	}
	return false
}

// Len returns the current number of members
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Members returns the ids of the current members
func (r *Room) Members() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// Closed reports whether the room has been evicted
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// retire marks the room closed if it has no members and, when idleSince is
// non-zero, has seen no membership activity after idleSince. Once closed,
// joins fail with ErrRoomClosed.
func (r *Room) retire(idleSince time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return true
	}
	if len(r.members) > 0 {
		return false
	}
	if !idleSince.IsZero() && r.lastActive.After(idleSince) {
		return false
	}

	r.closed = true
	return true
}

// shutdown closes the room and disconnects every member
func (r *Room) shutdown() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	n := len(r.members)
	for id := range r.members {
		r.removeLocked(id)
	}
	return n
}

func (r *Room) removeLocked(id uuid.UUID) bool {
	out, ok := r.members[id]
	if !ok {
		return false
	}
	delete(r.members, id)
	close(out)
	r.lastActive = r.now()
	return true
}

func (r *Room) notifyEmpty() {
	if r.onEmpty != nil {
		r.onEmpty(r)
	}
}
