// Package room provides the in-memory room registry and the per-room
// broadcast groups.
//
// The room package implements:
//   - Unique 5-character room codes over [a-z0-9]
//   - Strict lookup: rooms exist only after Registry.Create
//   - Thread-safe membership with an optional occupancy cap
//   - Fan-out of envelopes to every member's bounded output channel
//   - Eviction of empty rooms and reaping of rooms that were never joined
//
// Core Types:
//
// Registry owns all live rooms and guarantees code uniqueness. Room owns the
// member set of one game session; each member is a connection id mapped to
// the channel its writer drains.
//
// Concurrency:
//
// Each Room serializes Join, Leave, Send and Broadcast behind one mutex, so
// a member that joined before a Broadcast call receives it and a member that
// left before never does. A member whose output channel is full is removed
// and its channel closed rather than blocking the broadcast. Rooms are
// independent; no operation locks two rooms.
//
// Usage:
//
//	registry := room.NewRegistry(room.WithMaxMembers(8))
//
//	r, err := registry.Create()
//	if err != nil {
//		return err
//	}
//
//	out := make(chan []byte, 64)
//	if _, err := registry.Join(r.Code(), uuid.New(), out); err != nil {
//		return err
//	}
package room
