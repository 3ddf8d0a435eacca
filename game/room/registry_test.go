package room

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// sequence returns a generator yielding codes in order, then repeating the last one
func sequence(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}

func TestRegistry_CreateUniqueCodes(t *testing.T) {
	reg := NewRegistry()
	const n = 2000

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		r, err := reg.Create()
		if err != nil {
			t.Fatalf("Create #%d failed: %v", i, err)
		}
		if !ValidCode(r.Code()) {
			t.Fatalf("Invalid code %q", r.Code())
		}
		if seen[r.Code()] {
			t.Fatalf("Duplicate code %q after %d creates", r.Code(), i)
		}
		seen[r.Code()] = true
	}

	if reg.Count() != n {
		t.Errorf("Expected %d rooms, got %d", n, reg.Count())
	}
}

func TestRegistry_CreateConcurrent(t *testing.T) {
	// A tiny code space forces collisions between goroutines
	codes := []string{"aaaaa", "bbbbb", "ccccc", "ddddd"}
	var mu sync.Mutex
	i := 0
	gen := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i%len(codes)]
		i++
		return code, nil
	}
	reg := NewRegistry(WithCodeGenerator(gen), WithMaxCodeAttempts(100))

	var wg sync.WaitGroup
	results := make(chan string, len(codes))
	for g := 0; g < len(codes); g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := reg.Create()
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			results <- r.Code()
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for code := range results {
		if seen[code] {
			t.Errorf("Code %q issued twice", code)
		}
		seen[code] = true
	}
	if len(seen) != len(codes) {
		t.Errorf("Expected %d distinct codes, got %d", len(codes), len(seen))
	}
}

func TestRegistry_CreateRetriesOnCollision(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(sequence("abc12", "abc12", "xyz99")))

	first := createRoom(t, reg)
	second := createRoom(t, reg)

	if first.Code() != "abc12" {
		t.Errorf("Expected first code abc12, got %s", first.Code())
	}
	if second.Code() != "xyz99" {
		t.Errorf("Expected collision retry to yield xyz99, got %s", second.Code())
	}
}

func TestRegistry_CreateExhausted(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(sequence("abc12")), WithMaxCodeAttempts(3))
	createRoom(t, reg)

	_, err := reg.Create()
	if !errors.Is(err, ErrCodeGenerationExhausted) {
		t.Fatalf("Expected ErrCodeGenerationExhausted, got %v", err)
	}
	if reg.Count() != 1 {
		t.Errorf("Failed create must not register a room, count=%d", reg.Count())
	}
}

func TestRegistry_CreateGeneratorErrors(t *testing.T) {
	t.Run("generator failure", func(t *testing.T) {
		boom := fmt.Errorf("entropy unavailable")
		reg := NewRegistry(WithCodeGenerator(func() (string, error) { return "", boom }))
		if _, err := reg.Create(); !errors.Is(err, boom) {
			t.Errorf("Expected wrapped generator error, got %v", err)
		}
	})

	t.Run("malformed code", func(t *testing.T) {
		reg := NewRegistry(WithCodeGenerator(sequence("NOPE!")))
		if _, err := reg.Create(); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("Expected ErrInvalidCode, got %v", err)
		}
	})
}

func TestRegistry_StrictLookup(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.Get("abc12"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound, got %v", err)
	}

	out := make(chan []byte, 1)
	if _, err := reg.Join("abc12", uuid.New(), out); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Join on unknown room should fail with ErrRoomNotFound, got %v", err)
	}
	if reg.Count() != 0 {
		t.Error("Strict lookup must not create rooms")
	}
}

func TestRegistry_JoinFull(t *testing.T) {
	reg := NewRegistry(WithMaxMembers(1))
	r := createRoom(t, reg)

	if _, err := reg.Join(r.Code(), uuid.New(), make(chan []byte, 1)); err != nil {
		t.Fatalf("First join failed: %v", err)
	}
	if _, err := reg.Join(r.Code(), uuid.New(), make(chan []byte, 1)); !errors.Is(err, ErrRoomFull) {
		t.Errorf("Expected ErrRoomFull, got %v", err)
	}
}

func TestRegistry_LeaveCleanup(t *testing.T) {
	reg := NewRegistry()
	r := createRoom(t, reg)
	code := r.Code()

	a, b := uuid.New(), uuid.New()
	if _, err := reg.Join(code, a, make(chan []byte, 1)); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if _, err := reg.Join(code, b, make(chan []byte, 1)); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	r.Leave(a)
	if _, err := reg.Get(code); err != nil {
		t.Fatalf("Room with a remaining member must stay registered: %v", err)
	}

	r.Leave(b)
	if _, err := reg.Get(code); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected room to be evicted after last leave, got %v", err)
	}
	if !r.Closed() {
		t.Error("Evicted room should be closed")
	}

	// A stale handle to the evicted room cannot be joined
	if err := r.Join(uuid.New(), make(chan []byte, 1)); !errors.Is(err, ErrRoomClosed) {
		t.Errorf("Expected ErrRoomClosed, got %v", err)
	}
}

func TestRegistry_RemoveIfEmpty(t *testing.T) {
	reg := NewRegistry()
	r := createRoom(t, reg)
	id := uuid.New()
	r.Join(id, make(chan []byte, 1))

	if reg.RemoveIfEmpty(r.Code()) {
		t.Error("Room with members must not be removed")
	}
	if reg.RemoveIfEmpty("nope0") {
		t.Error("Unknown code must report false")
	}
}

func TestRegistry_StaleRoomDoesNotEvictSuccessor(t *testing.T) {
	reg := NewRegistry(WithCodeGenerator(sequence("abc12")))
	old := createRoom(t, reg)
	if err := reg.Delete(old.Code()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	fresh := createRoom(t, reg)
	if fresh == old {
		t.Fatal("Expected a new room instance")
	}

	reg.handleEmpty(old)
	if _, err := reg.Get("abc12"); err != nil {
		t.Errorf("Successor room was evicted by a stale callback: %v", err)
	}
}

func TestRegistry_Delete(t *testing.T) {
	reg := NewRegistry()
	r := createRoom(t, reg)

	out := make(chan []byte, 1)
	if _, err := reg.Join(r.Code(), uuid.New(), out); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	if err := reg.Delete(r.Code()); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !isClosed(out) {
		t.Error("Members should be disconnected when the room is deleted")
	}
	if err := reg.Delete(r.Code()); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected ErrRoomNotFound on second delete, got %v", err)
	}
}

func TestRegistry_CleanupIdleRooms(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	reg := NewRegistry(WithClock(clock), WithCodeGenerator(sequence("aaaaa", "bbbbb", "ccccc")))

	idle := createRoom(t, reg)
	busy := createRoom(t, reg)
	busy.Join(uuid.New(), make(chan []byte, 1))

	advance(5 * time.Minute)
	recent := createRoom(t, reg)

	if removed := reg.CleanupIdleRooms(10 * time.Minute); removed != 0 {
		t.Errorf("Nothing is idle long enough yet, removed %d", removed)
	}

	advance(6 * time.Minute)
	if removed := reg.CleanupIdleRooms(10 * time.Minute); removed != 1 {
		t.Fatalf("Expected 1 idle room removed, got %d", removed)
	}

	if _, err := reg.Get(idle.Code()); !errors.Is(err, ErrRoomNotFound) {
		t.Error("Idle room should be gone")
	}
	if _, err := reg.Get(busy.Code()); err != nil {
		t.Error("Occupied room must survive cleanup")
	}
	if _, err := reg.Get(recent.Code()); err != nil {
		t.Error("Recently created room must survive cleanup")
	}
}

func TestRegistry_List(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return now.Add(time.Duration(tick) * time.Second)
	}
	reg := NewRegistry(WithClock(clock), WithCodeGenerator(sequence("ccccc", "aaaaa", "bbbbb")))

	// Creation is sequential, so the clock only runs inside Create
	createRoom(t, reg)
	createRoom(t, reg)
	createRoom(t, reg)

	rooms := reg.List()
	want := []string{"ccccc", "aaaaa", "bbbbb"}
	if len(rooms) != len(want) {
		t.Fatalf("Expected %d rooms, got %d", len(want), len(rooms))
	}
	for i, r := range rooms {
		if r.Code() != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, r.Code(), want[i])
		}
	}
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry()
	r1 := createRoom(t, reg)
	r2 := createRoom(t, reg)

	out1 := make(chan []byte, 1)
	out2 := make(chan []byte, 1)
	r1.Join(uuid.New(), out1)
	r2.Join(uuid.New(), out2)

	reg.Close()

	if reg.Count() != 0 {
		t.Errorf("Expected no rooms after Close, got %d", reg.Count())
	}
	if !isClosed(out1) || !isClosed(out2) {
		t.Error("All members should be disconnected on Close")
	}
	if !r1.Closed() || !r2.Closed() {
		t.Error("Rooms should be marked closed")
	}

	// Registry still works after Close
	createRoom(t, reg)
}
