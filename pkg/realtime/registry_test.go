package realtime

import (
	"fmt"
	"sync"
	"testing"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []string
	fail   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return fmt.Errorf("connection closed")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func memberIDs(registry *Registry, room string) map[string]bool {
	ids := make(map[string]bool)
	for _, conn := range registry.MembersOf(room) {
		ids[conn.ID()] = true
	}
	return ids
}

func TestRegistry_JoinAndLeave(t *testing.T) {
	registry := NewRegistry()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")

	registry.Join("room-a", c1)
	registry.Join("room-a", c2)

	ids := memberIDs(registry, "room-a")
	if len(ids) != 2 || !ids["c1"] || !ids["c2"] {
		t.Fatalf("expected members {c1, c2}, got %v", ids)
	}

	registry.Leave("room-a", c1)
	ids = memberIDs(registry, "room-a")
	if len(ids) != 1 || ids["c1"] {
		t.Fatalf("expected only c2 after leave, got %v", ids)
	}
}

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	c1 := newFakeConn("c1")

	registry.Join("room-a", c1)
	registry.Join("room-a", c1)

	if members := registry.MembersOf("room-a"); len(members) != 1 {
		t.Fatalf("expected 1 member after duplicate join, got %d", len(members))
	}
}

func TestRegistry_LeaveUnknownIsNoop(t *testing.T) {
	registry := NewRegistry()
	c1 := newFakeConn("c1")

	registry.Leave("room-a", c1)
	registry.LeaveAll(c1)

	if members := registry.MembersOf("room-a"); len(members) != 0 {
		t.Fatalf("expected empty room, got %d members", len(members))
	}
}

func TestRegistry_MembersOfMissingRoomIsEmpty(t *testing.T) {
	registry := NewRegistry()

	if members := registry.MembersOf("never-joined"); len(members) != 0 {
		t.Fatalf("expected empty snapshot, got %d members", len(members))
	}
}

func TestRegistry_LeaveAllClearsEveryRoom(t *testing.T) {
	registry := NewRegistry()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")

	registry.Join("room-a", c1)
	registry.Join("room-b", c1)
	registry.Join("room-a", c2)

	registry.LeaveAll(c1)

	if ids := memberIDs(registry, "room-a"); ids["c1"] {
		t.Error("expected c1 removed from room-a")
	}
	if members := registry.MembersOf("room-b"); len(members) != 0 {
		t.Errorf("expected room-b empty, got %d members", len(members))
	}
	if rooms := registry.Rooms(c1); len(rooms) != 0 {
		t.Errorf("expected c1 in no rooms, got %v", rooms)
	}
	if ids := memberIDs(registry, "room-a"); !ids["c2"] {
		t.Error("expected c2 to remain in room-a")
	}
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	registry := NewRegistry()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("c%d", i))
			for j := 0; j < 100; j++ {
				registry.Join("room-a", conn)
				registry.MembersOf("room-a")
				if j%2 == 0 {
					registry.Leave("room-a", conn)
				} else {
					registry.LeaveAll(conn)
				}
			}
		}(i)
	}
	wg.Wait()

	if members := registry.MembersOf("room-a"); len(members) != 0 {
		t.Fatalf("expected empty room after all workers left, got %d members", len(members))
	}
}
