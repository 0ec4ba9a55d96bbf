package realtime

import (
	"io"
	"testing"

	"log/slog"
)

func newTestEngine(registry *Registry) *Engine {
	return NewEngine(registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEngine_PublishReachesEveryMemberOnce(t *testing.T) {
	registry := NewRegistry()
	engine := newTestEngine(registry)
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")

	registry.Join("room-a", c1)
	registry.Join("room-a", c2)

	engine.Publish("room-a", "newMessage", map[string]any{"content": "hello"})

	for _, conn := range []*fakeConn{c1, c2} {
		events := conn.received()
		if len(events) != 1 || events[0] != "newMessage" {
			t.Errorf("%s: expected exactly one newMessage, got %v", conn.ID(), events)
		}
	}
}

func TestEngine_PublishSkipsDepartedMembers(t *testing.T) {
	registry := NewRegistry()
	engine := newTestEngine(registry)
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")

	registry.Join("room-a", c1)
	registry.Join("room-a", c2)
	engine.Publish("room-a", "newMessage", nil)

	registry.LeaveAll(c2)
	engine.Publish("room-a", "newMessage", nil)

	if got := len(c1.received()); got != 2 {
		t.Errorf("expected c1 to receive 2 events, got %d", got)
	}
	if got := len(c2.received()); got != 1 {
		t.Errorf("expected c2 to receive 1 event, got %d", got)
	}
}

func TestEngine_PublishToEmptyRoomIsNoop(t *testing.T) {
	registry := NewRegistry()
	engine := newTestEngine(registry)

	engine.Publish("empty-room", "newMessage", nil)
}

func TestEngine_FailedPushDoesNotBlockOthers(t *testing.T) {
	registry := NewRegistry()
	engine := newTestEngine(registry)
	broken := newFakeConn("broken")
	broken.fail = true
	healthy := newFakeConn("healthy")

	registry.Join("room-a", broken)
	registry.Join("room-a", healthy)

	engine.Publish("room-a", "newMessage", nil)

	if got := len(healthy.received()); got != 1 {
		t.Errorf("expected healthy member to receive the event, got %d", got)
	}
}

func TestEngine_PublishExceptSkipsSender(t *testing.T) {
	registry := NewRegistry()
	engine := newTestEngine(registry)
	sender := newFakeConn("sender")
	other := newFakeConn("other")

	registry.Join("room-a", sender)
	registry.Join("room-a", other)

	engine.PublishExcept("room-a", "video:progress:update", map[string]any{"progress": 50}, sender.ID())

	if got := len(sender.received()); got != 0 {
		t.Errorf("expected sender to receive nothing, got %d events", got)
	}
	if got := len(other.received()); got != 1 {
		t.Errorf("expected other member to receive the event, got %d", got)
	}
}
