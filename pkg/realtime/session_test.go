package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func activeSession(t *testing.T, registry *Registry, conn Conn) *Session {
	t.Helper()
	session := NewSession(conn, registry)
	if err := session.Authenticate(uuid.New()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if err := session.Activate(); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	return session
}

func TestSession_Lifecycle(t *testing.T) {
	registry := NewRegistry()
	session := NewSession(newFakeConn("c1"), registry)

	if session.State() != StateConnecting {
		t.Fatalf("expected connecting, got %v", session.State())
	}

	userID := uuid.New()
	if err := session.Authenticate(userID); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if session.State() != StateAuthenticated {
		t.Fatalf("expected authenticated, got %v", session.State())
	}
	if session.UserID() != userID {
		t.Errorf("expected user %v, got %v", userID, session.UserID())
	}

	if err := session.Activate(); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if session.State() != StateActive {
		t.Fatalf("expected active, got %v", session.State())
	}

	session.Close()
	if session.State() != StateClosed {
		t.Fatalf("expected closed, got %v", session.State())
	}
}

func TestSession_RejectsBadTransitions(t *testing.T) {
	registry := NewRegistry()
	session := NewSession(newFakeConn("c1"), registry)

	if err := session.Activate(); err != ErrBadTransition {
		t.Errorf("Activate() before auth: expected ErrBadTransition, got %v", err)
	}
	if err := session.JoinCourse("course-1"); err != ErrNotActive {
		t.Errorf("JoinCourse() before auth: expected ErrNotActive, got %v", err)
	}

	if err := session.Authenticate(uuid.New()); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if err := session.Authenticate(uuid.New()); err != ErrBadTransition {
		t.Errorf("second Authenticate(): expected ErrBadTransition, got %v", err)
	}
}

func TestSession_JoinLeaveDelegatesToRegistry(t *testing.T) {
	registry := NewRegistry()
	conn := newFakeConn("c1")
	session := activeSession(t, registry, conn)

	if err := session.JoinCourse("course-1"); err != nil {
		t.Fatalf("JoinCourse() error = %v", err)
	}
	if ids := memberIDs(registry, "course-1"); !ids["c1"] {
		t.Fatal("expected connection registered in course room")
	}

	if err := session.LeaveCourse("course-1"); err != nil {
		t.Fatalf("LeaveCourse() error = %v", err)
	}
	if members := registry.MembersOf("course-1"); len(members) != 0 {
		t.Fatalf("expected empty room after leave, got %d members", len(members))
	}
}

func TestSession_CloseReleasesAllRooms(t *testing.T) {
	registry := NewRegistry()
	conn := newFakeConn("c1")
	session := activeSession(t, registry, conn)

	session.JoinCourse("course-1")
	session.JoinCourse("course-2")

	session.Close()

	for _, room := range []string{"course-1", "course-2"} {
		if members := registry.MembersOf(room); len(members) != 0 {
			t.Errorf("expected %s empty after close, got %d members", room, len(members))
		}
	}

	if err := session.JoinCourse("course-3"); err != ErrNotActive {
		t.Errorf("JoinCourse() after close: expected ErrNotActive, got %v", err)
	}
}

func TestSession_CloseIsIdempotentUnderRace(t *testing.T) {
	registry := NewRegistry()
	conn := newFakeConn("c1")
	session := activeSession(t, registry, conn)
	session.JoinCourse("course-1")

	// An explicit leave racing a socket error must release memberships
	// exactly once without panicking or corrupting the registry.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session.Close()
		}()
	}
	wg.Wait()

	if session.State() != StateClosed {
		t.Fatalf("expected closed, got %v", session.State())
	}
	if members := registry.MembersOf("course-1"); len(members) != 0 {
		t.Fatalf("expected empty room, got %d members", len(members))
	}
}

func TestSession_JoinRacingCloseNeverLeavesMembership(t *testing.T) {
	// A join racing a disconnect must not re-register the connection
	// after Close released its memberships. Either the join loses and
	// returns ErrNotActive, or it wins and Close sweeps it up; a closed
	// session that is still a room member would keep receiving
	// broadcasts forever.
	for i := 0; i < 200; i++ {
		registry := NewRegistry()
		conn := newFakeConn("c1")
		session := activeSession(t, registry, conn)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			session.JoinCourse("course-1")
		}()
		go func() {
			defer wg.Done()
			session.Close()
		}()
		wg.Wait()

		if session.State() != StateClosed {
			t.Fatalf("iteration %d: expected closed, got %v", i, session.State())
		}
		if members := registry.MembersOf("course-1"); len(members) != 0 {
			t.Fatalf("iteration %d: closed session still a room member", i)
		}
		if rooms := registry.Rooms(conn); len(rooms) != 0 {
			t.Fatalf("iteration %d: closed session still tracked in %v", i, rooms)
		}
	}
}
