package realtime

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle stage of one connection session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrNotActive     = errors.New("session is not active")
	ErrBadTransition = errors.New("invalid session state transition")
)

// Session is the per-connection state machine. It owns the
// connection's room memberships; its only side effects are registry
// mutations, released exactly once when the session closes.
type Session struct {
	conn     Conn
	registry *Registry

	mu     sync.Mutex
	state  State
	userID uuid.UUID

	closeOnce sync.Once
}

// NewSession wraps a freshly accepted connection.
func NewSession(conn Conn, registry *Registry) *Session {
	return &Session{conn: conn, registry: registry, state: StateConnecting}
}

// Authenticate records the verified user and moves the session from
// connecting to authenticated.
func (s *Session) Authenticate(userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return ErrBadTransition
	}
	s.userID = userID
	s.state = StateAuthenticated
	return nil
}

// Activate moves an authenticated session into the steady state where
// join, leave, and emit events are accepted.
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated {
		return ErrBadTransition
	}
	s.state = StateActive
	return nil
}

// JoinCourse registers this connection in the course room. The lock is
// held across the registry mutation so a concurrent Close cannot slip
// between the state check and the join, leaving a closed connection as
// a room member.
func (s *Session) JoinCourse(courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrNotActive
	}
	s.registry.Join(courseID, s.conn)
	return nil
}

// LeaveCourse removes this connection from the course room.
func (s *Session) LeaveCourse(courseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrNotActive
	}
	s.registry.Leave(courseID, s.conn)
	return nil
}

// Close is terminal and idempotent: room memberships are released
// exactly once even when an explicit leave races a socket error. The
// lock covers LeaveAll so no join can land after the release.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state = StateClosed
		s.registry.LeaveAll(s.conn)
	})
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the authenticated user, or uuid.Nil before auth.
func (s *Session) UserID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// ConnID returns the wrapped connection's identifier.
func (s *Session) ConnID() string {
	return s.conn.ID()
}
