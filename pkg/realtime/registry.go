package realtime

import (
	"sync"

	"github.com/edutech/marketplace-server-go/pkg/metrics"
)

// Conn is one live real-time connection. Implementations must be safe
// for concurrent Emit calls.
type Conn interface {
	ID() string
	Emit(event string, payload any) error
}

// Registry maps course rooms to their currently connected members.
// Rooms are lazy bags: they exist while they have members and are
// never explicitly created or destroyed.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Conn
	byConn map[string]map[string]struct{}
}

// NewRegistry constructs an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]Conn),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds a connection to a room. Idempotent.
func (r *Registry) Join(room string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		r.rooms[room] = members
	}
	members[conn.ID()] = conn

	joined, ok := r.byConn[conn.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[conn.ID()] = joined
	}
	joined[room] = struct{}{}

	metrics.SetRoomMembers(room, len(members))
}

// Leave removes a connection from a room. Idempotent.
func (r *Registry) Leave(room string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(room, conn.ID())
}

// LeaveAll removes a connection from every room it joined. Called on
// disconnect; safe to call more than once.
func (r *Registry) LeaveAll(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.byConn[conn.ID()] {
		r.removeLocked(room, conn.ID())
	}
	delete(r.byConn, conn.ID())
}

func (r *Registry) removeLocked(room, connID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
		metrics.RoomRemoved(room)
	} else {
		metrics.SetRoomMembers(room, len(members))
	}

	if joined, ok := r.byConn[connID]; ok {
		delete(joined, room)
	}
}

// MembersOf returns a snapshot of the room's members. Callers may
// perform slow per-connection sends on the result without holding any
// registry lock.
func (r *Registry) MembersOf(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	snapshot := make([]Conn, 0, len(members))
	for _, conn := range members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// Rooms returns the rooms a connection is currently in.
func (r *Registry) Rooms(conn Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.byConn[conn.ID()]
	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	return rooms
}
