// Package rooms tracks which connections are subscribed to which
// conversation rooms.
//
// Membership is kept in a bidirectional index: room→connections for fan-out
// queries and connection→rooms so that tearing a connection out of every
// room it joined costs O(rooms of that connection), not O(all rooms). Both
// directions mutate under a single mutex, so readers never observe a
// half-updated index.
package rooms

import (
	"sort"
	"sync"
)

// Membership is the room↔connection subscription index.
type Membership struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

// NewMembership returns an empty membership index.
func NewMembership() *Membership {
	return &Membership{
		byRoom: make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join subscribes connID to roomID. Joining a room twice is a no-op.
func (m *Membership) Join(roomID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.byRoom[roomID]
	if !ok {
		members = make(map[string]struct{})
		m.byRoom[roomID] = members
	}
	members[connID] = struct{}{}

	joined, ok := m.byConn[connID]
	if !ok {
		joined = make(map[string]struct{})
		m.byConn[connID] = joined
	}
	joined[roomID] = struct{}{}
}

// Leave unsubscribes connID from roomID. Leaving a room the connection is
// not a member of is a no-op.
func (m *Membership) Leave(roomID, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(roomID, connID)
}

func (m *Membership) leaveLocked(roomID, connID string) {
	if members, ok := m.byRoom[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.byRoom, roomID)
		}
	}
	if joined, ok := m.byConn[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(m.byConn, connID)
		}
	}
}

// LeaveAll removes connID from every room it belongs to and returns the
// rooms it left, sorted. Called on connection teardown.
func (m *Membership) LeaveAll(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined := m.byConn[connID]
	if len(joined) == 0 {
		return nil
	}
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		m.leaveLocked(roomID, connID)
	}
	sort.Strings(left)
	return left
}

// MembersOf returns the connection ids subscribed to roomID, sorted.
// The result is nil for an empty or unknown room.
func (m *Membership) MembersOf(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.byRoom[roomID]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	sort.Strings(out)
	return out
}

// RoomsOf returns the rooms connID is currently subscribed to, sorted.
func (m *Membership) RoomsOf(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	joined := m.byConn[connID]
	if len(joined) == 0 {
		return nil
	}
	out := make([]string, 0, len(joined))
	for roomID := range joined {
		out = append(out, roomID)
	}
	sort.Strings(out)
	return out
}
