// Package presence maintains the in-memory roster of online identities and
// the live connections that back them.
//
// An identity (the user email claimed during the online handshake) may be
// backed by any number of concurrent connections — one per browser tab or
// device. A connection id maps to at most one identity. An identity is
// online iff it has at least one registered connection; only the removal of
// its last connection is reported as a full offline transition, which is
// what callers use to decide whether to broadcast a "went offline" event.
//
// The registry is a passive structure: it never performs I/O and never
// emits events itself.
package presence

import (
	"sort"
	"sync"
)

// Entry is one (identity, connection id) pair from the roster.
type Entry struct {
	Identity string
	ConnID   string
}

// Registry indexes online identities in both directions so that lookups by
// identity (fan-out) and by connection id (teardown) are O(1).
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]map[string]struct{}
	byConn     map[string]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]map[string]struct{}),
		byConn:     make(map[string]string),
	}
}

// Register records connID as a live connection for identity. Registering the
// same pair twice is a no-op: duplicate handshakes are an expected race, not
// an error. If connID was previously registered under a different identity,
// the old pairing is replaced.
func (r *Registry) Register(identity, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byConn[connID]; ok {
		if prev == identity {
			return
		}
		r.removeLocked(prev, connID)
	}

	conns, ok := r.byIdentity[identity]
	if !ok {
		conns = make(map[string]struct{})
		r.byIdentity[identity] = conns
	}
	conns[connID] = struct{}{}
	r.byConn[connID] = identity
}

// Deregister removes connID from the roster. It reports the identity that
// owned the connection and whether this was the identity's last remaining
// connection. ok is false when connID was never registered, in which case
// nothing changes.
func (r *Registry) Deregister(connID string) (identity string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok = r.byConn[connID]
	if !ok {
		return "", false, false
	}

	r.removeLocked(identity, connID)
	_, stillOnline := r.byIdentity[identity]
	return identity, !stillOnline, true
}

func (r *Registry) removeLocked(identity, connID string) {
	delete(r.byConn, connID)
	if conns, ok := r.byIdentity[identity]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byIdentity, identity)
		}
	}
}

// ConnectionsFor returns every live connection id for identity, sorted.
// The result is nil when the identity is offline.
func (r *Registry) ConnectionsFor(identity string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.byIdentity[identity]
	if len(conns) == 0 {
		return nil
	}
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Online reports whether identity has at least one live connection.
func (r *Registry) Online(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identity]) > 0
}

// Snapshot returns the full roster ordered by identity, then connection id.
// It is a plain point-in-time enumeration used to answer a freshly connected
// client's "who is online" request.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.byConn))
	for identity, conns := range r.byIdentity {
		for connID := range conns {
			entries = append(entries, Entry{Identity: identity, ConnID: connID})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Identity != entries[j].Identity {
			return entries[i].Identity < entries[j].Identity
		}
		return entries[i].ConnID < entries[j].ConnID
	})
	return entries
}

// IdentityCount returns the number of distinct online identities.
func (r *Registry) IdentityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
