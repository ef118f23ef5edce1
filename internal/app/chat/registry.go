/*
Package chat contains the real-time core of the direct-messaging server.

It tracks which users are online through their live connections (Registry), fans
presence snapshots out to every connection (Broadcaster), drives the
sent -> delivered -> seen lifecycle of messages (Service), and owns the websocket
client pumps that carry events to and from browsers (Client, Hub).
*/
package chat

import (
	"slices"
	"sync"
)

// Conn is a live connection handle belonging to one user.
type Conn interface {
	// ID uniquely identifies the connection.
	ID() string

	// UserID is the authenticated owner of the connection.
	UserID() string

	// Send enqueues an encoded frame without blocking.
	Send(frame []byte) error
}

// Registry maps each online user to the set of their live connections.
// A user with no connections is absent from the map.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[Conn]struct{}

	// onChange runs outside the lock whenever a user's set becomes empty or non-empty.
	onChange func()
}

// NewRegistry creates an empty registry. onChange may be nil.
func NewRegistry(onChange func()) *Registry {
	return &Registry{
		conns:    make(map[string]map[Conn]struct{}),
		onChange: onChange,
	}
}

// Register adds conn to userID's set. It is idempotent and reports whether the user came online.
func (r *Registry) Register(userID string, conn Conn) bool {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[userID] = set
	}
	set[conn] = struct{}{}
	r.mu.Unlock()

	changed := !ok
	if changed && r.onChange != nil {
		r.onChange()
	}
	return changed
}

// Unregister removes conn from userID's set, deleting the entry when it empties.
// It reports whether the user went offline. Unknown handles are ignored.
func (r *Registry) Unregister(userID string, conn Conn) bool {
	r.mu.Lock()
	changed := false
	if set, ok := r.conns[userID]; ok {
		if _, present := set[conn]; present {
			delete(set, conn)
			if len(set) == 0 {
				delete(r.conns, userID)
				changed = true
			}
		}
	}
	r.mu.Unlock()

	if changed && r.onChange != nil {
		r.onChange()
	}
	return changed
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conns[userID]
	return ok
}

// ConnectionsFor returns a snapshot of userID's connections.
func (r *Registry) ConnectionsFor(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	out := make([]Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// OnlineUserIDs returns the sorted ids of every online user.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Conn, 0, len(r.conns))
	for _, set := range r.conns {
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}
