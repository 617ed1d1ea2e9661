package mcp

import "sync"

// SessionRegistry maps graph session IDs to the MCP client session that
// opened them. Populated when a client calls netgraph.open_session.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // graph session ID → client session ID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a graph session with a client session.
// A later registration for the same graph session wins.
func (r *SessionRegistry) Register(graphSessionID, clientSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[graphSessionID] = clientSessionID
}

// ClientFor returns the client watching the graph session, if any.
func (r *SessionRegistry) ClientFor(graphSessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[graphSessionID]
	return sid, ok
}

// Forget drops the mapping for one graph session.
func (r *SessionRegistry) Forget(graphSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, graphSessionID)
}

// Remove deletes all graph session mappings for the given client session.
// Called when a client disconnects.
func (r *SessionRegistry) Remove(clientSessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for gid, sid := range r.sessions {
		if sid == clientSessionID {
			delete(r.sessions, gid)
		}
	}
}

// Len returns the number of watched graph sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
