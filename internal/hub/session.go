package hub

import "sync"

// Session is the per-connection state fixed at authentication time. Only
// Room changes after creation, and only under the registry lock.
type Session struct {
	ConnID      string
	Username    string
	HouseholdID string
	// Room is the household room currently joined, "" before the first join.
	Room string
}

// sessionRegistry tracks live sessions keyed by connection id. It is owned
// by a Hub instance, never package state, so tests construct isolated ones.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*Session)}
}

func (r *sessionRegistry) put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ConnID] = s
}

func (r *sessionRegistry) get(connID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	return s, ok
}

func (r *sessionRegistry) remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

func (r *sessionRegistry) setRoom(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.Room = room
	}
}

// room reads the current room under the registry lock; "" when the session
// is gone or has not joined yet.
func (r *sessionRegistry) room(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		return s.Room
	}
	return ""
}
