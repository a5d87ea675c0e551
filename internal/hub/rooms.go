package hub

import "sync"

// roomManager maps a household id to its set of live connections. Room
// membership is the sole isolation mechanism for realtime traffic: events
// go to a room, never to an ad hoc filter over all connections.
type roomManager struct {
	mu    sync.Mutex
	rooms map[string]map[string]*Client
}

func newRoomManager() *roomManager {
	return &roomManager{rooms: make(map[string]map[string]*Client)}
}

// join moves the client into the household's room, leaving any prior room.
func (m *roomManager) join(c *Client, householdID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(c)
	room, ok := m.rooms[householdID]
	if !ok {
		room = make(map[string]*Client)
		m.rooms[householdID] = room
	}
	room[c.session.ConnID] = c
}

func (m *roomManager) leave(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(c)
}

func (m *roomManager) removeLocked(c *Client) {
	for id, room := range m.rooms {
		if _, ok := room[c.session.ConnID]; ok {
			delete(room, c.session.ConnID)
			if len(room) == 0 {
				delete(m.rooms, id)
			}
		}
	}
}

// members snapshots the clients in a room so sends happen outside the lock.
func (m *roomManager) members(householdID string) []*Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	room := m.rooms[householdID]
	out := make([]*Client, 0, len(room))
	for _, c := range room {
		out = append(out, c)
	}
	return out
}
