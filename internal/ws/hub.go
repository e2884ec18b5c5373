package ws

import (
	"errors"
	"log"
	"sort"
	"sync"

	"chat-engine/internal/observability"
)

var ErrUnknownSession = errors.New("unknown session")

// Broadcaster is the fan-out hook handed to the HTTP layer.
type Broadcaster interface {
	Broadcast(roomID int, event string, payload any, excludeSessionID string)
}

// Hub maintains live sessions and the rooms they joined.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[int]map[string]*Session
	joined   map[string]map[int]struct{}

	// dispatch is the single ordering point for outbound fan-out.
	dispatch sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[int]map[string]*Session),
		joined:   make(map[string]map[int]struct{}),
	}
}

// Register adds a session with no rooms.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
	if _, ok := h.joined[s.id]; !ok {
		h.joined[s.id] = make(map[int]struct{})
	}
}

// Unregister forgets a session. Rooms should already have been left.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveAllLocked(sessionID)
	delete(h.sessions, sessionID)
	delete(h.joined, sessionID)
}

// Join subscribes a session to a room. Joining twice is a no-op.
func (h *Hub) Join(sessionID string, roomID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Session)
		h.rooms[roomID] = members
	}
	members[sessionID] = s
	h.joined[sessionID][roomID] = struct{}{}
	return nil
}

// Leave unsubscribes a session from a room.
func (h *Hub) Leave(sessionID string, roomID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sessionID, roomID)
}

// LeaveAll unsubscribes a session from every room and returns the rooms it left.
func (h *Hub) LeaveAll(sessionID string) []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveAllLocked(sessionID)
}

// Rooms returns the rooms a session has joined, ascending.
func (h *Hub) Rooms(sessionID string) []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]int, 0, len(h.joined[sessionID]))
	for roomID := range h.joined[sessionID] {
		rooms = append(rooms, roomID)
	}
	sort.Ints(rooms)
	return rooms
}

// RoomSize returns the number of sessions joined to a room.
func (h *Hub) RoomSize(roomID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast queues event for every session in roomID except excludeSessionID.
// An empty or unknown room is a no-op.
func (h *Hub) Broadcast(roomID int, event string, payload any, excludeSessionID string) {
	data, err := encodeOutbound(event, payload)
	if err != nil {
		log.Printf("ws encode failed event=%s room=%d: %v", event, roomID, err)
		return
	}

	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[roomID]))
	for id, s := range h.rooms[roomID] {
		if id != excludeSessionID {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(data)
	}
	observability.IncWSEvent("out", event)
}

// BroadcastGlobal queues event for every connected session.
func (h *Hub) BroadcastGlobal(event string, payload any) {
	data, err := encodeOutbound(event, payload)
	if err != nil {
		log.Printf("ws encode failed event=%s: %v", event, err)
		return
	}

	h.dispatch.Lock()
	defer h.dispatch.Unlock()

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(data)
	}
	observability.IncWSEvent("out", event)
}

// Shutdown closes every session; their read pumps run the disconnect path.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
	log.Printf("ws hub shutdown sessions=%d", len(sessions))
}

func (h *Hub) leaveLocked(sessionID string, roomID int) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if rooms, ok := h.joined[sessionID]; ok {
		delete(rooms, roomID)
	}
}

func (h *Hub) leaveAllLocked(sessionID string) []int {
	left := make([]int, 0, len(h.joined[sessionID]))
	for roomID := range h.joined[sessionID] {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		h.leaveLocked(sessionID, roomID)
	}
	sort.Ints(left)
	return left
}
