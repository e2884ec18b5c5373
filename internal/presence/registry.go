// Package presence tracks which users are connected and who is typing where.
package presence

import (
	"errors"
	"log"
	"sort"
	"sync"

	"chat-engine/internal/observability"
)

const EventPresenceSnapshot = "presenceSnapshot"

var ErrUnknownSession = errors.New("unknown session")

// GlobalBroadcaster delivers an event to every connected session.
type GlobalBroadcaster interface {
	BroadcastGlobal(event string, payload any)
}

// Registry maps sessions to users and reference-counts live sessions per user.
// A user is online while at least one bound session is registered.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]int
	refs        map[int]int
	broadcaster GlobalBroadcaster
}

func NewRegistry(broadcaster GlobalBroadcaster) *Registry {
	return &Registry{
		sessions:    make(map[string]int),
		refs:        make(map[int]int),
		broadcaster: broadcaster,
	}
}

// RegisterSession records an unbound session. Registering twice is a no-op.
func (r *Registry) RegisterSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		r.sessions[sessionID] = 0
	}
}

// BindUser associates userID with the session and broadcasts the presence set.
// Rebinding to another user releases the previous user's reference first.
func (r *Registry) BindUser(sessionID string, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	if current != userID {
		if current != 0 {
			r.release(current)
		}
		r.sessions[sessionID] = userID
		r.refs[userID]++
		if r.refs[userID] == 1 {
			log.Printf("presence online user_id=%d", userID)
		}
	}
	r.publish()
	return nil
}

// UnregisterSession removes the session and reports the user it was bound to and
// whether that user went offline. Unknown or unbound sessions are a no-op.
func (r *Registry) UnregisterSession(sessionID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.sessions[sessionID]
	if !ok {
		return 0, false
	}
	delete(r.sessions, sessionID)
	if userID == 0 {
		return 0, false
	}

	offline := r.release(userID)
	if offline {
		r.publish()
	}
	return userID, offline
}

func (r *Registry) IsOnline(userID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs[userID] > 0
}

// UserOf returns the user bound to a session.
func (r *Registry) UserOf(sessionID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.sessions[sessionID]
	if !ok || userID == 0 {
		return 0, false
	}
	return userID, true
}

// Snapshot returns the online user ids in ascending order.
func (r *Registry) Snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Registry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refs)
}

func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// release drops one reference and reports whether the user went offline. Caller holds mu.
func (r *Registry) release(userID int) bool {
	r.refs[userID]--
	if r.refs[userID] > 0 {
		return false
	}
	delete(r.refs, userID)
	log.Printf("presence offline user_id=%d", userID)
	return true
}

func (r *Registry) snapshot() []int {
	ids := make([]int, 0, len(r.refs))
	for id := range r.refs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// publish broadcasts under mu so snapshots leave in mutation order.
func (r *Registry) publish() {
	ids := r.snapshot()
	observability.SetOnlineUsers(len(ids))
	if r.broadcaster != nil {
		r.broadcaster.BroadcastGlobal(EventPresenceSnapshot, ids)
	}
}
