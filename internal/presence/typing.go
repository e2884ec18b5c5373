package presence

import (
	"sort"
	"sync"
	"time"
)

const EventTyping = "typing"

// RoomBroadcaster delivers an event to the sessions joined to a room.
type RoomBroadcaster interface {
	Broadcast(roomID int, event string, payload any, excludeSessionID string)
}

// TypingPayload is the body of a typing event.
type TypingPayload struct {
	ChatID   int  `json:"chatId"`
	UserID   int  `json:"userId"`
	IsTyping bool `json:"isTyping"`
}

// TypingState keeps per-chat typing flags that lapse after ttl.
type TypingState struct {
	mu          sync.Mutex
	chats       map[int]map[int]time.Time
	ttl         time.Duration
	now         func() time.Time
	broadcaster RoomBroadcaster
}

func NewTypingState(broadcaster RoomBroadcaster, ttl time.Duration) *TypingState {
	return &TypingState{
		chats:       make(map[int]map[int]time.Time),
		ttl:         ttl,
		now:         time.Now,
		broadcaster: broadcaster,
	}
}

// SetClock replaces the time source.
func (t *TypingState) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Set records or clears the flag and relays it to the room, skipping the sender's session.
func (t *TypingState) Set(chatID, userID int, isTyping bool, excludeSessionID string) {
	t.mu.Lock()
	if isTyping {
		users, ok := t.chats[chatID]
		if !ok {
			users = make(map[int]time.Time)
			t.chats[chatID] = users
		}
		users[userID] = t.now().Add(t.ttl)
	} else {
		t.clear(chatID, userID)
	}
	t.mu.Unlock()

	t.broadcaster.Broadcast(chatID, EventTyping, TypingPayload{ChatID: chatID, UserID: userID, IsTyping: isTyping}, excludeSessionID)
}

// Typing returns the users in chatID whose flag has not expired.
func (t *TypingState) Typing(chatID int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	ids := make([]int, 0)
	for userID, expiresAt := range t.chats[chatID] {
		if now.Before(expiresAt) {
			ids = append(ids, userID)
			continue
		}
		t.clear(chatID, userID)
	}
	sort.Ints(ids)
	return ids
}

// ClearUser drops every flag held by userID and tells each affected room.
func (t *TypingState) ClearUser(userID int) {
	t.mu.Lock()
	var cleared []int
	for chatID, users := range t.chats {
		if _, ok := users[userID]; ok {
			cleared = append(cleared, chatID)
			t.clear(chatID, userID)
		}
	}
	t.mu.Unlock()

	sort.Ints(cleared)
	for _, chatID := range cleared {
		t.broadcaster.Broadcast(chatID, EventTyping, TypingPayload{ChatID: chatID, UserID: userID, IsTyping: false}, "")
	}
}

func (t *TypingState) clear(chatID, userID int) {
	users, ok := t.chats[chatID]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.chats, chatID)
	}
}
