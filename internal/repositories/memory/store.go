// Package memory is an in-process store used for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

// Store keeps users, chats and messages in mutex-guarded maps.
type Store struct {
	mu       sync.RWMutex
	users    map[int]models.User
	chats    map[int]models.Chat
	messages map[int]models.Message
	nextUser int
	nextChat int
	nextMsg  int
	now      func() time.Time
}

var (
	_ repositories.UserRepository    = (*Store)(nil)
	_ repositories.ChatRepository    = (*Store)(nil)
	_ repositories.MessageRepository = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[int]models.User),
		chats:    make(map[int]models.Chat),
		messages: make(map[int]models.Message),
		now:      time.Now,
	}
}

// SetClock replaces the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) CreateUser(ctx context.Context, username, displayName, passwordHash string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return models.User{}, repositories.ErrUsernameTaken
		}
	}
	s.nextUser++
	now := s.now()
	user := models.User{
		ID:           s.nextUser,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID int) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrUserNotFound
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// CreateChat stores a chat without checking for an existing direct chat between the same pair.
func (s *Store) CreateChat(ctx context.Context, req models.NewChat) (models.Chat, error) {
	req, err := req.Normalize()
	if err != nil {
		return models.Chat{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextChat++
	now := s.now()
	chat := models.Chat{
		ID:           s.nextChat,
		IsGroup:      req.IsGroup,
		Name:         req.Name,
		Members:      append([]int(nil), req.Members...),
		Admins:       append([]int{}, req.Admins...),
		GroupPicture: req.GroupPicture,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.chats[chat.ID] = chat
	return cloneChat(chat), nil
}

func (s *Store) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return cloneChat(chat), nil
}

func (s *Store) FindChatsByMember(ctx context.Context, userID int) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chats := make([]models.Chat, 0)
	for _, chat := range s.chats {
		if chat.HasMember(userID) {
			chats = append(chats, cloneChat(chat))
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
	return chats, nil
}

func (s *Store) AddChatMember(ctx context.Context, chatID int, userID int) (models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	if chat.HasMember(userID) {
		return cloneChat(chat), nil
	}
	if !chat.IsGroup {
		return models.Chat{}, fmt.Errorf("%w: members cannot be added to a direct chat", models.ErrValidation)
	}
	chat.Members = append(append([]int(nil), chat.Members...), userID)
	chat.UpdatedAt = s.now()
	s.chats[chatID] = chat
	return cloneChat(chat), nil
}

// DeleteChat drops the chat; its messages are kept.
func (s *Store) DeleteChat(ctx context.Context, chatID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chatID]; !ok {
		return repositories.ErrChatNotFound
	}
	delete(s.chats, chatID)
	return nil
}

func (s *Store) IsMember(ctx context.Context, chatID int, userID int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	return ok && chat.HasMember(userID), nil
}

func (s *Store) CreateMessage(ctx context.Context, req models.NewMessage) (models.Message, error) {
	req, err := req.Normalize()
	if err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	msg := models.Message{
		ID:        s.nextMsg,
		ChatID:    req.ChatID,
		SenderID:  req.SenderID,
		Content:   req.Content,
		Type:      req.Type,
		SeenBy:    []int{},
		CreatedAt: s.now(),
	}
	s.messages[msg.ID] = msg
	return cloneMessage(msg), nil
}

func (s *Store) ListChatMessages(ctx context.Context, chatID int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.chatMessages(chatID)
	for i := range msgs {
		msgs[i] = cloneMessage(msgs[i])
	}
	return msgs, nil
}

func (s *Store) FindLatestMessage(ctx context.Context, chatID int) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.chatMessages(chatID)
	if len(msgs) == 0 {
		return nil, nil
	}
	latest := cloneMessage(msgs[len(msgs)-1])
	return &latest, nil
}

func (s *Store) CountUnseenMessages(ctx context.Context, chatID int, userID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, msg := range s.messages {
		if msg.ChatID == chatID && msg.SenderID != userID && !msg.SeenByUser(userID) {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkSeen(ctx context.Context, chatID int, userID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for id, msg := range s.messages {
		if msg.ChatID != chatID || msg.SenderID == userID || msg.SeenByUser(userID) {
			continue
		}
		msg.SeenBy = append(append([]int(nil), msg.SeenBy...), userID)
		s.messages[id] = msg
		updated++
	}
	return updated, nil
}

// chatMessages returns the chat's messages oldest first. Caller holds mu.
func (s *Store) chatMessages(chatID int) []models.Message {
	msgs := make([]models.Message, 0)
	for _, msg := range s.messages {
		if msg.ChatID == chatID {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs
}

func cloneChat(c models.Chat) models.Chat {
	c.Members = append([]int(nil), c.Members...)
	c.Admins = append([]int{}, c.Admins...)
	return c
}

func cloneMessage(m models.Message) models.Message {
	m.SeenBy = append([]int{}, m.SeenBy...)
	return m
}
