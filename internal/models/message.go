package models

import (
	"fmt"
	"strings"
	"time"
)

// MessageType tags the content of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// Message is a chat message. Only SeenBy changes after creation.
type Message struct {
	ID        int         `db:"id" json:"id"`
	ChatID    int         `db:"chat_id" json:"chatId"`
	SenderID  int         `db:"sender_id" json:"senderId"`
	Content   string      `db:"content" json:"content"`
	Type      MessageType `db:"type" json:"type"`
	SeenBy    []int       `db:"-" json:"seenBy"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}

// SeenByUser reports whether userID is in the seen-by set.
func (m Message) SeenByUser(userID int) bool {
	for _, id := range m.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}

// NewMessage is the send-message request.
type NewMessage struct {
	ChatID   int         `json:"chatId"`
	SenderID int         `json:"senderId"`
	Content  string      `json:"content"`
	Type     MessageType `json:"type"`
}

// Normalize defaults the type to text and rejects empty content or unknown types.
func (n NewMessage) Normalize() (NewMessage, error) {
	if n.ChatID <= 0 || n.SenderID <= 0 {
		return NewMessage{}, fmt.Errorf("%w: chat and sender are required", ErrValidation)
	}
	if strings.TrimSpace(n.Content) == "" {
		return NewMessage{}, fmt.Errorf("%w: content is required", ErrValidation)
	}
	if n.Type == "" {
		n.Type = MessageTypeText
	}
	if !n.Type.Valid() {
		return NewMessage{}, fmt.Errorf("%w: unknown message type %q", ErrValidation, n.Type)
	}
	return n, nil
}
