package ws

import (
	"encoding/json"

	"chat-engine/internal/models"
	"chat-engine/internal/presence"
)

// Inbound event names.
const (
	EventIdentify    = "identify"
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventTyping      = presence.EventTyping
)

// Outbound event names.
const (
	EventMessage          = "message"
	EventSeen             = "seen"
	EventError            = "error"
	EventPresenceSnapshot = presence.EventPresenceSnapshot
)

// Envelope is an inbound frame; Data is decoded according to Event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is an outbound frame.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type IdentifyPayload struct {
	UserID int `json:"userId" binding:"required,gt=0"`
}

type RoomPayload struct {
	ChatID int `json:"chatId" binding:"required,gt=0"`
}

// SendMessagePayload carries a message that was already persisted over HTTP.
type SendMessagePayload struct {
	ChatID  int             `json:"chatId" binding:"required,gt=0"`
	Message *models.Message `json:"message" binding:"required"`
}

// TypingPayload leaves UserID optional; it defaults to the bound user.
type TypingPayload struct {
	ChatID   int   `json:"chatId" binding:"required,gt=0"`
	UserID   int   `json:"userId" binding:"omitempty,gt=0"`
	IsTyping *bool `json:"isTyping" binding:"required"`
}

type SeenPayload struct {
	ChatID int `json:"chatId"`
	UserID int `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
