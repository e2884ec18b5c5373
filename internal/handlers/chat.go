package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/aggregator"
	"chat-engine/internal/middleware"
	"chat-engine/internal/models"
	"chat-engine/internal/observability"
	"chat-engine/internal/repositories"
	"chat-engine/internal/telemetry"
	"chat-engine/internal/ws"
)

// ChatLister produces the caller's chat summaries.
type ChatLister interface {
	ListChatsForUser(ctx context.Context, userID int) ([]models.ChatSummary, error)
}

// ChatHandler manages chat and message endpoints.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	lister      ChatLister
	broadcaster ws.Broadcaster
	audit       *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, lister ChatLister, broadcaster ws.Broadcaster, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		lister:      lister,
		broadcaster: broadcaster,
		audit:       audit,
	}
}

// ListChats returns the caller's chat summaries, newest activity first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	summaries, err := h.lister.ListChatsForUser(c.Request.Context(), userID)
	if err != nil {
		log.Printf("chats list failed user_id=%d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": aggregator.ErrAggregationFailed.Error()})
		return
	}
	if summaries == nil {
		summaries = []models.ChatSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// CreateChat stores a direct or group chat that includes the caller.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req models.NewChat
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	if !containsID(req.Members, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "creator must be a member"})
		return
	}

	chat, err := h.chatRepo.CreateChat(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("chats create failed user_id=%d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}

	h.audit.Emit(c.Request.Context(), auditRecord(c, "chat_created", chat.ID, fmt.Sprintf("chat %d created", chat.ID)))
	publishChatEvent(c, "chat_created", observability.ChatEvent{ChatID: chat.ID, UserID: userID, Count: len(chat.Members)})
	c.JSON(http.StatusCreated, chat)
}

// AddMember adds a user to a group chat. Re-adding a member changes nothing.
func (h *ChatHandler) AddMember(c *gin.Context) {
	chat, ok := h.memberChat(c)
	if !ok {
		return
	}

	var req struct {
		UserID int `json:"userId" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.chatRepo.AddChatMember(c.Request.Context(), chat.ID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repositories.ErrChatNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		}
		return
	}

	publishChatEvent(c, "member_added", observability.ChatEvent{ChatID: chat.ID, UserID: req.UserID, Count: len(updated.Members)})
	c.JSON(http.StatusOK, updated)
}

// DeleteChat removes the chat. Its messages are left in place.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chat, ok := h.memberChat(c)
	if !ok {
		return
	}

	if err := h.chatRepo.DeleteChat(c.Request.Context(), chat.ID); err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chat"})
		return
	}

	h.audit.Emit(c.Request.Context(), auditRecord(c, "chat_deleted", chat.ID, fmt.Sprintf("chat %d deleted", chat.ID)))
	publishChatEvent(c, "chat_deleted", observability.ChatEvent{ChatID: chat.ID, UserID: c.GetInt(middleware.UserIDKey)})
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// MarkSeen marks the chat's messages from others as seen by the caller and tells the room.
func (h *ChatHandler) MarkSeen(c *gin.Context) {
	chat, ok := h.memberChat(c)
	if !ok {
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	updated, err := h.messageRepo.MarkSeen(c.Request.Context(), chat.ID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark messages seen"})
		return
	}

	h.broadcaster.Broadcast(chat.ID, ws.EventSeen, ws.SeenPayload{ChatID: chat.ID, UserID: userID}, "")
	if updated > 0 {
		publishChatEvent(c, "messages_seen", observability.ChatEvent{ChatID: chat.ID, UserID: userID, Count: updated})
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// GetChatMessages returns the chat history oldest first.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	chat, ok := h.memberChat(c)
	if !ok {
		return
	}

	msgs, err := h.messageRepo.ListChatMessages(c.Request.Context(), chat.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage stores a message and fans it out to the chat room.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req struct {
		ChatID  int                `json:"chatId" binding:"required,gt=0"`
		Content string             `json:"content" binding:"required"`
		Type    models.MessageType `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt(middleware.UserIDKey)
	chat, ok := h.loadMemberChat(c, req.ChatID, userID)
	if !ok {
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), models.NewMessage{
		ChatID:   chat.ID,
		SenderID: userID,
		Content:  req.Content,
		Type:     req.Type,
	})
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.broadcaster.Broadcast(chat.ID, ws.EventMessage, msg, "")
	publishChatEvent(c, "message_created", observability.ChatEvent{ChatID: chat.ID, UserID: userID, MessageID: msg.ID})
	c.JSON(http.StatusCreated, msg)
}

// memberChat resolves :chat_id and checks the caller belongs to it, writing the error response otherwise.
func (h *ChatHandler) memberChat(c *gin.Context) (models.Chat, bool) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return models.Chat{}, false
	}
	return h.loadMemberChat(c, chatID, c.GetInt(middleware.UserIDKey))
}

func (h *ChatHandler) loadMemberChat(c *gin.Context, chatID, userID int) (models.Chat, bool) {
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return models.Chat{}, false
	}
	if !chat.HasMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return models.Chat{}, false
	}
	return chat, true
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
