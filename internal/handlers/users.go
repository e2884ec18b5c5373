package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
	"chat-engine/internal/telemetry"
)

// PasswordHasher hashes and checks credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID int) (string, error)
}

// UserHandler serves registration, login and the user directory.
type UserHandler struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	audit  *telemetry.AuditEmitter
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, hasher PasswordHasher, tokens TokenIssuer, audit *telemetry.AuditEmitter) *UserHandler {
	return &UserHandler{users: users, hasher: hasher, tokens: tokens, audit: audit}
}

// Register creates an account.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Username    string `json:"username" binding:"required"`
		DisplayName string `json:"displayName"`
		Password    string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register user"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), username, displayName, hash)
	if err != nil {
		if errors.Is(err, repositories.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		log.Printf("users register failed username=%s: %v", username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register user"})
		return
	}

	h.audit.Emit(c.Request.Context(), telemetry.AuditRecord{
		Action:    "user_registered",
		Text:      fmt.Sprintf("user %d registered", user.ID),
		RequestID: requestIDFromContext(c),
		UserID:    user.ID,
	})
	c.JSON(http.StatusCreated, user.Public())
}

// Login exchanges credentials for a bearer token.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetUserByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not log in"})
		return
	}
	if !h.hasher.Verify(req.Password, user.PasswordHash) {
		h.audit.Emit(c.Request.Context(), telemetry.AuditRecord{
			Level:     telemetry.LevelWarn,
			Action:    "login_failed",
			Text:      fmt.Sprintf("bad password for user %d", user.ID),
			RequestID: requestIDFromContext(c),
			UserID:    user.ID,
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user.Public()})
}

// ListUsers returns every account without credentials.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	resp := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		resp = append(resp, u.Public())
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}
