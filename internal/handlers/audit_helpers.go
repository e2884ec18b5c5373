package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"chat-engine/internal/middleware"
	"chat-engine/internal/observability"
	"chat-engine/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader(observability.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// auditRecord describes an action by the authenticated caller.
func auditRecord(c *gin.Context, action string, chatID int, text string) telemetry.AuditRecord {
	return telemetry.AuditRecord{
		Level:     telemetry.LevelInfo,
		Action:    action,
		Text:      text,
		RequestID: requestIDFromContext(c),
		UserID:    c.GetInt(middleware.UserIDKey),
		ChatID:    chatID,
	}
}

func eventHeaders(c *gin.Context) map[string]string {
	traceID := ""
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return observability.BuildHeaders(requestIDFromContext(c), traceID)
}

// publishChatEvent sends a chat domain event; failures are counted, not returned.
func publishChatEvent(c *gin.Context, name string, ev observability.ChatEvent) {
	_ = observability.PublishEvent(context.WithoutCancel(c.Request.Context()), observability.RoutingKeyChatEvents, observability.ChatEnvelope(name, ev), eventHeaders(c))
}
