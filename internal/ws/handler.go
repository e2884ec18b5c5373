package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"chat-engine/internal/middleware"
	"chat-engine/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests into router-driven sessions.
type Handler struct {
	router     *Router
	tokens     middleware.TokenValidator
	sendBuffer int
}

// NewHandler constructs a Handler. A nil token validator ignores handshake tokens.
func NewHandler(router *Router, tokens middleware.TokenValidator, sendBuffer int) *Handler {
	return &Handler{router: router, tokens: tokens, sendBuffer: sendBuffer}
}

// Handle upgrades the connection. A handshake token, when present, pins the identity
// the session may announce.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-engine/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	pinned := 0
	if token, ok := handshakeToken(c); ok {
		if h.tokens == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, err := h.tokens.Validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		pinned = userID
		span.SetAttributes(attribute.Int("user.id", userID))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		SessionID:   newSessionID(),
		UserID:      pinned,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.SetAttributes(attribute.String("ws.session_id", info.SessionID))

	session := newSession(conn, info, h.sendBuffer)
	h.router.Connect(session)

	observability.IncWSActive()
	observability.IncWSEvent("lifecycle", "ws_connect")
	sessionCtx := context.WithoutCancel(ctx)
	publishLifecycle(sessionCtx, info, "ws_connect", "")

	go session.writePump()
	go session.readPump(
		func(raw []byte) {
			h.router.Handle(sessionCtx, session, raw)
		},
		func(reason string, abnormal bool) {
			h.router.Disconnect(session)
			observability.DecWSActive()
			if abnormal {
				observability.IncWSEvent("lifecycle", "ws_error")
				publishLifecycle(sessionCtx, info, "ws_error", reason)
			}
			observability.IncWSEvent("lifecycle", "ws_disconnect")
			publishLifecycle(sessionCtx, info, "ws_disconnect", reason)
		},
	)
}

func handshakeToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		token, _ := middleware.BearerToken(header)
		return token, true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

func publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, observability.RoutingKeyWSEvents, observability.WSEnvelope(observability.WSEvent{
		Event:      event,
		SessionID:  info.SessionID,
		UserID:     info.UserID,
		DeviceID:   info.DeviceID,
		IP:         info.IP,
		DurationMS: duration,
		Reason:     reason,
	}), observability.BuildHeaders(info.RequestID, info.TraceID))
}
