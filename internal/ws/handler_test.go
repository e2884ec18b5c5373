package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-engine/internal/auth"
	"chat-engine/internal/presence"
)

type liveServer struct {
	server   *httptest.Server
	hub      *Hub
	registry *presence.Registry
	tokens   *auth.TokenManager
}

func newLiveServer(t *testing.T) *liveServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	registry := presence.NewRegistry(hub)
	typing := presence.NewTypingState(hub, time.Second)
	tokens := auth.NewTokenManager("ws-secret", time.Hour)
	handler := NewHandler(NewRouter(hub, registry, typing, nil, time.Second), tokens, 16)

	r := gin.New()
	r.GET("/ws", handler.Handle)
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Shutdown()
		server.Close()
	})
	return &liveServer{server: server, hub: hub, registry: registry, tokens: tokens}
}

func (s *liveServer) dial(t *testing.T, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var out Outbound
		require.NoError(t, conn.ReadJSON(&out))
		if out.Event == event {
			return out
		}
	}
}

func TestHandlerRejectsBadToken(t *testing.T) {
	srv := newLiveServer(t)

	_, resp, err := srv.dial(t, "?token=garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerSessionLifecycle(t *testing.T) {
	srv := newLiveServer(t)
	token, err := srv.tokens.Issue(7)
	require.NoError(t, err)

	conn, _, err := srv.dial(t, "?token="+token)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventIdentify, "data": map[string]int{"userId": 8}}))
	errFrame := readUntil(t, conn, EventError)
	assert.Equal(t, errIdentityMismatch.Error(), errFrame.Data.(map[string]any)["message"])

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventIdentify, "data": map[string]int{"userId": 7}}))
	snapshot := readUntil(t, conn, EventPresenceSnapshot)
	assert.Equal(t, []any{float64(7)}, snapshot.Data)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventJoinRoom, "data": map[string]int{"chatId": 3}}))
	require.Eventually(t, func() bool { return srv.hub.RoomSize(3) == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.hub.Broadcast(3, EventMessage, map[string]string{"content": "hello"}, "")
	msg := readUntil(t, conn, EventMessage)
	assert.Equal(t, "hello", msg.Data.(map[string]any)["content"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !srv.registry.IsOnline(7) }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, srv.hub.RoomSize(3))
	assert.Zero(t, srv.hub.SessionCount())
}

func TestHandlerShutdownSendsCloseFrame(t *testing.T) {
	srv := newLiveServer(t)
	conn, _, err := srv.dial(t, "")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"event": EventIdentify, "data": map[string]int{"userId": 4}}))
	readUntil(t, conn, EventPresenceSnapshot)

	srv.hub.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var closeErr *websocket.CloseError
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		require.ErrorAs(t, err, &closeErr)
		break
	}
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	require.Eventually(t, func() bool { return srv.hub.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, srv.registry.IsOnline(4))
}
