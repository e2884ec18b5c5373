package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-engine/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

type connState int

const (
	stateUnauthenticated connState = iota
	stateIdentified
	stateTerminated
)

// Session is one live connection. Outbound frames go through a buffered queue
// drained by writePump; inbound frames are read by readPump.
type Session struct {
	id   string
	conn *websocket.Conn
	info ConnInfo
	send chan []byte
	done chan struct{}

	closeOnce    sync.Once
	finalizeOnce sync.Once

	// Touched only by the read pump goroutine.
	state      connState
	userID     int
	pinnedUser int
}

func newSession(conn *websocket.Conn, info ConnInfo, buffer int) *Session {
	if info.SessionID == "" {
		info.SessionID = newSessionID()
	}
	return &Session{
		id:         info.SessionID,
		conn:       conn,
		info:       info,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		pinnedUser: info.UserID,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Send encodes one outbound event and queues it.
func (s *Session) Send(event string, payload any) bool {
	data, err := encodeOutbound(event, payload)
	if err != nil {
		log.Printf("ws encode failed event=%s: %v", event, err)
		return false
	}
	return s.enqueue(data)
}

// enqueue never blocks; a full queue drops the frame.
func (s *Session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		observability.IncWSDropped()
		log.Printf("ws queue full, dropping frame session_id=%s", s.id)
		return false
	}
}

// Close signals writePump to send a close frame and release the connection,
// which in turn ends readPump. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// readPump feeds frames to handle until the connection fails, then runs onClose once.
func (s *Session) readPump(handle func([]byte), onClose func(reason string, abnormal bool)) {
	var (
		reason   string
		abnormal bool
	)
	defer func() {
		s.Close()
		onClose(reason, abnormal)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		reason = err.Error()
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			reason = err.Error()
			abnormal = websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if abnormal {
				log.Printf("ws read error session_id=%s: %v", s.id, err)
			}
			return
		}
		handle(raw)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("websocket write error session_id=%s: %v", s.id, err)
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func encodeOutbound(event string, payload any) ([]byte, error) {
	return json.Marshal(Outbound{Event: event, Data: payload})
}
