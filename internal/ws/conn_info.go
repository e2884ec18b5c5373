package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo is the handshake metadata attached to a session.
type ConnInfo struct {
	SessionID   string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newSessionID() string {
	return uuid.NewString()
}
