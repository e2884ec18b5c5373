package observability

import "time"

const (
	RoutingKeyWSEvents   = "ws_events.sessions"
	RoutingKeyChatEvents = "chat_events"
)

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// WSEvent describes a session lifecycle transition.
type WSEvent struct {
	Event      string `json:"event"`
	SessionID  string `json:"session_id"`
	UserID     int    `json:"user_id,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
	IP         string `json:"ip,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

// ChatEvent describes a persisted chat change.
type ChatEvent struct {
	ChatID    int `json:"chat_id"`
	UserID    int `json:"user_id"`
	MessageID int `json:"message_id,omitempty"`
	Count     int `json:"count,omitempty"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSEnvelope wraps a session lifecycle event.
func WSEnvelope(ev WSEvent) EventEnvelope {
	return EventEnvelope{EventType: "ws_events", EventName: ev.Event, Payload: ev}
}

// ChatEnvelope wraps a chat domain event.
func ChatEnvelope(name string, ev ChatEvent) EventEnvelope {
	return EventEnvelope{EventType: "chat_events", EventName: name, Payload: ev}
}
