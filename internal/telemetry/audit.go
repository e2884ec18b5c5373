package telemetry

import (
	"context"
	"log"
	"strconv"
	"time"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AuditEmitter publishes audit envelopes for chat and account changes.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

// AuditRecord is one auditable action. Zero ids are omitted from the envelope.
type AuditRecord struct {
	Level     string
	Action    string
	Text      string
	RequestID string
	UserID    int
	ChatID    int
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Action string `json:"action"`
	Text   string `json:"text"`
	ChatID int    `json:"chat_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes one audit record. A nil emitter is a no-op.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}
	if rec.Level == "" {
		rec.Level = LevelInfo
	}

	log.Printf("audit emit: level=%s action=%s request_id=%s text=%q", rec.Level, rec.Action, rec.RequestID, rec.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		Payload: AuditPayload{
			Level:  rec.Level,
			Action: rec.Action,
			Text:   rec.Text,
			ChatID: rec.ChatID,
		},
	}
	if rec.UserID != 0 {
		userID := strconv.Itoa(rec.UserID)
		envelope.UserID = &userID
	}

	headers := map[string]string{}
	if rec.RequestID != "" {
		headers["x-request-id"] = rec.RequestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		log.Printf("audit publish failed action=%s: %v", rec.Action, err)
	}
}
