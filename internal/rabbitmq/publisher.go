package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"chat-engine/internal/observability"
	"chat-engine/internal/telemetry"
)

// ErrConnectionLost is returned once the broker connection has closed.
var ErrConnectionLost = errors.New("rabbitmq connection lost")

// Publisher publishes JSON events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP is disabled
// or the broker cannot be reached. appID is stamped on every message.
func NewPublisher(amqpURL, exchange, appID string) Publisher {
	if amqpURL == "" {
		return newNoop("empty amqp url")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return newNoop(err.Error())
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return newNoop(err.Error())
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return newNoop(err.Error())
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange, appID: appID}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	log.Printf("rabbitmq connected exchange=%s", exchange)
	return p
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	appID    string
	lost     atomic.Bool
}

// watch marks the publisher lost when the broker drops the connection.
func (p *amqpPublisher) watch(closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		log.Printf("rabbitmq connection closed: %v", err)
	}
	p.lost.Store(true)
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	if p.lost.Load() {
		return ErrConnectionLost
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	table := amqp.Table{}
	for key, value := range headers {
		table[key] = value
	}

	eventType, _ := describe(event)
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        p.appID,
		Type:         eventType,
		Timestamp:    time.Now(),
		Headers:      table,
		Body:         body,
	})
	if err != nil {
		log.Printf("rabbitmq publish failed routing_key=%s type=%s: %v", routingKey, eventType, err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	p.lost.Store(true)
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
}

func newNoop(reason string) noopPublisher {
	log.Printf("rabbitmq disabled, using noop: %s", reason)
	return noopPublisher{reason: reason}
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	eventType, name := describe(event)
	log.Printf("rabbitmq noop publish routing_key=%s type=%s name=%s request_id=%s", routingKey, eventType, name, headers["x-request-id"])
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// describe extracts the type and name of the envelopes this service publishes.
func describe(event any) (string, string) {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return envelope.EventType, envelope.Payload.Level
	case observability.EventEnvelope:
		return envelope.EventType, envelope.EventName
	default:
		return "", ""
	}
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
