// Package amqp publishes outbound messages, handoffs and operator incidents
// to RabbitMQ, where the chat-provider bridge and the agent desk consume them.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType classifies a published message.
type MessageType string

const (
	MessageTypeOutbound MessageType = "message.outbound"
	MessageTypeHandoff  MessageType = "session.handoff"
	MessageTypeIncident MessageType = "session.incident"
)

// Message is the envelope of every publication.
type Message struct {
	ID         string      `json:"id"`
	Type       MessageType `json:"type"`
	SessionKey string      `json:"session_key"`
	Payload    any         `json:"payload"`
	Timestamp  time.Time   `json:"timestamp"`
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher implements ports.Channel, ports.HandoffGateway and ports.OperatorQueue.
type Publisher struct {
	ch       channel
	exchange Exchange
	logger   *slog.Logger
	clock    func() time.Time
}

var (
	_ ports.Channel        = (*Publisher)(nil)
	_ ports.HandoffGateway = (*Publisher)(nil)
	_ ports.OperatorQueue  = (*Publisher)(nil)
)

type Option func(*Publisher)

func WithExchange(name Exchange) Option {
	return func(p *Publisher) {
		p.exchange = name
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher publishes on an open channel.
func NewPublisher(ch channel, opts ...Option) *Publisher {
	p := &Publisher{
		ch:       ch,
		exchange: DefaultExchange,
		logger:   logging.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send publishes content for the chat-provider bridge.
func (p *Publisher) Send(ctx context.Context, sessionKey string, content domain.Content) (domain.Receipt, error) {
	msg, err := p.publish(ctx, RoutingKeyOutbound, MessageTypeOutbound, sessionKey, content)
	if err != nil {
		return domain.Receipt{}, err
	}
	return domain.Receipt{ID: msg.ID, DeliveredAt: msg.Timestamp}, nil
}

// Transfer publishes a handoff for the agent desk.
func (p *Publisher) Transfer(ctx context.Context, sessionKey string, handoff domain.Handoff) error {
	_, err := p.publish(ctx, RoutingKeyHandoff, MessageTypeHandoff, sessionKey, handoff)
	return err
}

// Report publishes an incident for operators.
func (p *Publisher) Report(ctx context.Context, incident domain.Incident) error {
	_, err := p.publish(ctx, RoutingKeyIncident, MessageTypeIncident, incident.SessionKey, incident)
	return err
}

func (p *Publisher) publish(ctx context.Context, key RoutingKey, typ MessageType, sessionKey string, payload any) (*Message, error) {
	msg := &Message{
		ID:         uuid.New().String(),
		Type:       typ,
		SessionKey: sessionKey,
		Payload:    payload,
		Timestamp:  p.clock(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, string(p.exchange), string(key), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Type:         string(typ),
		// Consumers partition by session to keep per-user ordering.
		Headers: amqp.Table{"session_key": sessionKey},
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("publish to %s/%s: %w", p.exchange, key, err)
	}
	p.logger.Debug("published message",
		"exchange", p.exchange,
		"routing_key", key,
		"message_id", msg.ID,
		"session_key", sessionKey,
	)
	return msg, nil
}
