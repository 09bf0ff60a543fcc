package amqp

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/parley/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange is the name of an exchange.
type Exchange string

// Queue is the name of a queue.
type Queue string

// RoutingKey is a routing key on the exchange.
type RoutingKey string

const DefaultExchange Exchange = "parley.events"

const (
	QueueOutbound  Queue = "parley.outbound"
	QueueHandoffs  Queue = "parley.handoffs"
	QueueIncidents Queue = "parley.incidents"
)

const (
	RoutingKeyOutbound RoutingKey = "outbound"
	RoutingKeyHandoff  RoutingKey = "handoff"
	RoutingKeyIncident RoutingKey = "incident"
)

// Bindings maps each queue to its routing key.
var Bindings = []struct {
	Queue Queue
	Key   RoutingKey
}{
	{QueueOutbound, RoutingKeyOutbound},
	{QueueHandoffs, RoutingKeyHandoff},
	{QueueIncidents, RoutingKeyIncident},
}

// SetupTopology declares the durable exchange, queues and bindings.
func SetupTopology(ch *amqp.Channel, exchange Exchange) error {
	if err := ch.ExchangeDeclare(string(exchange), "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	for _, b := range Bindings {
		if _, err := ch.QueueDeclare(string(b.Queue), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.Queue, err)
		}
		if err := ch.QueueBind(string(b.Queue), string(b.Key), string(exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.Queue, err)
		}
	}
	return nil
}

// Connection owns the AMQP connection and channel behind a Publisher.
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// Dial connects, declares the topology and returns a ready Publisher.
func Dial(url string, opts ...Option) (*Connection, *Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	pub := NewPublisher(ch, opts...)
	if err := SetupTopology(ch, pub.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	c := &Connection{conn: conn, channel: ch, logger: pub.logger}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	c.logger.Info("connected to RabbitMQ", "exchange", pub.exchange)
	return c, pub, nil
}

// IsConnected reports whether the connection is still open.
func (c *Connection) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Close closes the channel and the connection.
func (c *Connection) Close() error {
	var errs []error
	if err := c.channel.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}
	if err := c.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close connection: %w", err))
	}
	return errors.Join(errs...)
}
