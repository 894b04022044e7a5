// Package broker wraps the AMQP client used by the relay behind small interfaces.
package broker

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned when an operation needs an open channel.
var ErrNotConnected = errors.New("broker not connected")

// Dialer opens broker connections.
type Dialer interface {
	Dial(url string) (Connection, error)
}

// Connection is the subset of *amqp.Connection the relay uses.
type Connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Channel is the subset of *amqp.Channel the relay uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Topology describes the exchange, queue and bindings the relay consumes from.
type Topology struct {
	Exchange    string
	Queue       string
	RoutingKeys []string
	Prefetch    int
}

// Declare declares a durable topic exchange and a durable queue bound to it
// with every routing key, then applies the prefetch limit when set.
func Declare(ch Channel, t Topology) error {
	if ch == nil {
		return ErrNotConnected
	}

	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}

	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}

	for _, key := range t.RoutingKeys {
		if err := ch.QueueBind(t.Queue, key, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s with %q: %w", t.Queue, t.Exchange, key, err)
		}
	}

	if t.Prefetch > 0 {
		if err := ch.Qos(t.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch %d: %w", t.Prefetch, err)
		}
	}
	return nil
}

// Consume starts a manual-ack consumer on queue.
func Consume(ch Channel, queue, consumerTag string) (<-chan amqp.Delivery, error) {
	if ch == nil {
		return nil, ErrNotConnected
	}
	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, nil
}
