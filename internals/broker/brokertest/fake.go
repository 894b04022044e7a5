// Package brokertest provides in-memory fakes of the broker interfaces for tests.
package brokertest

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tanmay-xvx/controller-relay/internals/broker"
)

// Dialer hands out fake connections and counts dial attempts.
type Dialer struct {
	// Delay is slept before each dial returns.
	Delay time.Duration
	// Err, when set, fails every dial.
	Err error
	// Setup, when set, customizes each new connection before it is returned.
	Setup func(*Connection)

	dials atomic.Int32

	mu    sync.Mutex
	conns []*Connection
}

// Dial implements broker.Dialer.
func (d *Dialer) Dial(url string) (broker.Connection, error) {
	d.dials.Add(1)
	if d.Delay > 0 {
		time.Sleep(d.Delay)
	}
	if d.Err != nil {
		return nil, d.Err
	}

	conn := NewConnection()
	if d.Setup != nil {
		d.Setup(conn)
	}

	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

// Dials returns the number of dial attempts.
func (d *Dialer) Dials() int {
	return int(d.dials.Load())
}

// Last returns the most recently dialed connection, or nil.
func (d *Dialer) Last() *Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Connection is a fake broker.Connection with a single channel.
type Connection struct {
	Ch *Channel
	// ChannelErr, when set, fails Channel().
	ChannelErr error
	// Hang, when non-nil, blocks Close until it is closed.
	Hang chan struct{}

	mu         sync.Mutex
	notify     []chan *amqp.Error
	closed     bool
	closeCalls int
}

// NewConnection returns a fake connection with a fresh channel.
func NewConnection() *Connection {
	return &Connection{Ch: NewChannel()}
}

// Channel implements broker.Connection.
func (c *Connection) Channel() (broker.Channel, error) {
	if c.ChannelErr != nil {
		return nil, c.ChannelErr
	}
	return c.Ch, nil
}

// NotifyClose implements broker.Connection.
func (c *Connection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, receiver)
	return receiver
}

// Close implements broker.Connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()

	if c.Hang != nil {
		<-c.Hang
	}
	c.shutdown(nil)
	return nil
}

// CloseCalls returns how many times Close was called.
func (c *Connection) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Fail simulates the broker dropping the connection with err. The channel is
// closed along with it.
func (c *Connection) Fail(err *amqp.Error) {
	c.shutdown(err)
	_ = c.Ch.Close()
}

func (c *Connection) shutdown(err *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.notify {
		if err != nil {
			ch <- err
		}
		close(ch)
	}
	c.notify = nil
}

// Channel is a fake broker.Channel that records the topology it was given.
type Channel struct {
	Deliveries chan amqp.Delivery

	// DeclareErr, when set, fails ExchangeDeclare.
	DeclareErr error
	// ConsumeErr, when set, fails Consume.
	ConsumeErr error
	// HangCancel and HangClose, when non-nil, block Cancel and Close until closed.
	HangCancel chan struct{}
	HangClose  chan struct{}

	mu           sync.Mutex
	exchange     string
	exchangeKind string
	durable      bool
	queue        string
	bindings     []string
	prefetch     int
	consumerTag  string
	cancelCalls  int
	closeCalls   int
	notify       []chan *amqp.Error
	closed       bool
}

// NewChannel returns a fake channel with a buffered delivery stream.
func NewChannel() *Channel {
	return &Channel{Deliveries: make(chan amqp.Delivery, 64)}
}

// ExchangeDeclare implements broker.Channel.
func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if c.DeclareErr != nil {
		return c.DeclareErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchange, c.exchangeKind, c.durable = name, kind, durable
	return nil
}

// QueueDeclare implements broker.Channel.
func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = name
	return amqp.Queue{Name: name}, nil
}

// QueueBind implements broker.Channel.
func (c *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, key)
	return nil
}

// Qos implements broker.Channel.
func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

// Consume implements broker.Channel.
func (c *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	if autoAck {
		return nil, errors.New("brokertest: auto-ack consumers are not supported")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumerTag = consumer
	return c.Deliveries, nil
}

// Cancel implements broker.Channel.
func (c *Channel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	c.cancelCalls++
	c.mu.Unlock()

	if c.HangCancel != nil {
		<-c.HangCancel
	}
	return nil
}

// NotifyClose implements broker.Channel.
func (c *Channel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, receiver)
	return receiver
}

// Close implements broker.Channel. Like the real client it ends the delivery stream.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()

	if c.HangClose != nil {
		<-c.HangClose
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Deliveries)
		for _, ch := range c.notify {
			close(ch)
		}
		c.notify = nil
	}
	return nil
}

// Exchange returns the declared exchange name, kind and durability.
func (c *Channel) Exchange() (name, kind string, durable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchange, c.exchangeKind, c.durable
}

// Queue returns the declared queue name.
func (c *Channel) Queue() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue
}

// Bindings returns the bound routing keys in order.
func (c *Channel) Bindings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.bindings...)
}

// Prefetch returns the last Qos prefetch count.
func (c *Channel) Prefetch() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefetch
}

// CancelCalls returns how many times Cancel was called.
func (c *Channel) CancelCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelCalls
}

// CloseCalls returns how many times Close was called.
func (c *Channel) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Acknowledger records acks and nacks for deliveries built by Delivery.
type Acknowledger struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued int
	settled  chan struct{}
}

// NewAcknowledger returns an Acknowledger whose Settled channel receives one
// value per ack, nack or reject.
func NewAcknowledger() *Acknowledger {
	return &Acknowledger{settled: make(chan struct{}, 64)}
}

// Ack implements amqp.Acknowledger.
func (a *Acknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	a.acks++
	a.mu.Unlock()
	a.signal()
	return nil
}

// Nack implements amqp.Acknowledger.
func (a *Acknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	a.nacks++
	if requeue {
		a.requeued++
	}
	a.mu.Unlock()
	a.signal()
	return nil
}

// Reject implements amqp.Acknowledger.
func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Counts returns the number of acks, nacks and requeueing nacks seen.
func (a *Acknowledger) Counts() (acks, nacks, requeued int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks, a.requeued
}

// Settled receives one value per settlement.
func (a *Acknowledger) Settled() <-chan struct{} {
	return a.settled
}

func (a *Acknowledger) signal() {
	select {
	case a.settled <- struct{}{}:
	default:
	}
}

var deliveryTag atomic.Uint64

// Delivery builds a delivery settled through ack.
func Delivery(ack *Acknowledger, routingKey string, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  deliveryTag.Add(1),
		RoutingKey:   routingKey,
		ContentType:  "application/json",
		Body:         body,
	}
}
