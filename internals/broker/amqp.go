package broker

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPDialer dials a RabbitMQ broker with rabbitmq/amqp091-go.
type AMQPDialer struct {
	// Timeout bounds the TCP connect and handshake. Zero uses the library default.
	Timeout time.Duration
	// Name is reported to the broker as the connection name.
	Name string
}

// Dial opens a connection to url.
func (d AMQPDialer) Dial(url string) (Connection, error) {
	cfg := amqp.Config{
		Properties: amqp.NewConnectionProperties(),
	}
	if d.Timeout > 0 {
		cfg.Dial = amqp.DefaultDial(d.Timeout)
	}
	if d.Name != "" {
		cfg.Properties.SetClientConnectionName(d.Name)
	}

	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	return c.conn.NotifyClose(receiver)
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}
