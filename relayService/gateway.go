package relayService

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/tanmay-xvx/controller-relay/internals/broker"
	"github.com/tanmay-xvx/controller-relay/internals/logging"
	"github.com/tanmay-xvx/controller-relay/internals/metrics"
	"github.com/tanmay-xvx/controller-relay/internals/models"
	"github.com/tanmay-xvx/controller-relay/internals/validator"
)

// session holds the broker handles opened by one connect attempt.
type session struct {
	conn        broker.Connection
	ch          broker.Channel
	consumerTag string
	deliveries  <-chan amqp.Delivery
}

// open dials the broker, declares the topology and starts the consumer.
// On failure everything opened so far is released and a nil session returned.
func (s *Service) open() (*session, error) {
	conn, err := s.dialer.Dial(s.cfg.RabbitURL)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	sess := &session{conn: conn}

	ch, err := conn.Channel()
	if err != nil {
		s.release(sess)
		return nil, fmt.Errorf("open channel: %w", err)
	}
	sess.ch = ch

	topology := broker.Topology{
		Exchange:    s.cfg.Exchange,
		Queue:       s.cfg.Queue,
		RoutingKeys: s.cfg.RoutingKeys,
		Prefetch:    s.cfg.Prefetch,
	}
	if err := broker.Declare(ch, topology); err != nil {
		s.release(sess)
		return nil, err
	}

	sess.consumerTag = s.cfg.ConsumerTag
	if sess.consumerTag == "" {
		sess.consumerTag = "controller-relay-" + uuid.NewString()
	}

	deliveries, err := broker.Consume(ch, s.cfg.Queue, sess.consumerTag)
	if err != nil {
		s.release(sess)
		return nil, err
	}
	sess.deliveries = deliveries
	return sess, nil
}

// release closes the handles of a session that never became current.
func (s *Service) release(sess *session) {
	if sess.ch != nil {
		s.step("close channel", s.cfg.ChannelCloseTimeout, sess.ch.Close)
	}
	if sess.conn != nil {
		s.step("close connection", s.cfg.ConnectionCloseTimeout, sess.conn.Close)
	}
}

// watch tears the relay down when the broker closes the connection or the
// channel of the session started in epoch. Closes caused by a teardown are ignored.
func (s *Service) watch(epoch uint64, sess *session) {
	connClosed := sess.conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := sess.ch.NotifyClose(make(chan *amqp.Error, 1))

	go s.awaitClose(epoch, "connection", connClosed)
	go s.awaitClose(epoch, "channel", chClosed)
}

func (s *Service) awaitClose(epoch uint64, what string, closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed

	s.mu.Lock()
	stale := s.epoch != epoch || s.state == ShuttingDown
	s.mu.Unlock()
	if stale {
		return
	}

	if ok && amqpErr != nil {
		s.logger.Warn("broker "+what+" closed", "code", amqpErr.Code, "reason", amqpErr.Reason, "server", amqpErr.Server)
	} else {
		s.logger.Warn("broker " + what + " closed")
	}
	s.Teardown(false)
}

// consume handles deliveries until the delivery stream ends. A panic while
// handling a delivery is treated as an unrecoverable fault.
func (s *Service) consume(deliveries <-chan amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			s.HandleFault(fmt.Errorf("consumer panic: %v", r))
		}
	}()

	for d := range deliveries {
		s.handleDelivery(d)
	}
	s.logger.Debug("delivery stream ended")
}

// handleDelivery settles d exactly once:
//   - while shutting down it is rejected and requeued for a later consumer;
//   - a body that is not JSON is rejected and requeued;
//   - an envelope that fails the shape check is acknowledged and dropped;
//   - otherwise the event is recorded, broadcast and acknowledged.
func (s *Service) handleDelivery(d amqp.Delivery) {
	s.metrics.IncReceived()
	log := s.logger.With("routing_key", d.RoutingKey, "delivery_tag", d.DeliveryTag)

	if s.State() == ShuttingDown {
		s.nack(d, log)
		return
	}

	env, res := validator.ParseEnvelope(d.Body)
	if !res.Valid {
		if res.Reason == validator.ReasonInvalidJSON {
			log.Warn("delivery is not valid JSON, requeueing")
			s.nack(d, log)
			return
		}
		log.Warn("dropping invalid controller event", "reason", res.Reason, "field", res.Field)
		s.ack(d, log)
		s.metrics.IncDropped(metrics.DropInvalidPayload)
		return
	}

	ev, err := models.NewEvent(d.RoutingKey, env, s.now())
	if err != nil {
		log.Error("encode event", logging.Error(err))
		s.ack(d, log)
		s.metrics.IncDropped(metrics.DropEncodeFailed)
		return
	}

	sent := s.record(ev)
	s.ack(d, log)
	s.metrics.IncRelayed()
	log.Debug("event relayed", "event", env.Event, "delivered", sent.Delivered, "failed", sent.Failed)
}

func (s *Service) ack(d amqp.Delivery, log *slog.Logger) {
	if err := d.Ack(false); err != nil {
		log.Warn("ack failed", logging.Error(err))
	}
}

func (s *Service) nack(d amqp.Delivery, log *slog.Logger) {
	s.metrics.IncRejected()
	if err := d.Nack(false, true); err != nil {
		log.Warn("nack failed", logging.Error(err))
	}
}
