package relayService

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tanmay-xvx/controller-relay/internals/broker"
	"github.com/tanmay-xvx/controller-relay/internals/config"
	"github.com/tanmay-xvx/controller-relay/internals/logging"
	"github.com/tanmay-xvx/controller-relay/internals/metrics"
	"github.com/tanmay-xvx/controller-relay/internals/models"
	"github.com/tanmay-xvx/controller-relay/internals/registry"
	"github.com/tanmay-xvx/controller-relay/internals/ringbuffer"
)

// Service implements RelayService. One Service owns the single broker
// connection of the process, the event history and the subscriber registry.
type Service struct {
	cfg      *config.Config
	dialer   broker.Dialer
	history  *ringbuffer.RingBuffer
	registry *registry.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	exit     func(code int)
	now      func() time.Time

	connectGroup singleflight.Group

	// mu guards the connection state and the broker handles.
	mu            sync.Mutex
	state         ConnectionState
	epoch         uint64
	conn          broker.Connection
	ch            broker.Channel
	consumerTag   string
	exitRequested bool
	watchdog      *time.Timer

	// fanoutMu makes "record and broadcast" atomic with "register and replay",
	// so a new subscriber sees each event exactly once.
	fanoutMu sync.Mutex

	startedAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. The default discards all records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink shared with the HTTP layer.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithExit replaces os.Exit, which forced teardown calls when it completes.
func WithExit(exit func(code int)) Option {
	return func(s *Service) {
		if exit != nil {
			s.exit = exit
		}
	}
}

// WithClock sets the clock used to timestamp relayed events.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRelayService creates a disconnected relay. No broker connection is made
// until EnsureConnected is called.
func NewRelayService(cfg *config.Config, dialer broker.Dialer, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		dialer:    dialer,
		history:   ringbuffer.NewRingBuffer(cfg.HistorySize),
		metrics:   metrics.NewMetrics(nil),
		logger:    logging.Discard(),
		exit:      os.Exit,
		now:       time.Now,
		state:     Disconnected,
		startedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = logging.Component(s.logger, "relay")
	s.registry = registry.NewRegistry(s.metrics, s.logger)
	return s
}

// State returns the current connection state.
func (s *Service) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers sink and replays the history to it before any live
// event can reach it. If replay fails the sink is removed and closed.
func (s *Service) Subscribe(sink registry.Sink) (func(), error) {
	s.fanoutMu.Lock()
	defer s.fanoutMu.Unlock()

	if s.State() == ShuttingDown {
		return func() {}, ErrShuttingDown
	}

	remove := s.registry.Add(sink)

	events := s.history.Snapshot()
	if s.cfg.ReplayOrder == config.ReplayOldestFirst {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}

	for _, ev := range events {
		frame, err := models.EncodeFrame(ev)
		if err != nil {
			s.logger.Error("encode replay frame", logging.Error(err))
			continue
		}
		if err := sink.Enqueue(frame); err != nil {
			remove()
			_ = sink.Close()
			return func() {}, err
		}
	}

	s.logger.Debug("subscriber registered", "replayed", len(events), "subscribers", s.registry.Count())
	return remove, nil
}

// record stores ev in the history and broadcasts it to every subscriber.
func (s *Service) record(ev models.Event) registry.Result {
	s.fanoutMu.Lock()
	defer s.fanoutMu.Unlock()

	s.history.Push(ev)
	return s.registry.Broadcast(ev)
}

// History returns the buffered events, newest first.
func (s *Service) History() []models.Event {
	return s.history.Snapshot()
}

// Metrics returns the metrics sink used by the service.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Stats returns a snapshot of the relay's runtime state.
func (s *Service) Stats() Stats {
	return Stats{
		State:           s.State().String(),
		Subscribers:     s.registry.Count(),
		HistorySize:     s.history.Size(),
		HistoryCapacity: s.history.Capacity(),
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
		Metrics:         s.metrics.Snapshot(),
	}
}
