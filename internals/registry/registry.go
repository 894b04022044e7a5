// Package registry tracks the live stream subscribers and fans events out to them.
package registry

import (
	"log/slog"
	"sync"

	"github.com/tanmay-xvx/controller-relay/internals/logging"
	"github.com/tanmay-xvx/controller-relay/internals/metrics"
	"github.com/tanmay-xvx/controller-relay/internals/models"
)

// Sink is an output stream that accepts encoded frames.
// Enqueue must not block; an error marks the sink as failed.
type Sink interface {
	Enqueue(frame []byte) error
	Close() error
}

// Result reports the outcome of one broadcast.
type Result struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Registry is the set of currently connected stream subscribers.
type Registry struct {
	mu    sync.RWMutex
	sinks []Sink

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. metrics and logger may be nil.
func NewRegistry(m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		metrics: m,
		logger:  logging.Component(logger, "registry"),
	}
}

// Add registers sink and returns a function that removes it again.
// Adding the same sink twice is a no-op.
func (r *Registry) Add(sink Sink) (remove func()) {
	r.mu.Lock()
	if r.indexOf(sink) < 0 {
		r.sinks = append(r.sinks, sink)
	}
	n := len(r.sinks)
	r.mu.Unlock()

	r.setGauge(n)
	return func() { r.Remove(sink) }
}

// Remove unregisters sink. Removing an unknown sink is a no-op.
func (r *Registry) Remove(sink Sink) bool {
	r.mu.Lock()
	i := r.indexOf(sink)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	r.sinks = append(r.sinks[:i], r.sinks[i+1:]...)
	n := len(r.sinks)
	r.mu.Unlock()

	r.setGauge(n)
	return true
}

// Count returns the number of registered sinks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Broadcast delivers ev to every registered sink. The frame is encoded once.
// A sink that fails is skipped for the rest of the pass and removed after it;
// the remaining sinks still receive the event. Failed sinks are closed.
func (r *Registry) Broadcast(ev models.Event) Result {
	frame, err := models.EncodeFrame(ev)
	if err != nil {
		r.logger.Error("encode frame", logging.Error(err), "routing_key", ev.RoutingKey)
		return Result{}
	}
	return r.BroadcastFrame(frame)
}

// BroadcastFrame delivers an already encoded frame. See Broadcast.
func (r *Registry) BroadcastFrame(frame []byte) Result {
	r.mu.RLock()
	targets := make([]Sink, len(r.sinks))
	copy(targets, r.sinks)
	r.mu.RUnlock()

	var res Result
	var failed []Sink
	for _, sink := range targets {
		if err := sink.Enqueue(frame); err != nil {
			failed = append(failed, sink)
			r.logger.Debug("subscriber write failed", logging.Error(err))
			continue
		}
		res.Delivered++
	}

	for _, sink := range failed {
		if r.Remove(sink) {
			_ = sink.Close()
		}
	}
	res.Failed = len(failed)

	if r.metrics != nil {
		r.metrics.IncFanoutFailed(res.Failed)
	}
	return res
}

// CloseAll closes and removes every registered sink.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()

	for _, sink := range sinks {
		_ = sink.Close()
	}
	r.setGauge(0)

	if len(sinks) > 0 {
		r.logger.Info("closed subscribers", "count", len(sinks))
	}
	return len(sinks)
}

func (r *Registry) indexOf(sink Sink) int {
	for i, s := range r.sinks {
		if s == sink {
			return i
		}
	}
	return -1
}

func (r *Registry) setGauge(n int) {
	if r.metrics != nil {
		r.metrics.SetSubscribers(n)
	}
}
