// Package subscriber provides stream subscriber sinks for the relay.
package subscriber

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrClosed is returned when enqueueing to a subscriber that has been closed.
	ErrClosed = errors.New("subscriber closed")

	// ErrBufferFull is returned when the subscriber cannot accept another frame.
	ErrBufferFull = errors.New("subscriber buffer full")
)

// FrameWriter writes encoded frames to the subscriber's transport.
type FrameWriter interface {
	WriteFrame(frame []byte) error
	KeepAlive() error
}

// Subscriber is an output sink for one stream client. Frames are queued
// without blocking and written by the goroutine running Run.
type Subscriber struct {
	ClientID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// mu orders Enqueue against Close so no frame is queued after close.
	mu     sync.RWMutex
	closed bool
}

// NewSubscriber creates a new subscriber with the specified client ID.
// The buf parameter sets the number of frames that may be queued.
func NewSubscriber(clientID string, buf int) *Subscriber {
	if buf <= 0 {
		buf = 256
	}

	return &Subscriber{
		ClientID: clientID,
		send:     make(chan []byte, buf),
		done:     make(chan struct{}),
	}
}

// ID returns the subscriber's client identifier.
func (s *Subscriber) ID() string {
	return s.ClientID
}

// Enqueue queues a frame for delivery. It never blocks: a closed subscriber
// returns ErrClosed and a full queue returns ErrBufferFull.
func (s *Subscriber) Enqueue(frame []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	select {
	case s.send <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close marks the subscriber closed and releases the writer goroutine.
// It is safe to call multiple times.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		s.mu.Unlock()
	})
	return nil
}

// Done is closed once the subscriber has been closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// IsActive returns true if the subscriber has not been closed.
func (s *Subscriber) IsActive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Pending returns the number of queued frames.
func (s *Subscriber) Pending() int {
	return len(s.send)
}

// Run writes queued frames to w until ctx is cancelled, the subscriber is
// closed, or a write fails. A positive keepAlive sends keep-alive messages
// whenever the stream has been idle for that long.
//
// Run is the only goroutine that writes to the transport.
func (s *Subscriber) Run(ctx context.Context, w FrameWriter, keepAlive time.Duration) error {
	var keepAliveC <-chan time.Time
	var ticker *time.Ticker
	if keepAlive > 0 {
		ticker = time.NewTicker(keepAlive)
		keepAliveC = ticker.C
		defer ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.done:
			return nil

		case <-keepAliveC:
			if err := w.KeepAlive(); err != nil {
				return err
			}

		case frame := <-s.send:
			if ticker != nil {
				ticker.Reset(keepAlive)
			}
			if err := w.WriteFrame(frame); err != nil {
				return err
			}
		}
	}
}
