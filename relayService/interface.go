// Package relayService relays controller events from the broker to stream subscribers.
package relayService

import (
	"context"
	"errors"

	"github.com/tanmay-xvx/controller-relay/internals/registry"
)

// ErrShuttingDown is returned when an operation is refused because teardown is in progress.
var ErrShuttingDown = errors.New("relay is shutting down")

// ConnectionState is the broker connection state of the relay.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	ShuttingDown
)

// String returns the lower-case state name used in logs and health responses.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// RelayService defines the operations the HTTP layer and the process need
// from the relay.
type RelayService interface {
	// EnsureConnected opens the broker connection and starts consuming if that
	// has not happened yet. Concurrent callers share one connect attempt.
	// It returns ErrShuttingDown while teardown is in progress.
	EnsureConnected(ctx context.Context) error

	// Teardown closes every subscriber and then the consumer, channel and
	// connection, each step bounded by its own timeout. Calls made while a
	// teardown is running are ignored. With forceExit the process exits once
	// teardown finishes, or with status 1 if it does not finish in time.
	Teardown(forceExit bool)

	// HandleFault logs an unrecoverable error and tears down with forceExit.
	HandleFault(err error)

	// Subscribe registers sink for live events and replays the history to it.
	// The returned function unregisters the sink.
	Subscribe(sink registry.Sink) (unsubscribe func(), err error)

	// State returns the current connection state.
	State() ConnectionState

	// Stats returns a point-in-time view of the relay for health and stats routes.
	Stats() Stats
}

// Stats is a snapshot of the relay's runtime state.
type Stats struct {
	State           string                 `json:"state"`
	Subscribers     int                    `json:"subscribers"`
	HistorySize     int                    `json:"history_size"`
	HistoryCapacity int                    `json:"history_capacity"`
	UptimeSeconds   int64                  `json:"uptime_seconds"`
	Metrics         map[string]interface{} `json:"metrics"`
}
