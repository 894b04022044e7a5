// Package models provides data structures for the controller event relay.
package models

import (
	"encoding/json"
	"time"
)

// Event is a relayed broker message. It is immutable once constructed and is
// shared read-only between the history buffer and the subscriber registry.
type Event struct {
	RoutingKey string
	Content    string
	Timestamp  int64
}

// Frame is the wire shape of one event as delivered to stream subscribers.
type Frame struct {
	RoutingKey string `json:"routingKey"`
	Content    string `json:"content"`
}

// Envelope is the body of a message published to the broker exchange.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// relayedContent is the JSON document carried in Event.Content.
type relayedContent struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// NewEvent builds an Event for an accepted envelope, stamping it with the relay time.
// The data payload is re-encoded verbatim so producer fields beyond the required
// ones survive the relay.
func NewEvent(routingKey string, env Envelope, now time.Time) (Event, error) {
	ts := now.UnixMilli()
	content, err := json.Marshal(relayedContent{
		Event:     env.Event,
		Data:      env.Data,
		Timestamp: ts,
	})
	if err != nil {
		return Event{}, err
	}

	return Event{
		RoutingKey: routingKey,
		Content:    string(content),
		Timestamp:  ts,
	}, nil
}

// Frame returns the subscriber-facing representation of the event.
func (e Event) Frame() Frame {
	return Frame{
		RoutingKey: e.RoutingKey,
		Content:    e.Content,
	}
}

// EncodeFrame serializes the event into the JSON document sent to subscribers.
func EncodeFrame(e Event) ([]byte, error) {
	return json.Marshal(e.Frame())
}

// ErrorResponse represents a standardized JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
