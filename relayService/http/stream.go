package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tanmay-xvx/controller-relay/internals/logging"
	"github.com/tanmay-xvx/controller-relay/internals/subscriber"
	"github.com/tanmay-xvx/controller-relay/relayService"
)

// Events handles GET /api/events requests.
//
// The broker connection is established on demand. Once it is up the client
// receives the buffered history and then every new event as
// "data: {"routingKey":…,"content":…}" frames until it disconnects or the
// relay shuts down.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	sub, unsubscribe, ok := h.open(w, r)
	if !ok {
		return
	}
	defer unsubscribe()
	defer sub.Close()

	sse, err := subscriber.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}

	subscriber.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	if err := sse.Open(); err != nil {
		return
	}

	log := h.logger.With("client_id", sub.ID(), "transport", "sse")
	log.Info("subscriber connected")

	err = sub.Run(r.Context(), sse, h.cfg.KeepAlive)
	log.Info("subscriber disconnected", logging.Error(ignoreCanceled(err)))
}

// EventsWS handles GET /api/events/ws requests. It streams the same frames as
// Events, one JSON text message per event.
func (h *Handler) EventsWS(w http.ResponseWriter, r *http.Request) {
	sub, unsubscribe, ok := h.open(w, r)
	if !ok {
		return
	}
	defer unsubscribe()
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With("client_id", sub.ID(), "transport", "websocket")
	log.Info("subscriber connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	subscriber.WatchClose(conn, cancel)

	err = sub.Run(ctx, subscriber.NewWSWriter(conn, h.cfg.WSWriteTimeout), h.cfg.KeepAlive)
	if err == nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
			deadline(h.cfg.WSWriteTimeout))
	}
	log.Info("subscriber disconnected", logging.Error(ignoreCanceled(err)))
}

// open makes sure the relay is connected and registers a new subscriber with
// the history already queued. On failure the error response has been written.
func (h *Handler) open(w http.ResponseWriter, r *http.Request) (*subscriber.Subscriber, func(), bool) {
	if h.svc.State() == relayService.ShuttingDown {
		writeError(w, http.StatusServiceUnavailable, "Service is shutting down", "")
		return nil, nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.InitTimeout)
	err := h.svc.EnsureConnected(ctx)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, relayService.ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, "Service is shutting down", "")
		case r.Context().Err() != nil:
			// client went away while waiting
		default:
			h.logger.Error("event stream initialization failed", logging.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to initialize event stream", err.Error())
		}
		return nil, nil, false
	}

	sub := subscriber.NewSubscriber(uuid.NewString(), h.cfg.SubscriberBufferSize())
	unsubscribe, err := h.svc.Subscribe(sub)
	if err != nil {
		if errors.Is(err, relayService.ErrShuttingDown) {
			writeError(w, http.StatusServiceUnavailable, "Service is shutting down", "")
		} else {
			h.logger.Error("subscribe failed", logging.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to initialize event stream", err.Error())
		}
		return nil, nil, false
	}
	return sub, unsubscribe, true
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
