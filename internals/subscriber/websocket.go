package subscriber

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// WSWriter sends subscriber frames as WebSocket text messages.
type WSWriter struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWSWriter wraps an upgraded connection.
func NewWSWriter(conn *websocket.Conn, writeTimeout time.Duration) *WSWriter {
	return &WSWriter{conn: conn, writeTimeout: writeTimeout}
}

// WriteFrame writes the frame as a single text message.
func (w *WSWriter) WriteFrame(frame []byte) error {
	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return err
		}
	}
	return w.conn.WriteMessage(websocket.TextMessage, frame)
}

// KeepAlive sends a ping control frame.
func (w *WSWriter) KeepAlive() error {
	deadline := time.Now().Add(w.writeTimeout)
	if w.writeTimeout <= 0 {
		deadline = time.Time{}
	}
	return w.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

// WatchClose reads from the connection until the peer closes it or a read
// fails, then calls cancel. Incoming messages are discarded: the stream is
// one-way. Control frames are handled by the connection's default handlers.
func WatchClose(conn *websocket.Conn, cancel context.CancelFunc) {
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
}
