package subscriber

import (
	"errors"
	"io"
	"net/http"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

var (
	sseDataPrefix = []byte("data: ")
	sseFrameEnd   = []byte("\n\n")
)

// SSEWriter frames subscriber output as Server-Sent Events.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter wraps w for event streaming. w must implement http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// SetHeaders marks the response as an uncached event stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Open writes the initial connection comment so clients see the stream immediately.
func (s *SSEWriter) Open() error {
	return s.comment("connected")
}

// WriteFrame writes one "data: <frame>\n\n" event and flushes it.
func (s *SSEWriter) WriteFrame(frame []byte) error {
	if _, err := s.w.Write(sseDataPrefix); err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if _, err := s.w.Write(sseFrameEnd); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// KeepAlive writes a comment line, which clients ignore.
func (s *SSEWriter) KeepAlive() error {
	return s.comment("keepalive")
}

func (s *SSEWriter) comment(text string) error {
	if _, err := io.WriteString(s.w, ": "+text+"\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
