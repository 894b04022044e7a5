package subscriber

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu         sync.Mutex
	frames     []string
	keepAlives int
	failAfter  int
}

func (w *recordingWriter) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAfter > 0 && len(w.frames) >= w.failAfter {
		return errors.New("write failed")
	}
	w.frames = append(w.frames, string(frame))
	return nil
}

func (w *recordingWriter) KeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keepAlives++
	return nil
}

func (w *recordingWriter) snapshot() ([]string, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.frames...), w.keepAlives
}

func TestNewSubscriber(t *testing.T) {
	sub := NewSubscriber("test-client", 50)
	require.NotNil(t, sub)

	assert.Equal(t, "test-client", sub.ID())
	assert.Equal(t, 50, cap(sub.send))
	assert.True(t, sub.IsActive())

	sub = NewSubscriber("default", 0)
	assert.Equal(t, 256, cap(sub.send))
}

func TestSubscriber_EnqueueFullAndClosed(t *testing.T) {
	sub := NewSubscriber("c", 2)

	require.NoError(t, sub.Enqueue([]byte("1")))
	require.NoError(t, sub.Enqueue([]byte("2")))
	assert.ErrorIs(t, sub.Enqueue([]byte("3")), ErrBufferFull)
	assert.Equal(t, 2, sub.Pending())

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.False(t, sub.IsActive())
	assert.ErrorIs(t, sub.Enqueue([]byte("4")), ErrClosed)

	select {
	case <-sub.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestSubscriber_RunWritesInOrder(t *testing.T) {
	sub := NewSubscriber("c", 10)
	w := &recordingWriter{}

	for _, f := range []string{"a", "b", "c"} {
		require.NoError(t, sub.Enqueue([]byte(f)))
	}

	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(context.Background(), w, 0) }()

	require.Eventually(t, func() bool {
		frames, _ := w.snapshot()
		return len(frames) == 3
	}, time.Second, 5*time.Millisecond)

	frames, _ := w.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, frames)

	sub.Close()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestSubscriber_RunStopsOnContext(t *testing.T) {
	sub := NewSubscriber("c", 1)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(ctx, &recordingWriter{}, 0) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSubscriber_RunReturnsWriteError(t *testing.T) {
	sub := NewSubscriber("c", 4)
	w := &recordingWriter{failAfter: 1}
	require.NoError(t, sub.Enqueue([]byte("ok")))
	require.NoError(t, sub.Enqueue([]byte("boom")))

	err := sub.Run(context.Background(), w, 0)
	assert.EqualError(t, err, "write failed")
}

func TestSubscriber_KeepAlive(t *testing.T) {
	sub := NewSubscriber("c", 1)
	w := &recordingWriter{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sub.Run(ctx, w, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, n := w.snapshot()
		return n >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	SetHeaders(rec.Header())

	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Open())
	require.NoError(t, w.WriteFrame([]byte(`{"routingKey":"controller.connected","content":"x"}`)))
	require.NoError(t, w.KeepAlive())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)
	assert.Equal(t,
		": connected\n\n"+
			"data: {\"routingKey\":\"controller.connected\",\"content\":\"x\"}\n\n"+
			": keepalive\n\n",
		rec.Body.String())
}

type nonFlusher struct{ http.ResponseWriter }

func TestSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(nonFlusher{httptest.NewRecorder()})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}

func TestWSWriter(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	received := make(chan string, 2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := NewSubscriber("ws", 4)
		sub.Enqueue([]byte(`{"n":1}`))
		sub.Enqueue([]byte(`{"n":2}`))

		ctx, cancel := context.WithCancel(r.Context())
		WatchClose(conn, cancel)
		sub.Run(ctx, NewWSWriter(conn, time.Second), 0)
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, mt)
		received <- string(data)
	}

	assert.Equal(t, `{"n":1}`, <-received)
	assert.Equal(t, `{"n":2}`, <-received)
}
