package registry

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanmay-xvx/controller-relay/internals/metrics"
	"github.com/tanmay-xvx/controller-relay/internals/models"
)

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed int
}

func (s *fakeSink) Enqueue(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("write failed")
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSink) received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func testEvent() models.Event {
	return models.Event{
		RoutingKey: "events.controller.connect",
		Content:    `{"event":"controller_connected","data":{},"timestamp":1}`,
		Timestamp:  1,
	}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(nil, nil)
	require.NotNil(t, r)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_AddRemove(t *testing.T) {
	m := metrics.NewMetrics(nil)
	r := NewRegistry(m, nil)

	a, b := &fakeSink{}, &fakeSink{}
	removeA := r.Add(a)
	r.Add(b)
	r.Add(a)
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, int64(2), m.Snapshot()["subscribers"])

	removeA()
	removeA()
	assert.Equal(t, 1, r.Count())
	assert.False(t, r.Remove(&fakeSink{}))
	assert.Equal(t, int64(1), m.Snapshot()["subscribers"])
}

func TestRegistry_BroadcastEmpty(t *testing.T) {
	r := NewRegistry(nil, nil)
	res := r.Broadcast(testEvent())
	assert.Equal(t, Result{}, res)
}

func TestRegistry_BroadcastFrameShape(t *testing.T) {
	r := NewRegistry(nil, nil)
	s := &fakeSink{}
	r.Add(s)

	ev := testEvent()
	res := r.Broadcast(ev)
	assert.Equal(t, Result{Delivered: 1}, res)
	require.Equal(t, 1, s.received())

	var frame models.Frame
	require.NoError(t, json.Unmarshal(s.frames[0], &frame))
	assert.Equal(t, ev.RoutingKey, frame.RoutingKey)
	assert.Equal(t, ev.Content, frame.Content)
}

func TestRegistry_BroadcastRemovesFailedSinks(t *testing.T) {
	m := metrics.NewMetrics(nil)
	r := NewRegistry(m, nil)

	s1, s2, s3 := &fakeSink{}, &fakeSink{fail: true}, &fakeSink{}
	r.Add(s1)
	r.Add(s2)
	r.Add(s3)

	res := r.Broadcast(testEvent())
	assert.Equal(t, Result{Delivered: 2, Failed: 1}, res)
	assert.Equal(t, 1, s1.received())
	assert.Equal(t, 1, s3.received())
	assert.Equal(t, 1, s2.closed)
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, uint64(1), m.Snapshot()["fanout_failures"])

	res = r.Broadcast(testEvent())
	assert.Equal(t, Result{Delivered: 2}, res)
	assert.Equal(t, 2, s1.received())
	assert.Equal(t, 2, s3.received())
}

func TestRegistry_CloseAll(t *testing.T) {
	r := NewRegistry(nil, nil)
	sinks := []*fakeSink{{}, {}, {}}
	for _, s := range sinks {
		r.Add(s)
	}

	assert.Equal(t, 3, r.CloseAll())
	assert.Equal(t, 0, r.Count())
	for _, s := range sinks {
		assert.Equal(t, 1, s.closed)
	}
	assert.Equal(t, 0, r.CloseAll())
}

func TestRegistry_Concurrency(t *testing.T) {
	r := NewRegistry(nil, nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			remove := r.Add(&fakeSink{})
			r.Broadcast(testEvent())
			remove()
		}()
		go func() {
			defer wg.Done()
			r.Broadcast(testEvent())
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
}
