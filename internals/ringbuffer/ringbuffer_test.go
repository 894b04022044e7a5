package ringbuffer

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanmay-xvx/controller-relay/internals/models"
)

func event(n int) models.Event {
	return models.Event{
		RoutingKey: "events.controller.connect",
		Content:    fmt.Sprintf(`{"n":%d}`, n),
		Timestamp:  int64(n),
	}
}

func TestNewRingBuffer(t *testing.T) {
	rb := NewRingBuffer(10)
	require.NotNil(t, rb)
	assert.Equal(t, 10, rb.Capacity())
	assert.Equal(t, 0, rb.Size())
	assert.True(t, rb.IsEmpty())
	assert.Empty(t, rb.Snapshot())
}

func TestRingBuffer_NewestFirst(t *testing.T) {
	rb := NewRingBuffer(3)

	rb.Push(event(1))
	rb.Push(event(2))

	snap := rb.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(2), snap[0].Timestamp)
	assert.Equal(t, int64(1), snap[1].Timestamp)
	assert.False(t, rb.IsFull())

	rb.Push(event(3))
	assert.True(t, rb.IsFull())

	rb.Push(event(4))
	snap = rb.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{4, 3, 2}, timestamps(snap))
}

func TestRingBuffer_EvictsOldestBeyondDefaultCapacity(t *testing.T) {
	rb := NewRingBuffer(DefaultCapacity)

	for i := 1; i <= 51; i++ {
		rb.Push(event(i))
	}

	snap := rb.Snapshot()
	require.Len(t, snap, 50)
	assert.Equal(t, int64(51), snap[0].Timestamp)
	assert.Equal(t, int64(2), snap[49].Timestamp)
	for _, ev := range snap {
		assert.NotEqual(t, int64(1), ev.Timestamp, "E1 should have been evicted")
	}
}

func TestRingBuffer_SnapshotIsACopy(t *testing.T) {
	rb := NewRingBuffer(5)
	rb.Push(event(1))

	snap := rb.Snapshot()
	snap[0].Content = "mutated"
	rb.Push(event(2))

	fresh := rb.Snapshot()
	assert.Equal(t, `{"n":1}`, fresh[1].Content)
	assert.Len(t, snap, 1)
}

func TestRingBuffer_ThreadSafety(t *testing.T) {
	rb := NewRingBuffer(DefaultCapacity)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rb.Push(event(id*100 + j))
			}
		}(i)
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.LessOrEqual(t, len(rb.Snapshot()), DefaultCapacity)
				rb.Size()
				rb.IsFull()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, DefaultCapacity, rb.Size())
}

func TestRingBuffer_EdgeCases(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewRingBuffer(0).Capacity())
	assert.Equal(t, DefaultCapacity, NewRingBuffer(-5).Capacity())

	rb := NewRingBuffer(1)
	rb.Push(event(1))
	rb.Push(event(2))
	assert.Equal(t, []int64{2}, timestamps(rb.Snapshot()))
}

func timestamps(evs []models.Event) []int64 {
	out := make([]int64, len(evs))
	for i, ev := range evs {
		out[i] = ev.Timestamp
	}
	return out
}

func BenchmarkRingBuffer_Push(b *testing.B) {
	rb := NewRingBuffer(DefaultCapacity)
	ev := event(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rb.Push(ev)
	}
}

func BenchmarkRingBuffer_Snapshot(b *testing.B) {
	rb := NewRingBuffer(DefaultCapacity)
	for i := 0; i < DefaultCapacity; i++ {
		rb.Push(event(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rb.Snapshot()
	}
}
