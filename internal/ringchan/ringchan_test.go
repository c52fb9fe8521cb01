package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_OverwritesOldest(t *testing.T) {
	rc := New[int](3)
	for i := 0; i < 5; i++ {
		rc.Send(i)
	}

	assert.Equal(t, 3, rc.Len())
	assert.Equal(t, 3, rc.Cap())

	var got []int
	for v, ok := rc.TryReceive(); ok; v, ok = rc.TryReceive() {
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 3, 4}, got, "only the newest values MUST survive")
	assert.Equal(t, Stats{Written: 5, Overwritten: 2, Received: 3}, rc.Stats())
}

func TestRingChannel_TrySend(t *testing.T) {
	rc := New[string](1)
	assert.True(t, rc.TrySend("a"))
	assert.False(t, rc.TrySend("b"), "full buffer MUST reject TrySend")

	v, ok := rc.Receive()
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestRingChannel_Close(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	assert.False(t, rc.Send(2))
	assert.False(t, rc.TrySend(3))
	assert.Equal(t, int64(2), rc.Stats().Dropped)

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1}, got, "buffered values MUST be readable after Close")

	_, ok := rc.Receive()
	assert.False(t, ok)
}

func TestRingChannel_ConcurrentProducersNeverBlock(t *testing.T) {
	rc := New[int](4)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()

	st := rc.Stats()
	assert.Equal(t, int64(8000), st.Written)
	assert.Equal(t, int64(8000-4), st.Overwritten)
	assert.Equal(t, 4, rc.Len())
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
