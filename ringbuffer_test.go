package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushN(rb *RingBuffer, n int, startT float64, rate float64) {
	for i := 0; i < n; i++ {
		t := startT + float64(i)/rate
		rb.Push(t, []float32{float32(i), float32(-i)})
	}
}

func TestRingBufferCapacityNeverExceeded(t *testing.T) {
	rb := NewRingBuffer(1.0, 100.0, 2) // capacity 100
	require.Equal(t, 100, rb.Capacity())

	for _, n := range []int{10, 90, 150, 1000} {
		pushN(rb, n, 0, 100.0)
		assert.LessOrEqual(t, rb.Len(), rb.Capacity())
	}
	assert.Equal(t, 100, rb.Len())
}

func TestRingBufferFIFOEviction(t *testing.T) {
	rb := NewRingBuffer(1.0, 4.0, 1) // capacity 4
	for i := 0; i < 6; i++ {
		rb.Push(float64(i), []float32{float32(i * 10)})
	}

	// the two oldest samples (t=0, t=1) must be gone
	window := rb.Snapshot(0, 10)
	require.Equal(t, 4, window.Len())
	assert.Equal(t, []float64{2, 3, 4, 5}, window.Timestamps)
	assert.Equal(t, []float32{20, 30, 40, 50}, window.Channels[0])
}

func TestRingBufferSnapshotRange(t *testing.T) {
	rb := NewRingBuffer(10.0, 10.0, 2) // capacity 100
	pushN(rb, 50, 0, 10.0)             // timestamps 0.0 .. 4.9

	window := rb.Snapshot(1.0, 2.0)
	require.Equal(t, 11, window.Len()) // 1.0, 1.1 .. 2.0 inclusive
	assert.InDelta(t, 1.0, window.Timestamps[0], 1e-9)
	assert.InDelta(t, 2.0, window.Timestamps[len(window.Timestamps)-1], 1e-9)
}

func TestRingBufferSnapshotEmpty(t *testing.T) {
	rb := NewRingBuffer(1.0, 10.0, 1)

	// empty buffer
	window := rb.Snapshot(0, 100)
	assert.Zero(t, window.Len())

	// populated buffer, disjoint range
	pushN(rb, 5, 0, 10.0)
	window = rb.Snapshot(50, 60)
	assert.Zero(t, window.Len())
}

func TestRingBufferSnapshotIsACopy(t *testing.T) {
	rb := NewRingBuffer(1.0, 10.0, 1)
	rb.Push(0.5, []float32{1})

	window := rb.Snapshot(0, 1)
	require.Equal(t, 1, window.Len())
	window.Channels[0][0] = 999

	again := rb.Snapshot(0, 1)
	assert.Equal(t, float32(1), again.Channels[0][0])
}

func TestRingBufferLast(t *testing.T) {
	rb := NewRingBuffer(1.0, 10.0, 1)
	_, ok := rb.Last()
	assert.False(t, ok)

	pushN(rb, 25, 0, 10.0) // wraps capacity 10
	last, ok := rb.Last()
	require.True(t, ok)
	assert.InDelta(t, 2.4, last, 1e-9)
}

func TestRingBufferAllSequencesEqualLength(t *testing.T) {
	rb := NewRingBuffer(1.0, 8.0, 3)
	for i := 0; i < 20; i++ {
		rb.Push(float64(i), []float32{1, 2, 3})
		window := rb.Snapshot(-1, float64(i)+1)
		for ch := 0; ch < 3; ch++ {
			require.Len(t, window.Channels[ch], len(window.Timestamps),
				fmt.Sprintf("channel %d length diverged after push %d", ch, i))
		}
	}
}
