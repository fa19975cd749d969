package main

import (
	"sync"
)

// RingBuffer holds the most recent samples of every channel along with
// their stream timestamps. Capacity is fixed at construction; pushing
// into a full buffer evicts the oldest sample (FIFO). All sequences
// always have equal length.
type RingBuffer struct {
	mu         sync.Mutex
	timestamps []float64
	channels   [][]float32
	capacity   int
	head       int // index of the oldest sample
	count      int
}

// SampleWindow is a copied slice of buffered samples returned by
// Snapshot. It shares no memory with the ring buffer.
type SampleWindow struct {
	Timestamps []float64
	Channels   [][]float32 // Channels[ch][i]
}

// Len returns the number of samples in the window.
func (w SampleWindow) Len() int {
	return len(w.Timestamps)
}

// NewRingBuffer allocates a buffer retaining bufferSeconds of history
// at the nominal sample rate. Changing the rate requires building a
// new buffer.
func NewRingBuffer(bufferSeconds, nominalRate float64, numChannels int) *RingBuffer {
	capacity := int(bufferSeconds * nominalRate)
	if capacity < 1 {
		capacity = 1
	}
	channels := make([][]float32, numChannels)
	for i := range channels {
		channels[i] = make([]float32, capacity)
	}
	return &RingBuffer{
		timestamps: make([]float64, capacity),
		channels:   channels,
		capacity:   capacity,
	}
}

// Push appends one sample across all channels, evicting the oldest
// sample when full. len(values) must equal the channel count.
func (rb *RingBuffer) Push(timestamp float64, values []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	pos := (rb.head + rb.count) % rb.capacity
	if rb.count == rb.capacity {
		// full: overwrite the oldest slot and advance head
		pos = rb.head
		rb.head = (rb.head + 1) % rb.capacity
	} else {
		rb.count++
	}

	rb.timestamps[pos] = timestamp
	for ch := range rb.channels {
		rb.channels[ch][pos] = values[ch]
	}
}

// Len returns the current number of buffered samples.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Capacity returns the fixed buffer capacity in samples.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// Last returns the timestamp of the most recent sample. ok is false
// when the buffer is empty.
func (rb *RingBuffer) Last() (float64, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.count == 0 {
		return 0, false
	}
	pos := (rb.head + rb.count - 1) % rb.capacity
	return rb.timestamps[pos], true
}

// Snapshot copies every buffered sample whose timestamp falls within
// [t0, t1]. An empty window (no qualifying sample) is an ordinary
// result, not an error.
func (rb *RingBuffer) Snapshot(t0, t1 float64) SampleWindow {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	window := SampleWindow{
		Channels: make([][]float32, len(rb.channels)),
	}
	for i := 0; i < rb.count; i++ {
		pos := (rb.head + i) % rb.capacity
		t := rb.timestamps[pos]
		if t < t0 || t > t1 {
			continue
		}
		window.Timestamps = append(window.Timestamps, t)
		for ch := range rb.channels {
			window.Channels[ch] = append(window.Channels[ch], rb.channels[ch][pos])
		}
	}
	return window
}
